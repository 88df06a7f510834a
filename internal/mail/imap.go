package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

type IMAPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	// Mailbox receives the digests; it is created when missing.
	Mailbox string
}

// IMAPTransport appends digests to a mailbox instead of sending them, for
// shared review inboxes. Each Send opens its own session.
type IMAPTransport struct {
	cfg IMAPConfig
	composer
}

func NewIMAP(cfg IMAPConfig, signer *Signer) (*IMAPTransport, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("imap: host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 143
		if cfg.UseTLS {
			cfg.Port = 993
		}
	}
	if strings.TrimSpace(cfg.Mailbox) == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPTransport{cfg: cfg, composer: composer{signer: signer}}, nil
}

func (t *IMAPTransport) Send(ctx context.Context, m Message) error {
	data, err := t.raw(m)
	if err != nil {
		return err
	}
	client, err := t.dial()
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer func() {
		stop()
		if ctx.Err() == nil {
			_ = client.Logout().Wait()
		}
		_ = client.Close()
	}()

	if err := t.ensureMailbox(client); err != nil {
		return err
	}
	return t.appendMessage(client, data)
}

func (t *IMAPTransport) dial() (*imapclient.Client, error) {
	address := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	options := &imapclient.Options{}

	var (
		client *imapclient.Client
		err    error
	)
	if t.cfg.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         t.cfg.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: t.cfg.InsecureSkipVerify,
		}
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}
	if err := client.Login(t.cfg.Username, t.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}
	return client, nil
}

func (t *IMAPTransport) ensureMailbox(client *imapclient.Client) error {
	if strings.EqualFold(t.cfg.Mailbox, "INBOX") {
		return nil
	}
	if err := client.Create(t.cfg.Mailbox, nil).Wait(); err != nil {
		var respErr *imap.Error
		if errors.As(err, &respErr) && respErr.Code == imap.ResponseCodeAlreadyExists {
			return nil
		}
		return fmt.Errorf("ensure mailbox %s: %w", t.cfg.Mailbox, err)
	}
	return nil
}

func (t *IMAPTransport) appendMessage(client *imapclient.Client, data []byte) error {
	cmd := client.Append(t.cfg.Mailbox, int64(len(data)), &imap.AppendOptions{Time: time.Now()})
	if _, err := cmd.Write(data); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("append write: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}
	return nil
}
