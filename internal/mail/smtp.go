package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	netmail "net/mail"
	"strconv"
	"strings"
	"time"
)

// TLS modes for SMTPConfig.TLS.
const (
	TLSStartTLS = "starttls"
	TLSImplicit = "tls"
	TLSNone     = "none"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is starttls (default; upgrade when offered), tls (implicit,
	// usually port 465) or none.
	TLS                string
	Helo               string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// composer builds the wire form of a message, DKIM-signed when configured.
type composer struct {
	signer *Signer
	now    func() time.Time
}

func (c composer) raw(m Message) ([]byte, error) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	raw, err := Compose(m, now())
	if err != nil {
		return nil, err
	}
	return c.signer.Sign(raw, m.From)
}

// SMTPTransport relays messages through an SMTP submission server.
type SMTPTransport struct {
	cfg SMTPConfig
	composer
}

func NewSMTP(cfg SMTPConfig, signer *Signer) (*SMTPTransport, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp: host is required")
	}
	cfg.TLS = strings.ToLower(strings.TrimSpace(cfg.TLS))
	switch cfg.TLS {
	case "":
		cfg.TLS = TLSStartTLS
	case TLSStartTLS, TLSImplicit, TLSNone:
	default:
		return nil, fmt.Errorf("smtp: unknown tls mode %q", cfg.TLS)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
		if cfg.TLS == TLSImplicit {
			cfg.Port = 465
		}
	}
	if cfg.Helo == "" {
		cfg.Helo = "localhost"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPTransport{cfg: cfg, composer: composer{signer: signer}}, nil
}

func (t *SMTPTransport) Send(ctx context.Context, m Message) error {
	data, err := t.raw(m)
	if err != nil {
		return err
	}
	rcpt, err := netmail.ParseAddress(m.To)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoRecipient, err)
	}
	return t.deliver(ctx, m.From.Email, rcpt.Address, data)
}

func (t *SMTPTransport) deliver(ctx context.Context, from, to string, data []byte) error {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	tlsConf := &tls.Config{
		ServerName:         t.cfg.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.cfg.InsecureSkipVerify,
	}
	if t.cfg.TLS == TLSImplicit {
		conn = tls.Client(conn, tlsConf)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Close()

	if err := client.Hello(t.cfg.Helo); err != nil {
		return fmt.Errorf("helo: %w", err)
	}
	if t.cfg.TLS == TLSStartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConf); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if t.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return fmt.Errorf("auth: server does not support AUTH")
		}
		if err := client.Auth(smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data start: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("data write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("data close: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("quit: %w", err)
	}
	return nil
}
