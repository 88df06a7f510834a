package mail

import (
	"fmt"
	"strings"

	logx "sitedigest/pkg/logx"
)

// Transport drivers.
const (
	DriverSMTP   = "smtp"
	DriverResend = "resend"
	DriverPickup = "pickup"
	DriverIMAP   = "imap"
)

// Config selects and configures the outbound transport.
type Config struct {
	Driver string
	SMTP   SMTPConfig
	Resend ResendConfig
	Pickup PickupConfig
	IMAP   IMAPConfig
	DKIM   DKIMConfig
}

// Open builds the configured transport. DKIM applies to every driver that
// composes the message locally.
func Open(cfg Config, log logx.Logger) (Transport, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	signer, err := NewSigner(cfg.DKIM)
	if err != nil {
		return nil, err
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case DriverSMTP:
		t, err := NewSMTP(cfg.SMTP, signer)
		if err != nil {
			return nil, err
		}
		log.Info("mail transport ready", logx.String("driver", driver), logx.String("host", t.cfg.Host),
			logx.Int("port", t.cfg.Port), logx.String("tls", t.cfg.TLS), logx.Bool("dkim", signer != nil))
		return t, nil
	case DriverResend:
		if signer != nil {
			log.Warn("dkim settings ignored by the resend driver")
		}
		return NewResend(cfg.Resend)
	case "", DriverPickup:
		t, err := NewPickup(cfg.Pickup, signer)
		if err != nil {
			return nil, err
		}
		log.Info("mail transport ready", logx.String("driver", DriverPickup), logx.String("dir", t.cfg.Dir), logx.String("format", t.cfg.Format))
		return t, nil
	case DriverIMAP:
		t, err := NewIMAP(cfg.IMAP, signer)
		if err != nil {
			return nil, err
		}
		log.Info("mail transport ready", logx.String("driver", driver), logx.String("host", t.cfg.Host), logx.String("mailbox", t.cfg.Mailbox))
		return t, nil
	default:
		return nil, fmt.Errorf("mail: unknown driver %q", cfg.Driver)
	}
}
