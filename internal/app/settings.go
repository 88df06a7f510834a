package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sitedigest/internal/config"
	"sitedigest/internal/dispatch"
	"sitedigest/internal/i18n"
	"sitedigest/internal/intake"
	"sitedigest/internal/mail"
	"sitedigest/internal/scheduler"
	"sitedigest/internal/storage"
	logx "sitedigest/pkg/logx"
)

func mapLogging(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Format:  c.Format,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

// mapSchedule resolves the digest frequency, the zone it is read in and the
// trigger spec. Out-of-range values fall back to defaults.
func mapSchedule(c config.DigestConfig) (scheduler.Frequency, *time.Location, string, error) {
	loc := time.Local
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return scheduler.Frequency{}, nil, "", fmt.Errorf("digest.timezone: %w", err)
		}
		loc = l
	}
	sow := time.Weekday(c.StartOfWeek)
	f := scheduler.DefaultFrequency(sow)
	if p := strings.TrimSpace(c.Period); p != "" {
		f.Period = scheduler.Period(p)
	}
	if c.Hour != nil {
		f.Hour = *c.Hour
	}
	if c.Day != nil {
		f.Day = time.Weekday(*c.Day)
	}
	f = scheduler.Sanitize(f, sow)

	spec := strings.TrimSpace(c.Trigger)
	if spec == "" {
		spec = scheduler.DefaultTrigger
	}
	return f, loc, spec, nil
}

func mapDispatch(cfg *config.Config) (dispatch.Settings, error) {
	f, loc, _, err := mapSchedule(cfg.Digest)
	if err != nil {
		return dispatch.Settings{}, err
	}
	m := cfg.Mail
	base, err := config.ParseDurationOrDefault("mail.retry_base", m.RetryBase, 500*time.Millisecond)
	if err != nil {
		return dispatch.Settings{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("mail.retry_max_delay", m.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return dispatch.Settings{}, err
	}
	return dispatch.Settings{
		Frequency: f,
		Location:  loc,
		Options: dispatch.Options{
			From:          mail.Address{Name: strings.TrimSpace(m.FromName), Email: strings.TrimSpace(m.From)},
			RatePerSec:    m.RatePerSec,
			RetryMax:      m.RetryMax,
			RetryBase:     base,
			RetryMaxDelay: maxDelay,
		},
	}, nil
}

func mapStorage(c config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", c.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:        c.Driver,
		Path:          c.Path,
		BusyTimeout:   busy,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		RedisKey:      c.RedisKey,
	}, nil
}

func mapMail(c config.MailConfig) (mail.Config, error) {
	timeout, err := config.ParseDurationOrDefault("mail.smtp.timeout", c.SMTP.Timeout, 30*time.Second)
	if err != nil {
		return mail.Config{}, err
	}
	return mail.Config{
		Driver: c.Driver,
		SMTP: mail.SMTPConfig{
			Host:               c.SMTP.Host,
			Port:               c.SMTP.Port,
			Username:           c.SMTP.Username,
			Password:           c.SMTP.Password,
			TLS:                c.SMTP.TLS,
			Helo:               c.SMTP.Helo,
			Timeout:            timeout,
			InsecureSkipVerify: c.SMTP.InsecureSkipVerify,
		},
		Resend: mail.ResendConfig{APIKey: c.Resend.APIKey, BaseURL: c.Resend.BaseURL},
		Pickup: mail.PickupConfig{Dir: c.Pickup.Dir, Format: c.Pickup.Format},
		IMAP: mail.IMAPConfig{
			Host:               c.IMAP.Host,
			Port:               c.IMAP.Port,
			Username:           c.IMAP.Username,
			Password:           c.IMAP.Password,
			UseTLS:             c.IMAP.TLS,
			InsecureSkipVerify: c.IMAP.InsecureSkipVerify,
			Mailbox:            c.IMAP.Mailbox,
		},
		DKIM: mail.DKIMConfig{
			Domain:     c.DKIM.Domain,
			Selector:   c.DKIM.Selector,
			KeyPath:    c.DKIM.KeyPath,
			PrivateKey: c.DKIM.PrivateKey,
		},
	}, nil
}

func mapHTTPIntake(c config.HTTPIntakeConfig) (intake.HTTPConfig, error) {
	read, err := config.ParseDurationOrDefault("intake.http.read_timeout", c.ReadTimeout, 10*time.Second)
	if err != nil {
		return intake.HTTPConfig{}, err
	}
	write, err := config.ParseDurationOrDefault("intake.http.write_timeout", c.WriteTimeout, 10*time.Second)
	if err != nil {
		return intake.HTTPConfig{}, err
	}
	idle, err := config.ParseDurationOrDefault("intake.http.idle_timeout", c.IdleTimeout, time.Minute)
	if err != nil {
		return intake.HTTPConfig{}, err
	}
	return intake.HTTPConfig{
		Enabled:      c.Enabled,
		Addr:         c.Addr,
		Token:        c.Token,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
		Pprof:        c.Pprof,
	}, nil
}

// loadTranslator builds the translator for digest.language. When
// locale_path is a directory, <dir>/<language>.yaml is loaded if present.
func loadTranslator(c config.DigestConfig) (*i18n.Translator, error) {
	tr, err := i18n.New(c.Language)
	if err != nil {
		return nil, err
	}
	p := strings.TrimSpace(c.LocalePath)
	if p == "" {
		return tr, nil
	}
	st, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("digest.locale_path: %w", err)
	}
	if st.IsDir() {
		p = filepath.Join(p, tr.Language().String()+".yaml")
		if _, err := os.Stat(p); err != nil {
			return tr, nil
		}
	}
	if err := tr.Load(p); err != nil {
		return nil, err
	}
	return tr, nil
}
