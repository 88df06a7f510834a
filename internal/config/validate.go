package config

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var ErrInvalid = errors.New("invalid config")

var (
	storageDrivers = []string{"", "memory", "file", "sqlite", "sqlite3", "redis", "none"}
	mailDrivers    = []string{"", "pickup", "smtp", "resend", "imap"}
)

// Validate checks values that would otherwise fail late, at the first
// digest run. Digest frequency values are not checked here: out-of-range
// periods, hours and days are sanitized to defaults, not rejected.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: empty", ErrInvalid)
	}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			bad("digest.timezone %q: %v", tz, err)
		}
	}
	if strings.TrimSpace(cfg.Site.Directory) == "" {
		bad("site.directory is required")
	}

	st := cfg.Storage
	if !oneOf(st.Driver, storageDrivers) {
		bad("storage.driver %q", st.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(st.Driver)) {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(st.Path) == "" {
			bad("storage.path is required for driver %q", st.Driver)
		}
	case "redis":
		if strings.TrimSpace(st.RedisAddr) == "" {
			bad("storage.redis_addr is required for driver redis")
		}
	}
	if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalid, err))
	}

	m := cfg.Mail
	if !oneOf(m.Driver, mailDrivers) {
		bad("mail.driver %q", m.Driver)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(m.From)); err != nil {
		bad("mail.from %q: %v", m.From, err)
	}
	if m.RatePerSec < 0 {
		bad("mail.rate_per_sec must be >= 0")
	}
	if m.RetryMax < 0 {
		bad("mail.retry_max must be >= 0")
	}
	for path, raw := range map[string]string{
		"mail.retry_base":      m.RetryBase,
		"mail.retry_max_delay": m.RetryMaxDelay,
		"mail.smtp.timeout":    m.SMTP.Timeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrInvalid, err))
		}
	}
	switch strings.ToLower(strings.TrimSpace(m.Driver)) {
	case "smtp":
		if strings.TrimSpace(m.SMTP.Host) == "" {
			bad("mail.smtp.host is required")
		}
	case "resend":
		if strings.TrimSpace(m.Resend.APIKey) == "" {
			bad("mail.resend.api_key is required (or %s)", EnvResendAPIKey)
		}
	case "imap":
		if strings.TrimSpace(m.IMAP.Host) == "" {
			bad("mail.imap.host is required")
		}
	case "", "pickup":
		if strings.TrimSpace(m.Pickup.Dir) == "" {
			bad("mail.pickup.dir is required")
		}
	}

	k := cfg.Intake.Kafka
	if k.Enabled && (len(k.Brokers) == 0 || strings.TrimSpace(k.Topic) == "") {
		bad("intake.kafka needs brokers and topic")
	}
	h := cfg.Intake.HTTP
	for path, raw := range map[string]string{
		"intake.http.read_timeout":  h.ReadTimeout,
		"intake.http.write_timeout": h.WriteTimeout,
		"intake.http.idle_timeout":  h.IdleTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrInvalid, err))
		}
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed []string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
