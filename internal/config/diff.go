package config

import (
	"reflect"
	"strings"

	logx "sitedigest/pkg/logx"
)

// SummarizeConfigChange lists the top-level sections that differ and a set
// of log fields describing the new values. Secrets are reported only as
// "set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Digest, newCfg.Digest) {
		changed = append(changed, "digest")
		d := newCfg.Digest
		attrs = append(attrs,
			logx.String("digest.period", d.Period),
			logx.String("digest.timezone", d.Timezone),
			logx.String("digest.trigger", d.Trigger),
			logx.String("digest.language", d.Language),
		)
		if d.Hour != nil {
			attrs = append(attrs, logx.Int("digest.hour", *d.Hour))
		}
	}
	if oldCfg.Site != newCfg.Site {
		changed = append(changed, "site")
		attrs = append(attrs, logx.String("site.directory", newCfg.Site.Directory))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}
	if !reflect.DeepEqual(oldCfg.Mail, newCfg.Mail) {
		changed = append(changed, "mail")
		m := newCfg.Mail
		attrs = append(attrs,
			logx.String("mail.driver", m.Driver),
			logx.String("mail.from", m.From),
			logx.Any("mail.rate_per_sec", m.RatePerSec),
			logx.Int("mail.retry_max", m.RetryMax),
			logx.Bool("mail.smtp.password_set", isSet(m.SMTP.Password)),
			logx.Bool("mail.resend.api_key_set", isSet(m.Resend.APIKey)),
			logx.Bool("mail.dkim.enabled", isSet(m.DKIM.Domain)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Intake, newCfg.Intake) {
		changed = append(changed, "intake")
		attrs = append(attrs,
			logx.Bool("intake.http.enabled", newCfg.Intake.HTTP.Enabled),
			logx.String("intake.http.addr", newCfg.Intake.HTTP.Addr),
			logx.Bool("intake.http.token_set", isSet(newCfg.Intake.HTTP.Token)),
			logx.Bool("intake.kafka.enabled", newCfg.Intake.Kafka.Enabled),
			logx.String("intake.kafka.topic", newCfg.Intake.Kafka.Topic),
		)
	}
	return changed, attrs
}

// RequiresRestart reports changed settings that are only read at startup.
func RequiresRestart(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Intake.Kafka, newCfg.Intake.Kafka) {
		out = append(out, "intake.kafka")
	}
	if oldCfg.Mail.Driver != newCfg.Mail.Driver ||
		oldCfg.Mail.SMTP != newCfg.Mail.SMTP ||
		oldCfg.Mail.Resend != newCfg.Mail.Resend ||
		oldCfg.Mail.Pickup != newCfg.Mail.Pickup ||
		oldCfg.Mail.IMAP != newCfg.Mail.IMAP ||
		oldCfg.Mail.DKIM != newCfg.Mail.DKIM {
		out = append(out, "mail.transport")
	}
	return out
}

func isSet(s string) bool { return strings.TrimSpace(s) != "" }
