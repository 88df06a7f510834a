package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets from the config file.
const (
	EnvSMTPPassword  = "SITEDIGEST_SMTP_PASSWORD"
	EnvIMAPPassword  = "SITEDIGEST_IMAP_PASSWORD"
	EnvResendAPIKey  = "SITEDIGEST_RESEND_API_KEY"
	EnvDKIMKey       = "SITEDIGEST_DKIM_PRIVATE_KEY"
	EnvRedisPassword = "SITEDIGEST_REDIS_PASSWORD"
	EnvIntakeToken   = "SITEDIGEST_INTAKE_TOKEN"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv copies non-empty secret variables into cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Mail.SMTP.Password, EnvSMTPPassword)
	set(&cfg.Mail.IMAP.Password, EnvIMAPPassword)
	set(&cfg.Mail.Resend.APIKey, EnvResendAPIKey)
	set(&cfg.Mail.DKIM.PrivateKey, EnvDKIMKey)
	set(&cfg.Storage.RedisPassword, EnvRedisPassword)
	set(&cfg.Intake.HTTP.Token, EnvIntakeToken)
}
