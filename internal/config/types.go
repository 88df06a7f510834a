package config

// Config is the daemon configuration.
//
// Unknown keys are rejected in every section so typos surface on reload
// instead of being silently ignored.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Digest  DigestConfig  `json:"digest"`
	Site    SiteConfig    `json:"site"`
	Storage StorageConfig `json:"storage"`
	Mail    MailConfig    `json:"mail"`
	Intake  IntakeConfig  `json:"intake,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level"`
	// Format is "pretty" (default) or "json".
	Format  string      `json:"format,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DigestConfig controls when digests go out and how they are worded.
//
// Example:
//
//	"digest": { "period": "weekly", "hour": 18, "day": 5, "timezone": "Europe/Berlin" }
//
// Day is a weekday number (0 = Sunday); it is only read for weekly digests.
// A nil Day falls back to start_of_week.
type DigestConfig struct {
	Period      string `json:"period"`
	Hour        *int   `json:"hour,omitempty"`
	Day         *int   `json:"day,omitempty"`
	StartOfWeek int    `json:"start_of_week,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	// Trigger is a cron spec or descriptor; default "@hourly".
	Trigger    string `json:"trigger,omitempty"`
	Language   string `json:"language,omitempty"`
	LocalePath string `json:"locale_path,omitempty"`
}

type SiteConfig struct {
	// Directory is a YAML file describing users, posts and comments.
	Directory string `json:"directory"`
}

// StorageConfig selects the queue backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/sitedigest" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite

	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"` // do not log
	RedisDB       int    `json:"redis_db,omitempty"`
	RedisKey      string `json:"redis_key,omitempty"`
}

// MailConfig controls delivery. Durations are Go duration strings.
type MailConfig struct {
	Driver        string  `json:"driver"`
	From          string  `json:"from"`
	FromName      string  `json:"from_name,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	RetryMax      int     `json:"retry_max,omitempty"`
	RetryBase     string  `json:"retry_base,omitempty"`
	RetryMaxDelay string  `json:"retry_max_delay,omitempty"`

	SMTP   SMTPConfig   `json:"smtp,omitempty"`
	Resend ResendConfig `json:"resend,omitempty"`
	Pickup PickupConfig `json:"pickup,omitempty"`
	IMAP   IMAPConfig   `json:"imap,omitempty"`
	DKIM   DKIMConfig   `json:"dkim,omitempty"`
}

type SMTPConfig struct {
	Host               string `json:"host"`
	Port               int    `json:"port,omitempty"`
	Username           string `json:"username,omitempty"`
	Password           string `json:"password,omitempty"` // do not log
	TLS                string `json:"tls,omitempty"`      // starttls|tls|none
	Helo               string `json:"helo,omitempty"`
	Timeout            string `json:"timeout,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty"`
}

type ResendConfig struct {
	APIKey  string `json:"api_key,omitempty"` // do not log
	BaseURL string `json:"base_url,omitempty"`
}

type PickupConfig struct {
	Dir    string `json:"dir"`
	Format string `json:"format,omitempty"` // eml|mbox
}

type IMAPConfig struct {
	Host               string `json:"host"`
	Port               int    `json:"port,omitempty"`
	Username           string `json:"username,omitempty"`
	Password           string `json:"password,omitempty"` // do not log
	TLS                bool   `json:"tls,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty"`
	Mailbox            string `json:"mailbox,omitempty"`
}

type DKIMConfig struct {
	Domain     string `json:"domain,omitempty"`
	Selector   string `json:"selector,omitempty"`
	KeyPath    string `json:"key_path,omitempty"`
	PrivateKey string `json:"private_key,omitempty"` // PEM; do not log
}

// IntakeConfig enables the optional event intake surfaces.
type IntakeConfig struct {
	HTTP  HTTPIntakeConfig  `json:"http,omitempty"`
	Kafka KafkaIntakeConfig `json:"kafka,omitempty"`
}

// HTTPIntakeConfig serves POST /v1/events.
//
// Prefer binding to localhost; set a token when the listener is reachable
// from other hosts.
type HTTPIntakeConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr,omitempty"`  // default: "127.0.0.1:8790"
	Token        string `json:"token,omitempty"` // optional bearer token (do not log)
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
	// Pprof exposes /debug/pprof on the intake listener.
	Pprof bool `json:"pprof,omitempty"`
}

type KafkaIntakeConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers,omitempty"`
	Topic   string   `json:"topic,omitempty"`
	GroupID string   `json:"group_id,omitempty"`
}
