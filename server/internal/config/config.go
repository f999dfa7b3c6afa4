package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
	"github.com/pulsewatch/pulsewatch/pkg/types"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort      = 50051
	DefaultHTTPPort      = 8080
	DefaultQueueSize     = 100
	DefaultNotifyTimeout = 10 * time.Second
	DefaultDSNEnv        = "DATABASE_URL"
	DefaultSMTPPort      = 587
	DefaultKafkaTimeout  = 10 * time.Second
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the gRPC receiver listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	Log     logging.Config `yaml:"log"`
	Storage StorageConfig  `yaml:"storage"`
	Live    LiveConfig     `yaml:"live"`
	Ingest  IngestConfig   `yaml:"ingest"`
	Notify  NotifyConfig   `yaml:"notify"`
	Relay   RelayConfig    `yaml:"relay"`
}

// StorageConfig selects the sample and alert store backend.
type StorageConfig struct {
	// Backend is one of: memory | postgres.
	Backend string `yaml:"backend"`

	// DSNEnv names the environment variable holding the PostgreSQL DSN
	// (default DATABASE_URL).
	DSNEnv string `yaml:"dsn_env"`

	// AutoMigrate creates the schema on startup.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string resolved from the environment.
func (s StorageConfig) DSN() string {
	return env(s.DSNEnv)
}

// LiveConfig sizes live subscriber queues.
type LiveConfig struct {
	// QueueSize is the per-subscriber event buffer (default 100). A subscriber
	// that falls this far behind is disconnected.
	QueueSize int `yaml:"queue_size"`
}

// IngestConfig tunes ingestion.
type IngestConfig struct {
	// DefaultDeviceID replaces an empty deviceId (default "default_device").
	DefaultDeviceID string `yaml:"default_device_id"`
}

// NotifyConfig configures emergency notification transports. A transport
// with no settings is disabled.
type NotifyConfig struct {
	// Timeout bounds each transport delivery (default 10s).
	Timeout  time.Duration   `yaml:"timeout"`
	Email    EmailConfig     `yaml:"email"`
	SMS      SMSConfig       `yaml:"sms"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// EmailConfig is the SMTP relay used for emergency and report mail.
type EmailConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Username    string   `yaml:"username"`
	PasswordEnv string   `yaml:"password_env"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
}

// Enabled reports whether an SMTP host is configured.
func (e EmailConfig) Enabled() bool { return e.Host != "" }

// Password returns the SMTP password resolved from the environment.
func (e EmailConfig) Password() string { return env(e.PasswordEnv) }

// SMSConfig holds the Twilio account and numbers.
type SMSConfig struct {
	AccountSID   string `yaml:"account_sid"`
	AuthTokenEnv string `yaml:"auth_token_env"`
	From         string `yaml:"from"`
	To           string `yaml:"to"`
	BaseURL      string `yaml:"base_url"`
}

// Enabled reports whether a Twilio account is configured.
func (s SMSConfig) Enabled() bool { return s.AccountSID != "" }

// AuthToken returns the Twilio auth token resolved from the environment.
func (s SMSConfig) AuthToken() string { return env(s.AuthTokenEnv) }

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return env(w.URLEnv) }

// RelayConfig configures event relays to external brokers.
type RelayConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
	AMQP  AMQPConfig  `yaml:"amqp"`
}

// KafkaConfig publishes events to a Kafka topic keyed by device id.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Enabled reports whether Kafka brokers are configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// AMQPConfig publishes events to a RabbitMQ queue.
type AMQPConfig struct {
	URLEnv string `yaml:"url_env"`
	Queue  string `yaml:"queue"`
}

// Enabled reports whether a queue is configured.
func (a AMQPConfig) Enabled() bool { return a.Queue != "" }

// URL returns the broker URL resolved from the environment.
func (a AMQPConfig) URL() string { return env(a.URLEnv) }

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Log:      logging.Config{Level: "info"},
			Storage:  StorageConfig{Backend: "memory", DSNEnv: DefaultDSNEnv},
			Live:     LiveConfig{QueueSize: DefaultQueueSize},
			Ingest:   IngestConfig{DefaultDeviceID: types.DefaultDeviceID},
			Notify: NotifyConfig{
				Timeout: DefaultNotifyTimeout,
				Email:   EmailConfig{Port: DefaultSMTPPort},
			},
			Relay: RelayConfig{
				Kafka: KafkaConfig{WriteTimeout: DefaultKafkaTimeout},
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Storage.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want memory|postgres", s.Storage.Backend)
	}
	if s.Live.QueueSize <= 0 {
		return errors.New("server.live.queue_size must be positive")
	}
	if s.Notify.Timeout <= 0 {
		return errors.New("server.notify.timeout must be positive")
	}
	if e := s.Notify.Email; e.Enabled() && e.From == "" {
		return errors.New("server.notify.email.from is required when host is set")
	}
	if sms := s.Notify.SMS; sms.Enabled() && (sms.From == "" || sms.To == "") {
		return errors.New("server.notify.sms.from and to are required when account_sid is set")
	}
	for i, w := range s.Notify.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.notify.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
		if w.URLEnv == "" {
			return fmt.Errorf("server.notify.webhooks[%d].url_env is required", i)
		}
	}
	if k := s.Relay.Kafka; k.Enabled() && k.Topic == "" {
		return errors.New("server.relay.kafka.topic is required when brokers are set")
	}
	if a := s.Relay.AMQP; a.Enabled() && a.URLEnv == "" {
		return errors.New("server.relay.amqp.url_env is required when queue is set")
	}
	return nil
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
