package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultBufferSize   = 1000
	DefaultKeyHeader    = "X-API-Key"
)

// Config is the agent configuration parsed from the `agent:` section of
// config.yaml. The `server:` key in the same file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the gRPC address of pulsewatch-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// PollInterval controls how often each device is polled.
	PollInterval time.Duration `yaml:"poll_interval"`

	// BufferSize is the maximum number of readings held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	Log logging.Config `yaml:"log"`

	// Devices is the list of wearables or bridges to poll.
	Devices []Device `yaml:"devices"`

	// ServerTLS configures the connection to the server. Empty means plaintext.
	ServerTLS ServerTLSConfig `yaml:"server_tls"`
}

// Device describes one polled device endpoint.
type Device struct {
	// ID is sent as the reading's deviceId when the payload carries none.
	ID string `yaml:"id"`

	// Endpoint is the full URL returning the device's current reading.
	Endpoint string `yaml:"endpoint"`

	// Format is one of: json | prometheus (default json).
	Format string `yaml:"format"`

	// Auth configures how the agent authenticates to this device.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for a device.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// API key fields, used when Mode == "apikey".
	// Header is the HTTP header name to send the key in (default X-API-Key).
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token, used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields, used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return env(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return env(a.PasswordEnv) }

// EffectiveHeader returns Header, or DefaultKeyHeader when unset.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return DefaultKeyHeader
	}
	return a.Header
}

// TLSConfig holds per-device TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for bridges with self-signed certificates on a local network.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ServerTLSConfig enables TLS, optionally mutual, to the server.
type ServerTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			PollInterval: DefaultPollInterval,
			BufferSize:   DefaultBufferSize,
			Log:          logging.Config{Level: "info"},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("agent.poll_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if t := a.ServerTLS; (t.CertFile == "") != (t.KeyFile == "") {
		return fmt.Errorf("agent.server_tls: cert_file and key_file must be set together")
	}
	seen := make(map[string]bool, len(a.Devices))
	for i, d := range a.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
		if d.Endpoint == "" {
			return fmt.Errorf("devices[%d] %q: endpoint is required", i, d.ID)
		}
		switch d.Format {
		case "", "json", "prometheus":
		default:
			return fmt.Errorf("devices[%d] %q: unknown format %q", i, d.ID, d.Format)
		}
		switch d.Auth.Mode {
		case "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("devices[%d] %q: unknown auth mode %q", i, d.ID, d.Auth.Mode)
		}
	}
	return nil
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
