package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Server section absent; only the agent side is configured.
	p := writeConfig(t, `agent:
  server_endpoint: "localhost:50051"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != DefaultGRPCPort {
		t.Errorf("grpc_port: got %d, want %d", s.GRPCPort, DefaultGRPCPort)
	}
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.Storage.Backend != "memory" {
		t.Errorf("storage.backend: got %q, want memory", s.Storage.Backend)
	}
	if s.Live.QueueSize != DefaultQueueSize {
		t.Errorf("live.queue_size: got %d, want %d", s.Live.QueueSize, DefaultQueueSize)
	}
	if s.Notify.Timeout != DefaultNotifyTimeout {
		t.Errorf("notify.timeout: got %v, want %v", s.Notify.Timeout, DefaultNotifyTimeout)
	}
	if s.Ingest.DefaultDeviceID != types.DefaultDeviceID {
		t.Errorf("ingest.default_device_id: got %q, want %q", s.Ingest.DefaultDeviceID, types.DefaultDeviceID)
	}
	if s.Notify.Email.Enabled() || s.Notify.SMS.Enabled() || s.Relay.Kafka.Enabled() || s.Relay.AMQP.Enabled() {
		t.Error("optional sections: got enabled, want disabled by default")
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  grpc_port: 9090
  http_port: 9091
  log:
    level: debug
  storage:
    backend: postgres
    dsn_env: PW_TEST_DSN
    auto_migrate: true
  live:
    queue_size: 16
  ingest:
    default_device_id: wrist
  notify:
    timeout: 3s
    email:
      host: smtp.local
      from: alerts@example.com
      to: [doc@example.com]
    sms:
      account_sid: AC1
      auth_token_env: PW_TEST_TWILIO
      from: "+100"
      to: "+200"
    webhooks:
      - type: slack
        url_env: PW_TEST_SLACK
  relay:
    kafka:
      brokers: [kafka:9092]
      topic: health-events
    amqp:
      url_env: PW_TEST_AMQP
      queue: health
`)
	t.Setenv("PW_TEST_DSN", "postgres://x")
	t.Setenv("PW_TEST_TWILIO", "tok")
	t.Setenv("PW_TEST_SLACK", "https://hooks.example/s")
	t.Setenv("PW_TEST_AMQP", "amqp://guest@rabbit/")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != 9090 || s.HTTPPort != 9091 {
		t.Errorf("ports: got %d/%d, want 9090/9091", s.GRPCPort, s.HTTPPort)
	}
	if s.Log.Level != "debug" {
		t.Errorf("log.level: got %q, want debug", s.Log.Level)
	}
	if s.Storage.DSN() != "postgres://x" || !s.Storage.AutoMigrate {
		t.Errorf("storage: got dsn %q migrate %v", s.Storage.DSN(), s.Storage.AutoMigrate)
	}
	if s.Live.QueueSize != 16 {
		t.Errorf("live.queue_size: got %d, want 16", s.Live.QueueSize)
	}
	if s.Ingest.DefaultDeviceID != "wrist" {
		t.Errorf("default_device_id: got %q, want wrist", s.Ingest.DefaultDeviceID)
	}
	if s.Notify.Timeout != 3*time.Second {
		t.Errorf("notify.timeout: got %v, want 3s", s.Notify.Timeout)
	}
	if s.Notify.Email.Port != DefaultSMTPPort {
		t.Errorf("email.port: got %d, want %d", s.Notify.Email.Port, DefaultSMTPPort)
	}
	if s.Notify.SMS.AuthToken() != "tok" {
		t.Errorf("sms.AuthToken: got %q, want tok", s.Notify.SMS.AuthToken())
	}
	if got := s.Notify.Webhooks[0].URL(); got != "https://hooks.example/s" {
		t.Errorf("webhook URL: got %q", got)
	}
	if s.Relay.Kafka.WriteTimeout != DefaultKafkaTimeout {
		t.Errorf("kafka.write_timeout: got %v, want %v", s.Relay.Kafka.WriteTimeout, DefaultKafkaTimeout)
	}
	if s.Relay.AMQP.URL() != "amqp://guest@rabbit/" {
		t.Errorf("amqp.URL: got %q", s.Relay.AMQP.URL())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"grpc port", "server:\n  grpc_port: 70000\n", "grpc_port"},
		{"http port", "server:\n  http_port: -1\n", "http_port"},
		{"backend", "server:\n  storage:\n    backend: sqlite\n", "storage.backend"},
		{"queue size", "server:\n  live:\n    queue_size: 0\n", "queue_size"},
		{"timeout", "server:\n  notify:\n    timeout: 0s\n", "notify.timeout"},
		{"email from", "server:\n  notify:\n    email:\n      host: smtp.local\n", "email.from"},
		{"sms numbers", "server:\n  notify:\n    sms:\n      account_sid: AC1\n", "sms.from"},
		{"webhook type", "server:\n  notify:\n    webhooks:\n      - type: discord\n        url_env: X\n", "webhooks[0].type"},
		{"webhook env", "server:\n  notify:\n    webhooks:\n      - type: slack\n", "webhooks[0].url_env"},
		{"kafka topic", "server:\n  relay:\n    kafka:\n      brokers: [k:9092]\n", "kafka.topic"},
		{"amqp url", "server:\n  relay:\n    amqp:\n      queue: q\n", "amqp.url_env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("Load: expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error: got %q, want it to mention %q", err, tt.want)
			}
			if !strings.HasPrefix(err.Error(), "server config: ") {
				t.Errorf("error: got %q, want server config prefix", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [unclosed\n")); err == nil {
		t.Fatal("Load: expected parse error")
	}
}

func TestEnvAccessors_Unset(t *testing.T) {
	var w WebhookConfig
	if w.URL() != "" {
		t.Errorf("URL with no env name: got %q, want empty", w.URL())
	}
	w.URLEnv = "PW_TEST_DEFINITELY_UNSET"
	if w.URL() != "" {
		t.Errorf("URL with unset env: got %q, want empty", w.URL())
	}
}

func TestTransports(t *testing.T) {
	t.Setenv("PW_TEST_SLACK", "https://hooks.example/s")
	t.Setenv("PW_TEST_TWILIO", "tok")
	n := NotifyConfig{
		Timeout: time.Second,
		Email:   EmailConfig{Host: "smtp.local", Port: 25, From: "a@example.com", To: []string{"b@example.com"}},
		SMS:     SMSConfig{AccountSID: "AC1", AuthTokenEnv: "PW_TEST_TWILIO", From: "+1", To: "+2"},
		Webhooks: []WebhookConfig{
			{Type: "slack", URLEnv: "PW_TEST_SLACK"},
			{Type: "http", URLEnv: "PW_TEST_DEFINITELY_UNSET"},
		},
	}

	ts, email, err := n.Transports()
	if err == nil {
		t.Fatal("Transports: expected error for webhook with no URL")
	}
	if !strings.Contains(err.Error(), "webhooks[1]") {
		t.Errorf("error: got %q, want webhooks[1]", err)
	}
	if email == nil {
		t.Fatal("email: got nil, want mailer")
	}
	var names []string
	for _, tr := range ts {
		names = append(names, tr.Name())
	}
	want := "email,sms,webhook:slack"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("transports: got %s, want %s", got, want)
	}
}

func TestTransports_NoneConfigured(t *testing.T) {
	ts, email, err := NotifyConfig{}.Transports()
	if err != nil || email != nil || len(ts) != 0 {
		t.Errorf("Transports: got %v %v %v, want empty", ts, email, err)
	}
}

func TestTransports_SameTypeWebhooksGetDistinctNames(t *testing.T) {
	t.Setenv("PW_TEST_SLACK_A", "https://hooks.example/a")
	t.Setenv("PW_TEST_SLACK_B", "https://hooks.example/b")
	t.Setenv("PW_TEST_TEAMS", "https://hooks.example/t")
	n := NotifyConfig{Webhooks: []WebhookConfig{
		{Type: "slack", URLEnv: "PW_TEST_SLACK_A"},
		{Type: "teams", URLEnv: "PW_TEST_TEAMS"},
		{Type: "slack", URLEnv: "PW_TEST_SLACK_B"},
	}}

	ts, _, err := n.Transports()
	if err != nil {
		t.Fatalf("Transports: %v", err)
	}
	var names []string
	for _, tr := range ts {
		names = append(names, tr.Name())
	}
	want := "webhook:slack:0,webhook:teams,webhook:slack:2"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("names: got %s, want %s", got, want)
	}
}
