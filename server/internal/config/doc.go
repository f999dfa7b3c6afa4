// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Sections:
//   - grpc_port, http_port: listeners (default 50051, 8080)
//   - log:     level and optional rotated file
//   - storage: memory | postgres; the DSN comes from the env var in dsn_env
//   - live:    per-subscriber queue_size (default 100)
//   - ingest:  default_device_id
//   - notify:  transport timeout, email, sms and webhooks
//   - relay:   kafka and amqp event relays
//
// Secrets are never stored in the file; *_env keys name the environment
// variables holding them. Load(path) applies defaults before unmarshalling,
// then validates. Watch re-loads the file on change.
package config
