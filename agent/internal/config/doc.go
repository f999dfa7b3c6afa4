// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: the `agent:` section parsed from YAML
//   - AgentConfig: server_endpoint, poll_interval, buffer_size, log, devices[],
//     server_tls
//   - Device: id, endpoint, format (json|prometheus), auth, tls
//   - AuthConfig: mode (apikey|bearer|basic|none), header, key_env, token_env,
//     username, password_env; Key(), Token() and Password() resolve from
//     environment variables
//
// Load(path) reads the YAML file, applies defaults (5s poll, 1000 buffer),
// then validates required fields and enums.
//
// Watch(ctx, path, log, onChange) uses fsnotify to detect file changes and
// calls onChange with the newly parsed Config. It re-adds the watch after
// each event so atomic-save editors (vim, VS Code) keep working.
package config
