// Package types defines the domain types shared by the server and the agent:
// samples, alerts, aggregate statistics, live events and the error taxonomy.
// These are the canonical in-memory representations; JSON tags match the
// REST and gRPC wire formats.
package types
