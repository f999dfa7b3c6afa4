// Package store defines the sample and alert store ports and their
// in-memory implementations. The PostgreSQL implementations live in
// store/postgres.
//
// Samples are append-only; queries return them newest first by timestamp
// with ties broken by append order. Alerts carry monotonic read/resolved
// flags, and the unread count is always derived from the stored alerts.
//
// Both memory stores are safe for concurrent use and take an injectable
// clock for deterministic tests.
package store
