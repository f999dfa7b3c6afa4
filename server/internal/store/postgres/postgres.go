// Package postgres implements the sample and alert stores on PostgreSQL via
// a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables used by the stores. Open applies it when
// migrate is true.
const Schema = `
CREATE TABLE IF NOT EXISTS samples (
	id           UUID PRIMARY KEY,
	pulse_rate   DOUBLE PRECISION NOT NULL,
	spo2         DOUBLE PRECISION NOT NULL,
	steps        BIGINT NOT NULL DEFAULT 0,
	calories     DOUBLE PRECISION NOT NULL DEFAULT 0,
	device_id    TEXT NOT NULL,
	is_emergency BOOLEAN NOT NULL DEFAULT FALSE,
	ts           TIMESTAMPTZ NOT NULL,
	seq          BIGSERIAL
);
CREATE INDEX IF NOT EXISTS samples_ts_idx ON samples (ts DESC, seq DESC);

CREATE TABLE IF NOT EXISTS alerts (
	id                UUID PRIMARY KEY,
	kind              TEXT NOT NULL,
	severity          TEXT NOT NULL,
	message           TEXT NOT NULL,
	sample_id         UUID NOT NULL,
	is_read           BOOLEAN NOT NULL DEFAULT FALSE,
	is_resolved       BOOLEAN NOT NULL DEFAULT FALSE,
	notification_sent JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at        TIMESTAMPTZ NOT NULL,
	seq               BIGSERIAL
);
CREATE INDEX IF NOT EXISTS alerts_created_idx ON alerts (created_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS alerts_unread_idx ON alerts (is_read) WHERE NOT is_read;
`

const pingTimeout = 5 * time.Second

// DB owns the connection pool shared by the sample and alert stores.
type DB struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects to dsn, verifies the connection and optionally applies Schema.
func Open(ctx context.Context, dsn string, migrate bool) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	db := &DB{pool: pool, now: time.Now}
	if migrate {
		if _, err := pool.Exec(ctx, Schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres: apply schema: %w", err)
		}
	}
	return db, nil
}

// Close releases the pool.
func (db *DB) Close() { db.pool.Close() }

// Samples returns the sample store backed by db.
func (db *DB) Samples() *Samples { return &Samples{db: db} }

// Alerts returns the alert store backed by db.
func (db *DB) Alerts() *Alerts { return &Alerts{db: db} }
