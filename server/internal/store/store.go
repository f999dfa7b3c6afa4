package store

import (
	"context"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/types"
)

// SampleStore appends immutable samples and answers range and aggregate
// queries. Query results are ordered by timestamp, newest first, regardless
// of append order.
type SampleStore interface {
	// Append persists s, assigning its ID (and Timestamp when zero).
	Append(ctx context.Context, s types.Sample) (types.Sample, error)
	// Sample returns the sample with the given ID or types.ErrNotFound.
	Sample(ctx context.Context, id string) (types.Sample, error)
	// QueryRange returns samples with Timestamp >= since. limit <= 0 means
	// no limit.
	QueryRange(ctx context.Context, since time.Time, limit int) ([]types.Sample, error)
	// Latest returns the newest sample or types.ErrNotFound when empty.
	Latest(ctx context.Context) (types.Sample, error)
	// Aggregate folds every sample with Timestamp >= since.
	Aggregate(ctx context.Context, since time.Time) (types.Stats, error)
	// AggregateWindow folds every sample with from <= Timestamp <= to.
	AggregateWindow(ctx context.Context, from, to time.Time) (types.Stats, error)
}

// AlertFilter selects and pages alert listings.
type AlertFilter struct {
	UnreadOnly bool
	Limit      int // <= 0 means no limit
	Skip       int
}

// AlertStore persists alerts and owns their read/resolved transitions.
type AlertStore interface {
	Create(ctx context.Context, d types.AlertDraft, sampleID string) (types.Alert, error)
	Alert(ctx context.Context, id string) (types.Alert, error)
	// MarkRead and MarkResolved are idempotent; a missing alert yields
	// types.ErrNotFound.
	MarkRead(ctx context.Context, id string) (types.Alert, error)
	MarkResolved(ctx context.Context, id string) (types.Alert, error)
	// MarkNotified records per-transport delivery. A flag never goes back
	// from true to false.
	MarkNotified(ctx context.Context, id string, flags map[string]bool) (types.Alert, error)
	Delete(ctx context.Context, id string) error
	// UnreadCount is computed from stored alerts on every call.
	UnreadCount(ctx context.Context) (int, error)
	// List returns alerts newest first.
	List(ctx context.Context, f AlertFilter) ([]types.Alert, error)
}

// page applies skip/limit to n items and returns the half-open index range.
func page(n, skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if skip > n {
		skip = n
	}
	end := n
	if limit > 0 && skip+limit < n {
		end = skip + limit
	}
	return skip, end
}

// mergeFlags copies dst and sets every true flag from src.
func mergeFlags(dst, src map[string]bool) map[string]bool {
	out := make(map[string]bool, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = out[k] || v
	}
	return out
}
