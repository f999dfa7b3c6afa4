package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/pulsewatch/pkg/types"
)

// Samples is a thread-safe in-memory SampleStore. Samples are kept sorted by
// timestamp so range queries walk the tail of the slice.
type Samples struct {
	mu   sync.RWMutex
	data []types.Sample // ascending by Timestamp, ties in append order
	byID map[string]types.Sample
	now  func() time.Time // injectable for deterministic tests
}

// NewSamples returns an empty in-memory sample store.
func NewSamples() *Samples {
	return &Samples{
		byID: make(map[string]types.Sample),
		now:  time.Now,
	}
}

// Append stores s and returns it with its assigned ID.
func (st *Samples) Append(_ context.Context, s types.Sample) (types.Sample, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = st.now().UTC()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, dup := st.byID[s.ID]; dup {
		return types.Sample{}, fmt.Errorf("%w: sample %s already exists", types.ErrPersistence, s.ID)
	}
	i := sort.Search(len(st.data), func(i int) bool {
		return st.data[i].Timestamp.After(s.Timestamp)
	})
	st.data = slices.Insert(st.data, i, s)
	st.byID[s.ID] = s
	return s, nil
}

// Sample returns the sample with the given ID.
func (st *Samples) Sample(_ context.Context, id string) (types.Sample, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byID[id]
	if !ok {
		return types.Sample{}, fmt.Errorf("sample %s: %w", id, types.ErrNotFound)
	}
	return s, nil
}

// QueryRange returns samples newer than or equal to since, newest first.
func (st *Samples) QueryRange(_ context.Context, since time.Time, limit int) ([]types.Sample, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]types.Sample, 0)
	for i := len(st.data) - 1; i >= 0; i-- {
		s := st.data[i]
		if s.Timestamp.Before(since) {
			break
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

// Latest returns the sample with the greatest timestamp.
func (st *Samples) Latest(_ context.Context) (types.Sample, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if len(st.data) == 0 {
		return types.Sample{}, fmt.Errorf("latest sample: %w", types.ErrNotFound)
	}
	return st.data[len(st.data)-1], nil
}

// Aggregate folds every sample with Timestamp >= since.
func (st *Samples) Aggregate(ctx context.Context, since time.Time) (types.Stats, error) {
	return st.AggregateWindow(ctx, since, time.Time{})
}

// AggregateWindow folds samples with from <= Timestamp <= to. A zero to
// leaves the window open-ended.
func (st *Samples) AggregateWindow(_ context.Context, from, to time.Time) (types.Stats, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var acc types.Accumulator
	for i := len(st.data) - 1; i >= 0; i-- {
		s := st.data[i]
		if s.Timestamp.Before(from) {
			break
		}
		if !to.IsZero() && s.Timestamp.After(to) {
			continue
		}
		acc.Add(s)
	}
	return acc.Stats(), nil
}

// Count returns the number of stored samples.
func (st *Samples) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.data)
}

var _ SampleStore = (*Samples)(nil)
