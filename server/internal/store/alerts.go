package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/pulsewatch/pkg/types"
)

// Alerts is a thread-safe in-memory AlertStore.
type Alerts struct {
	mu    sync.RWMutex
	byID  map[string]*types.Alert
	order []string // creation order, oldest first
	now   func() time.Time
}

// NewAlerts returns an empty in-memory alert store.
func NewAlerts() *Alerts {
	return &Alerts{
		byID: make(map[string]*types.Alert),
		now:  time.Now,
	}
}

// Create persists a new unread, unresolved alert for sampleID.
func (st *Alerts) Create(_ context.Context, d types.AlertDraft, sampleID string) (types.Alert, error) {
	if !d.Kind.Valid() || !d.Severity.Valid() {
		return types.Alert{}, fmt.Errorf("%w: invalid draft %v/%v", types.ErrPersistence, d.Kind, d.Severity)
	}
	a := &types.Alert{
		ID:        uuid.NewString(),
		Kind:      d.Kind,
		Severity:  d.Severity,
		Message:   d.Message,
		SampleID:  sampleID,
		Notified:  map[string]bool{},
		CreatedAt: st.now().UTC(),
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.byID[a.ID] = a
	st.order = append(st.order, a.ID)
	return cloneAlert(a), nil
}

// Alert returns the alert with the given ID.
func (st *Alerts) Alert(_ context.Context, id string) (types.Alert, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	a, ok := st.byID[id]
	if !ok {
		return types.Alert{}, notFound(id)
	}
	return cloneAlert(a), nil
}

// MarkRead sets Read. Calling it on an already-read alert is a no-op.
func (st *Alerts) MarkRead(_ context.Context, id string) (types.Alert, error) {
	return st.update(id, func(a *types.Alert) { a.Read = true })
}

// MarkResolved sets Resolved. Calling it on a resolved alert is a no-op.
func (st *Alerts) MarkResolved(_ context.Context, id string) (types.Alert, error) {
	return st.update(id, func(a *types.Alert) { a.Resolved = true })
}

// MarkNotified merges per-transport delivery flags into the alert.
func (st *Alerts) MarkNotified(_ context.Context, id string, flags map[string]bool) (types.Alert, error) {
	return st.update(id, func(a *types.Alert) { a.Notified = mergeFlags(a.Notified, flags) })
}

// Delete removes the alert.
func (st *Alerts) Delete(_ context.Context, id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.byID[id]; !ok {
		return notFound(id)
	}
	delete(st.byID, id)
	st.order = slices.DeleteFunc(st.order, func(v string) bool { return v == id })
	return nil
}

// UnreadCount counts alerts that have not been read.
func (st *Alerts) UnreadCount(_ context.Context) (int, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	n := 0
	for _, a := range st.byID {
		if !a.Read {
			n++
		}
	}
	return n, nil
}

// List returns alerts newest first, filtered and paged by f.
func (st *Alerts) List(_ context.Context, f AlertFilter) ([]types.Alert, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	matched := make([]*types.Alert, 0, len(st.order))
	for i := len(st.order) - 1; i >= 0; i-- {
		a := st.byID[st.order[i]]
		if f.UnreadOnly && a.Read {
			continue
		}
		matched = append(matched, a)
	}
	lo, hi := page(len(matched), f.Skip, f.Limit)
	out := make([]types.Alert, 0, hi-lo)
	for _, a := range matched[lo:hi] {
		out = append(out, cloneAlert(a))
	}
	return out, nil
}

func (st *Alerts) update(id string, fn func(*types.Alert)) (types.Alert, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	a, ok := st.byID[id]
	if !ok {
		return types.Alert{}, notFound(id)
	}
	fn(a)
	return cloneAlert(a), nil
}

func cloneAlert(a *types.Alert) types.Alert {
	cp := *a
	cp.Notified = mergeFlags(a.Notified, nil)
	return cp
}

func notFound(id string) error {
	return fmt.Errorf("alert %s: %w", id, types.ErrNotFound)
}

var _ AlertStore = (*Alerts)(nil)
