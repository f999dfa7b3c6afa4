package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/store"
)

const alertColumns = `id, kind, severity, message, sample_id, is_read, is_resolved, notification_sent, created_at`

// Alerts implements store.AlertStore on the alerts table. Flag updates are
// single UPDATE statements, so the unread count is always consistent with
// the rows.
type Alerts struct {
	db *DB
}

func (s *Alerts) Create(ctx context.Context, d types.AlertDraft, sampleID string) (types.Alert, error) {
	if !d.Kind.Valid() || !d.Severity.Valid() {
		return types.Alert{}, fmt.Errorf("%w: invalid draft %v/%v", types.ErrPersistence, d.Kind, d.Severity)
	}
	a := types.Alert{
		ID:        uuid.NewString(),
		Kind:      d.Kind,
		Severity:  d.Severity,
		Message:   d.Message,
		SampleID:  sampleID,
		Notified:  map[string]bool{},
		CreatedAt: s.db.now().UTC(),
	}
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO alerts (id, kind, severity, message, sample_id, notification_sent, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.Kind.String(), a.Severity.String(), a.Message, a.SampleID, a.Notified, a.CreatedAt)
	if err != nil {
		return types.Alert{}, fmt.Errorf("%w: insert alert: %w", types.ErrPersistence, err)
	}
	return a, nil
}

func (s *Alerts) Alert(ctx context.Context, id string) (types.Alert, error) {
	if uuid.Validate(id) != nil {
		return types.Alert{}, notFound(id)
	}
	return s.one(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
}

func (s *Alerts) MarkRead(ctx context.Context, id string) (types.Alert, error) {
	return s.update(ctx, `SET is_read = TRUE`, id)
}

func (s *Alerts) MarkResolved(ctx context.Context, id string) (types.Alert, error) {
	return s.update(ctx, `SET is_resolved = TRUE`, id)
}

// MarkNotified ORs each flag into the stored JSON object.
func (s *Alerts) MarkNotified(ctx context.Context, id string, flags map[string]bool) (types.Alert, error) {
	// Keys already true keep their value; the rest take the incoming value.
	return s.update(ctx,
		`SET notification_sent = $2::jsonb || (
			SELECT COALESCE(jsonb_object_agg(key, value), '{}'::jsonb)
			  FROM jsonb_each(notification_sent) WHERE value = 'true'::jsonb)`,
		id, flags)
}

func (s *Alerts) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return notFound(id)
	}
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete alert: %w", types.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (s *Alerts) UnreadCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE NOT is_read`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count unread: %w", types.ErrPersistence, err)
	}
	return n, nil
}

func (s *Alerts) List(ctx context.Context, f store.AlertFilter) ([]types.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts`
	if f.UnreadOnly {
		q += ` WHERE NOT is_read`
	}
	q += ` ORDER BY created_at DESC, seq DESC OFFSET $1`
	args := []any{max(f.Skip, 0)}
	if f.Limit > 0 {
		q += ` LIMIT $2`
		args = append(args, f.Limit)
	}

	rows, err := s.db.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list alerts: %w", types.ErrPersistence, err)
	}
	defer rows.Close()

	out := make([]types.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan alert: %w", types.ErrPersistence, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list alerts: %w", types.ErrPersistence, err)
	}
	return out, nil
}

func (s *Alerts) update(ctx context.Context, set string, id string, extra ...any) (types.Alert, error) {
	if uuid.Validate(id) != nil {
		return types.Alert{}, notFound(id)
	}
	args := append([]any{id}, extra...)
	return s.one(ctx, `UPDATE alerts `+set+` WHERE id = $1 RETURNING `+alertColumns, args...)
}

func (s *Alerts) one(ctx context.Context, q string, args ...any) (types.Alert, error) {
	a, err := scanAlert(s.db.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Alert{}, notFound(fmt.Sprint(args[0]))
	}
	if err != nil {
		return types.Alert{}, fmt.Errorf("%w: alert: %w", types.ErrPersistence, err)
	}
	return a, nil
}

func scanAlert(row pgx.Row) (types.Alert, error) {
	var (
		a              types.Alert
		kind, severity string
	)
	if err := row.Scan(&a.ID, &kind, &severity, &a.Message, &a.SampleID,
		&a.Read, &a.Resolved, &a.Notified, &a.CreatedAt); err != nil {
		return types.Alert{}, err
	}
	var err error
	if a.Kind, err = types.ParseAlertKind(kind); err != nil {
		return types.Alert{}, err
	}
	if a.Severity, err = types.ParseSeverity(severity); err != nil {
		return types.Alert{}, err
	}
	if a.Notified == nil {
		a.Notified = map[string]bool{}
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func notFound(id string) error {
	return fmt.Errorf("alert %s: %w", id, types.ErrNotFound)
}

var _ store.AlertStore = (*Alerts)(nil)
