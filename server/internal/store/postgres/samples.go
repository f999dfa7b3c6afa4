package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/store"
)

const sampleColumns = `id, pulse_rate, spo2, steps, calories, device_id, is_emergency, ts`

// Samples implements store.SampleStore on the samples table.
type Samples struct {
	db *DB
}

func (s *Samples) Append(ctx context.Context, smp types.Sample) (types.Sample, error) {
	if smp.ID == "" {
		smp.ID = uuid.NewString()
	}
	if smp.Timestamp.IsZero() {
		smp.Timestamp = s.db.now().UTC()
	}
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO samples (`+sampleColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		smp.ID, smp.PulseRate, smp.SpO2, smp.Steps, smp.Calories, smp.DeviceID, smp.IsEmergency, smp.Timestamp)
	if err != nil {
		return types.Sample{}, fmt.Errorf("%w: insert sample: %w", types.ErrPersistence, err)
	}
	return smp, nil
}

func (s *Samples) Sample(ctx context.Context, id string) (types.Sample, error) {
	if uuid.Validate(id) != nil {
		return types.Sample{}, fmt.Errorf("sample %s: %w", id, types.ErrNotFound)
	}
	row := s.db.pool.QueryRow(ctx, `SELECT `+sampleColumns+` FROM samples WHERE id = $1`, id)
	smp, err := scanSample(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Sample{}, fmt.Errorf("sample %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return types.Sample{}, fmt.Errorf("%w: get sample: %w", types.ErrPersistence, err)
	}
	return smp, nil
}

func (s *Samples) QueryRange(ctx context.Context, since time.Time, limit int) ([]types.Sample, error) {
	q := `SELECT ` + sampleColumns + ` FROM samples WHERE ts >= $1 ORDER BY ts DESC, seq DESC`
	args := []any{since}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query samples: %w", types.ErrPersistence, err)
	}
	defer rows.Close()

	out := make([]types.Sample, 0)
	for rows.Next() {
		smp, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan sample: %w", types.ErrPersistence, err)
		}
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query samples: %w", types.ErrPersistence, err)
	}
	return out, nil
}

func (s *Samples) Latest(ctx context.Context) (types.Sample, error) {
	row := s.db.pool.QueryRow(ctx, `SELECT `+sampleColumns+` FROM samples ORDER BY ts DESC, seq DESC LIMIT 1`)
	smp, err := scanSample(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Sample{}, fmt.Errorf("latest sample: %w", types.ErrNotFound)
	}
	if err != nil {
		return types.Sample{}, fmt.Errorf("%w: latest sample: %w", types.ErrPersistence, err)
	}
	return smp, nil
}

func (s *Samples) Aggregate(ctx context.Context, since time.Time) (types.Stats, error) {
	return s.aggregate(ctx, `WHERE ts >= $1`, since)
}

func (s *Samples) AggregateWindow(ctx context.Context, from, to time.Time) (types.Stats, error) {
	if to.IsZero() {
		return s.Aggregate(ctx, from)
	}
	return s.aggregate(ctx, `WHERE ts >= $1 AND ts <= $2`, from, to)
}

func (s *Samples) aggregate(ctx context.Context, where string, args ...any) (types.Stats, error) {
	var st types.Stats
	err := s.db.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(pulse_rate), 0), COALESCE(MIN(pulse_rate), 0), COALESCE(MAX(pulse_rate), 0),
		       COALESCE(AVG(spo2), 0), COALESCE(MIN(spo2), 0), COALESCE(MAX(spo2), 0),
		       COALESCE(SUM(steps), 0)::BIGINT, COALESCE(SUM(calories), 0),
		       COUNT(*), COUNT(*) FILTER (WHERE is_emergency)
		  FROM samples `+where, args...).Scan(
		&st.AveragePulse, &st.MinPulse, &st.MaxPulse,
		&st.AverageSpO2, &st.MinSpO2, &st.MaxSpO2,
		&st.TotalSteps, &st.TotalCalories,
		&st.Count, &st.EmergencyCount,
	)
	if err != nil {
		return types.Stats{}, fmt.Errorf("%w: aggregate samples: %w", types.ErrPersistence, err)
	}
	return st, nil
}

func scanSample(row pgx.Row) (types.Sample, error) {
	var smp types.Sample
	err := row.Scan(&smp.ID, &smp.PulseRate, &smp.SpO2, &smp.Steps, &smp.Calories,
		&smp.DeviceID, &smp.IsEmergency, &smp.Timestamp)
	smp.Timestamp = smp.Timestamp.UTC()
	return smp, err
}

var _ store.SampleStore = (*Samples)(nil)
