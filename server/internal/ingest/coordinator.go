package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/alerts"
	"github.com/pulsewatch/pulsewatch/server/internal/metrics"
	"github.com/pulsewatch/pulsewatch/server/internal/notify"
	"github.com/pulsewatch/pulsewatch/server/internal/store"
)

// Dispatcher sends emergency notifications. *notify.Dispatcher satisfies it.
type Dispatcher interface {
	DispatchEmergency(ctx context.Context, s types.Sample) notify.Outcome
}

// Publisher fans events out to live subscribers. *live.Publisher satisfies it.
type Publisher interface {
	Publish(ev types.Event)
}

// Result is what a successful ingestion produced.
type Result struct {
	Sample types.Sample  `json:"sample"`
	Alerts []types.Alert `json:"alerts"`
}

// Coordinator orchestrates ingestion. It is safe for concurrent use.
type Coordinator struct {
	samples       store.SampleStore
	alertStore    store.AlertStore
	dispatcher    Dispatcher
	publisher     Publisher
	defaultDevice string
	log           *zap.Logger
	now           func() time.Time
}

// New returns a Coordinator. dispatcher and publisher may be nil, in which
// case the notify or publish step is skipped. An empty defaultDevice means
// types.DefaultDeviceID.
func New(samples store.SampleStore, alertStore store.AlertStore, dispatcher Dispatcher, publisher Publisher, defaultDevice string, log *zap.Logger) *Coordinator {
	if defaultDevice == "" {
		defaultDevice = types.DefaultDeviceID
	}
	return &Coordinator{
		samples:       samples,
		alertStore:    alertStore,
		dispatcher:    dispatcher,
		publisher:     publisher,
		defaultDevice: defaultDevice,
		log:           logging.OrNop(log),
		now:           time.Now,
	}
}

// Ingest validates r and runs it through the pipeline.
//
// A validation failure returns a *types.ValidationError and persists nothing.
// A store failure returns an error wrapping types.ErrPersistence; if the
// sample was already appended it stays, and the returned Result carries what
// was stored. Notification and publish failures are logged and never
// returned.
func (c *Coordinator) Ingest(ctx context.Context, r types.Reading) (Result, error) {
	start := time.Now()
	c.log.Debug("ingest: reading received", zap.Stringer("stage", StageReceived), zap.String("device_id", r.DeviceID))

	sample, err := validate(r, c.defaultDevice)
	if err != nil {
		c.finish(StageRejected, start)
		c.log.Info("ingest: reading rejected",
			zap.Stringer("stage", StageRejected),
			zap.String("device_id", r.DeviceID),
			zap.Error(err),
		)
		return Result{}, err
	}

	c.log.Debug("ingest: reading validated", zap.Stringer("stage", StageValidated), zap.String("device_id", sample.DeviceID))
	sample.Timestamp = c.now().UTC()
	sample.IsEmergency = alerts.IsEmergency(sample)

	saved, err := c.samples.Append(ctx, sample)
	if err != nil {
		c.finish(StagePersisted, start)
		return Result{}, c.storeErr(StagePersisted, "append sample", err, zap.String("device_id", sample.DeviceID))
	}

	// The sample is durable: finish the pipeline regardless of the caller.
	ctx = context.WithoutCancel(ctx)

	drafts := alerts.Evaluate(saved)
	res := Result{Sample: saved, Alerts: make([]types.Alert, 0, len(drafts))}
	emergency := -1
	for _, d := range drafts {
		a, err := c.alertStore.Create(ctx, d, saved.ID)
		if err != nil {
			c.finish(StageEvaluated, start)
			return res, c.storeErr(StageEvaluated, "create "+d.Kind.String()+" alert", err, zap.String("sample_id", saved.ID))
		}
		metrics.AlertsCreated.WithLabelValues(d.Kind.String()).Inc()
		if d.Kind == types.KindEmergency {
			emergency = len(res.Alerts)
		}
		res.Alerts = append(res.Alerts, a)
	}

	if emergency >= 0 && c.dispatcher != nil {
		c.notify(ctx, &res, emergency)
	}

	if c.publisher != nil {
		c.publisher.Publish(types.Event{Sample: res.Sample, Alerts: append([]types.Alert{}, res.Alerts...)})
		c.log.Debug("ingest: event published", zap.Stringer("stage", StagePublished), zap.String("sample_id", saved.ID))
	}

	c.finish(StageDone, start)
	c.log.Info("ingest: sample ingested",
		zap.Stringer("stage", StageDone),
		zap.String("sample_id", saved.ID),
		zap.String("device_id", saved.DeviceID),
		zap.Int("alerts", len(res.Alerts)),
		zap.Bool("emergency", saved.IsEmergency),
	)
	return res, nil
}

// notify dispatches the emergency once and records the per-transport outcome
// on the emergency alert at res.Alerts[i].
func (c *Coordinator) notify(ctx context.Context, res *Result, i int) {
	out := c.dispatcher.DispatchEmergency(ctx, res.Sample)
	if err := out.Err(); err != nil {
		c.log.Warn("ingest: emergency notification incomplete",
			zap.Stringer("stage", StageNotified),
			zap.String("sample_id", res.Sample.ID),
			zap.Error(err),
		)
	}

	id := res.Alerts[i].ID
	updated, err := c.alertStore.MarkNotified(ctx, id, out.Flags())
	if err != nil {
		c.log.Error("ingest: record notification outcome",
			zap.Stringer("stage", StageNotified),
			zap.String("alert_id", id),
			zap.Error(err),
		)
		return
	}
	res.Alerts[i] = updated
}

func (c *Coordinator) storeErr(stage Stage, op string, err error, fields ...zap.Field) error {
	if !errors.Is(err, types.ErrPersistence) {
		err = fmt.Errorf("%w: %w", types.ErrPersistence, err)
	}
	err = fmt.Errorf("ingest: %s: %w", op, err)
	c.log.Error("ingest: store failure", append(fields, zap.Stringer("stage", stage), zap.Error(err))...)
	return err
}

func (c *Coordinator) finish(stage Stage, start time.Time) {
	metrics.IngestTotal.WithLabelValues(stage.String()).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
}
