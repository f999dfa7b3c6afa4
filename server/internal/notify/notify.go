package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/metrics"
)

// DefaultTimeout bounds a single transport delivery.
const DefaultTimeout = 10 * time.Second

// Transport is one outbound notification channel.
type Transport interface {
	// Name identifies the transport in logs, metrics and alert flags.
	Name() string
	// SendEmergency delivers the emergency notice for s.
	SendEmergency(ctx context.Context, s types.Sample) error
}

// Result is the outcome of one transport for one dispatch.
type Result struct {
	Transport string
	Err       error
}

// Outcome collects the per-transport results of one dispatch, in transport
// registration order.
type Outcome struct {
	Results []Result
}

// Flags maps each transport name to whether it delivered. Results sharing a
// name count as delivered when any of them succeeded.
func (o Outcome) Flags() map[string]bool {
	out := make(map[string]bool, len(o.Results))
	for _, r := range o.Results {
		out[r.Transport] = out[r.Transport] || r.Err == nil
	}
	return out
}

// Err combines every transport failure, or returns nil.
func (o Outcome) Err() error {
	var err error
	for _, r := range o.Results {
		if r.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", r.Transport, r.Err))
		}
	}
	return err
}

// Dispatcher fans an emergency out to every configured transport. Transports
// run concurrently and independently; there are no retries.
//
// Dispatcher is safe for concurrent use. The transport set may be replaced
// at runtime with Reload.
type Dispatcher struct {
	mu         sync.RWMutex
	transports []Transport
	timeout    time.Duration
	log        *zap.Logger
}

// NewDispatcher returns a Dispatcher over transports. A zero timeout means
// DefaultTimeout.
func NewDispatcher(log *zap.Logger, timeout time.Duration, transports ...Transport) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		transports: transports,
		timeout:    timeout,
		log:        logging.OrNop(log),
	}
}

// Reload swaps the transport set. In-flight dispatches keep the old set.
func (d *Dispatcher) Reload(transports ...Transport) {
	d.mu.Lock()
	d.transports = transports
	d.mu.Unlock()
	d.log.Info("notify: transports reloaded", zap.Int("count", len(transports)))
}

// Transports returns the names of the current transports.
func (d *Dispatcher) Transports() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.transports))
	for _, t := range d.transports {
		names = append(names, t.Name())
	}
	return names
}

// DispatchEmergency sends the emergency notice for s through every transport
// and waits for all of them. Failures are logged and returned in the
// Outcome; they never affect other transports.
func (d *Dispatcher) DispatchEmergency(ctx context.Context, s types.Sample) Outcome {
	d.mu.RLock()
	transports := d.transports
	d.mu.RUnlock()

	results := make([]Result, len(transports))
	var wg sync.WaitGroup
	for i, t := range transports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.send(ctx, t, s)
		}()
	}
	wg.Wait()
	return Outcome{Results: results}
}

func (d *Dispatcher) send(ctx context.Context, t Transport, s types.Sample) (res Result) {
	res.Transport = t.Name()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: panic: %v", types.ErrNotification, r)
			d.fail(res, s)
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := t.SendEmergency(tctx, s)
	metrics.NotificationDuration.WithLabelValues(res.Transport).Observe(time.Since(start).Seconds())
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", types.ErrNotification, err)
		d.fail(res, s)
		return res
	}

	metrics.NotificationsTotal.WithLabelValues(res.Transport, "sent").Inc()
	d.log.Info("notify: emergency delivered",
		zap.String("transport", res.Transport),
		zap.String("sample_id", s.ID),
	)
	return res
}

func (d *Dispatcher) fail(res Result, s types.Sample) {
	metrics.NotificationsTotal.WithLabelValues(res.Transport, "failed").Inc()
	d.log.Error("notify: transport delivery failed",
		zap.String("transport", res.Transport),
		zap.String("sample_id", s.ID),
		zap.String("device_id", s.DeviceID),
		zap.Error(res.Err),
	)
}
