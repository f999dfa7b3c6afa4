package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/live"
	"github.com/pulsewatch/pulsewatch/server/internal/metrics"
)

// Message is one encoded event handed to a Sink.
type Message struct {
	Key   string // device id; Kafka partitions by it
	Value []byte // JSON types.Event
	Time  time.Time
}

// Sink is an external destination for events.
type Sink interface {
	Name() string
	Write(ctx context.Context, m Message) error
	Close() error
}

// Relay pumps events from a live publisher into a sink.
type Relay struct {
	pub  *live.Publisher
	sink Sink
	log  *zap.Logger
}

// New returns a Relay from pub to sink.
func New(pub *live.Publisher, sink Sink, log *zap.Logger) *Relay {
	return &Relay{pub: pub, sink: sink, log: logging.OrNop(log)}
}

// Run forwards events until ctx is cancelled or the publisher closes.
func (r *Relay) Run(ctx context.Context) {
	name := r.sink.Name()
	r.log.Info("relay: started", zap.String("sink", name))
	defer r.log.Info("relay: stopped", zap.String("sink", name))

	for {
		sub := r.pub.Subscribe()
		if !r.drain(ctx, sub) {
			return
		}
		r.log.Warn("relay: fell behind, resubscribing", zap.String("sink", name), zap.Error(types.ErrPublish))
	}
}

// drain forwards from sub and reports whether the caller should resubscribe.
func (r *Relay) drain(ctx context.Context, sub *live.Subscription) bool {
	defer r.pub.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.C():
			if !ok {
				return sub.Dropped() && ctx.Err() == nil
			}
			r.forward(ctx, ev)
		}
	}
}

func (r *Relay) forward(ctx context.Context, ev types.Event) {
	name := r.sink.Name()
	body, err := json.Marshal(ev)
	if err != nil {
		metrics.RelayWrites.WithLabelValues(name, "failed").Inc()
		r.log.Error("relay: encode event", zap.String("sink", name), zap.Error(err))
		return
	}
	m := Message{Key: ev.Sample.DeviceID, Value: body, Time: ev.Sample.Timestamp}
	if err := r.sink.Write(ctx, m); err != nil {
		metrics.RelayWrites.WithLabelValues(name, "failed").Inc()
		r.log.Error("relay: sink write failed",
			zap.String("sink", name),
			zap.String("sample_id", ev.Sample.ID),
			zap.Error(fmt.Errorf("%w: %w", types.ErrPublish, err)),
		)
		return
	}
	metrics.RelayWrites.WithLabelValues(name, "ok").Inc()
}

// CloseAll closes every sink and combines their errors.
func CloseAll(sinks ...Sink) error {
	var err error
	for _, s := range sinks {
		if cerr := s.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", s.Name(), cerr))
		}
	}
	return err
}
