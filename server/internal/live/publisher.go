package live

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/metrics"
)

// DefaultQueueSize is the per-subscriber queue capacity used when none is
// configured.
const DefaultQueueSize = 100

// Subscription is one subscriber's view of the event stream.
type Subscription struct {
	id      string
	ch      chan types.Event
	mu      sync.Mutex
	closed  bool
	dropped bool
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string { return s.id }

// C yields events in publish order. It is closed when the subscription is
// removed.
func (s *Subscription) C() <-chan types.Event { return s.ch }

// Dropped reports whether the subscription was removed for falling behind.
func (s *Subscription) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// offer queues ev without blocking. It reports false when the queue is full
// or the subscription is already closed.
func (s *Subscription) offer(ev types.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// close closes the channel once; it reports whether this call closed it.
func (s *Subscription) close(dropped bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.dropped = dropped
	close(s.ch)
	return true
}

// Publisher broadcasts events to every current subscriber.
// It is safe for concurrent use.
type Publisher struct {
	queueSize int
	log       *zap.Logger

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// New returns a Publisher whose subscribers buffer up to queueSize events.
// A non-positive queueSize means DefaultQueueSize.
func New(log *zap.Logger, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Publisher{
		queueSize: queueSize,
		log:       logging.OrNop(log),
		subs:      make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber.
func (p *Publisher) Subscribe() *Subscription {
	s := &Subscription{
		id: uuid.NewString(),
		ch: make(chan types.Event, p.queueSize),
	}
	p.mu.Lock()
	p.subs[s] = struct{}{}
	n := len(p.subs)
	metrics.LiveSubscribers.Set(float64(n))
	p.mu.Unlock()

	p.log.Debug("live: subscriber added", zap.String("subscription", s.id), zap.Int("subscribers", n))
	return s
}

// Unsubscribe removes s and closes its channel. Calling it more than once,
// or after s was dropped, is a no-op.
func (p *Publisher) Unsubscribe(s *Subscription) {
	if p.remove(s) {
		s.close(false)
	}
}

// Publish delivers ev to every subscriber without blocking. Subscribers whose
// queue is full are dropped and disconnected.
func (p *Publisher) Publish(ev types.Event) {
	if ev.Alerts == nil {
		ev.Alerts = []types.Alert{}
	}

	p.mu.RLock()
	targets := make([]*Subscription, 0, len(p.subs))
	for s := range p.subs {
		targets = append(targets, s)
	}
	p.mu.RUnlock()

	for _, s := range targets {
		if s.offer(ev) {
			continue
		}
		if p.remove(s) && s.close(true) {
			metrics.LiveSubscribersDropped.Inc()
			p.log.Warn("live: slow subscriber dropped",
				zap.String("subscription", s.id),
				zap.Int("queue_size", p.queueSize),
				zap.Error(types.ErrPublish),
			)
		}
	}
	metrics.LiveEventsPublished.Inc()
}

// Count returns the number of current subscribers.
func (p *Publisher) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// Close disconnects every subscriber.
func (p *Publisher) Close() {
	p.mu.Lock()
	subs := p.subs
	p.subs = make(map[*Subscription]struct{})
	metrics.LiveSubscribers.Set(0)
	p.mu.Unlock()

	for s := range subs {
		s.close(false)
	}
}

func (p *Publisher) remove(s *Subscription) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.subs[s]
	if ok {
		delete(p.subs, s)
		metrics.LiveSubscribers.Set(float64(len(p.subs)))
	}
	return ok
}
