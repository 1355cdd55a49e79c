package services

import (
	"sync"
	"time"

	"pulse/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Subscription is one subscriber's stream. Events are delivered on C in
// publish order. When the queue is full the oldest pending event is dropped,
// except an undelivered snapshot, which is always delivered first.
type Subscription struct {
	ID     string
	Tenant string
	C      <-chan models.Event

	mu     sync.Mutex
	queue  []models.Event
	size   int
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func newSubscription(tenant string, size int) (*Subscription, chan models.Event) {
	if size < 2 {
		size = 2
	}
	out := make(chan models.Event)
	return &Subscription{
		ID:     uuid.NewString(),
		Tenant: tenant,
		C:      out,
		queue:  make([]models.Event, 0, size),
		size:   size,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, out
}

// Done is closed once the subscription is removed
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// offer enqueues ev without blocking and reports whether an older event had
// to be dropped to make room
func (s *Subscription) offer(ev models.Event) (dropped bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if len(s.queue) >= s.size {
		victim := 0
		if s.queue[0].Type == models.EventSnapshot {
			victim = 1
		}
		s.queue = append(s.queue[:victim], s.queue[victim+1:]...)
		dropped = true
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return dropped
}

func (s *Subscription) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) next() (models.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return models.Event{}, false
	}
	ev := s.queue[0]
	s.queue[0] = models.Event{}
	s.queue = s.queue[1:]
	return ev, true
}

// pump moves queued events to the subscriber channel until the
// subscription is closed
func (s *Subscription) pump(out chan<- models.Event) {
	defer close(out)
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			ev, ok := s.next()
			if !ok {
				break
			}
			select {
			case out <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	close(s.done)
}

// Broadcaster fans events out to per-tenant subscribers. Publishing never
// blocks on a slow subscriber.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[string]*Subscription
	queueSize int
	telemetry *Telemetry
	logger    *logrus.Logger
	dropLog   rate.Sometimes
}

// NewBroadcaster creates a broadcaster whose subscribers buffer up to
// queueSize events each
func NewBroadcaster(queueSize int, telemetry *Telemetry, logger *logrus.Logger) *Broadcaster {
	return &Broadcaster{
		subs:      make(map[string]*Subscription),
		queueSize: queueSize,
		telemetry: telemetry,
		logger:    logger,
		dropLog:   rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Subscribe registers a subscriber for tenant. The snapshot is built while
// publishers are held off, so it is the first event the subscriber sees.
// Publish calls do not cover state changes made before they run: a caller
// that updates state and publishes in two steps must hold off Subscribe
// across both, or an event can show up in the snapshot and again live.
func (b *Broadcaster) Subscribe(tenant string, snapshot func() models.Snapshot) *Subscription {
	sub, out := newSubscription(tenant, b.queueSize)

	b.mu.Lock()
	snap := snapshot()
	sub.offer(models.Event{
		Type:      models.EventSnapshot,
		Timestamp: time.Now(),
		Snapshot:  &snap,
	})
	b.subs[sub.ID] = sub
	count := len(b.subs)
	b.mu.Unlock()

	go sub.pump(out)

	b.telemetry.subscriberCount(count)
	if b.logger != nil {
		b.logger.WithField("tenant", tenant).Infof("[WS] Subscriber connected: %s (total: %d)", sub.ID, count)
	}
	return sub
}

// Unsubscribe stops delivery to a subscriber. Events still queued are
// discarded.
func (b *Broadcaster) Unsubscribe(id string) bool {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	count := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return false
	}
	sub.close()
	b.telemetry.subscriberCount(count)
	if b.logger != nil {
		b.logger.WithField("tenant", sub.Tenant).Infof("[WS] Subscriber disconnected: %s (total: %d)", id, count)
	}
	return true
}

// Publish offers ev to every subscriber whose tenant passes visible
func (b *Broadcaster) Publish(ev models.Event, visible func(tenant string) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if visible != nil && !visible(sub.Tenant) {
			continue
		}
		if sub.offer(ev) {
			b.telemetry.dropped()
			if b.logger != nil {
				b.dropLog.Do(func() {
					b.logger.WithField("subscriber", sub.ID).Warn("[WS] Subscriber queue full, dropping oldest event")
				})
			}
		}
	}
}

// Count returns the number of live subscribers
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Pending returns the number of events queued across all subscribers
func (b *Broadcaster) Pending() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, sub := range b.subs {
		total += sub.pending()
	}
	return total
}

// Close removes every subscriber
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	b.telemetry.subscriberCount(0)
}
