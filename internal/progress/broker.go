// Package progress fans live progress of scans and batch checks out to
// subscribers. State is in memory only and holds the last event per id.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one progress update.
type Event struct {
	Phase   string    `json:"phase"`
	Step    int       `json:"step"`
	Total   int       `json:"total"`
	Message string    `json:"message,omitempty"`
	Done    bool      `json:"done"`
	Error   string    `json:"error,omitempty"`
	Result  any       `json:"result,omitempty"`
	Time    time.Time `json:"time"`
}

// Listener receives events. It is called synchronously by Emit and must not
// block or call back into the broker for the same id.
type Listener func(Event)

type topic struct {
	// delivery orders all deliveries on the topic, replays included.
	delivery  sync.Mutex
	last      *Event
	listeners map[uint64]Listener
}

// Broker keeps one topic per id.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
	nextID uint64

	// retention is how long a finished topic with no listeners is kept for
	// late subscribers.
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewBroker creates a broker. Finished topics nobody listens to are dropped
// after retention.
func NewBroker(logger *zap.Logger, retention time.Duration) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		topics:    make(map[string]*topic),
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Emit stores ev as the latest event for id and forwards it to every
// current listener.
func (b *Broker) Emit(id string, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = b.now().UTC()
	}

	t := b.lockTopic(id)
	last := ev
	t.last = &last
	listeners := make([]Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		b.deliver(id, l, ev)
	}
	t.delivery.Unlock()

	if ev.Done {
		time.AfterFunc(b.retention, func() { b.expire(id, t) })
	}
}

// Subscribe registers l for id and replays the last event, if any. The
// returned function removes l; calling it more than once is harmless.
func (b *Broker) Subscribe(id string, l Listener) (unsubscribe func()) {
	t := b.lockTopic(id)
	b.nextID++
	key := b.nextID
	t.listeners[key] = l
	var replay *Event
	if t.last != nil {
		ev := *t.last
		replay = &ev
	}
	b.mu.Unlock()

	if replay != nil {
		b.deliver(id, l, *replay)
	}
	t.delivery.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(t.listeners, key)
			if len(t.listeners) == 0 && b.topics[id] == t {
				delete(b.topics, id)
			}
		})
	}
}

// Last returns the latest event for id.
func (b *Broker) Last(id string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[id]
	if !ok || t.last == nil {
		return Event{}, false
	}
	return *t.last, true
}

// Len returns the number of live topics.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

// lockTopic returns the live topic for id, creating it when missing, with
// both its delivery lock and b.mu held.
func (b *Broker) lockTopic(id string) *topic {
	for {
		b.mu.Lock()
		t, ok := b.topics[id]
		if !ok {
			t = &topic{listeners: make(map[uint64]Listener)}
			b.topics[id] = t
		}
		b.mu.Unlock()

		t.delivery.Lock()
		b.mu.Lock()
		if b.topics[id] == t {
			return t
		}
		// Discarded while we waited.
		b.mu.Unlock()
		t.delivery.Unlock()
	}
}

func (b *Broker) expire(id string, t *topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[id] == t && len(t.listeners) == 0 {
		delete(b.topics, id)
	}
}

func (b *Broker) deliver(id string, l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("progress listener panicked", zap.String("id", id), zap.Any("panic", r))
		}
	}()
	l(ev)
}
