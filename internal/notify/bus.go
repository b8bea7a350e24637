// Package notify carries user-visible notifications for one view session as
// an explicit publish/subscribe bus with a bounded queue of active entries.
package notify

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultLimit is the number of notifications kept when no limit is given
const DefaultLimit = 5

// Variant selects how a notification is styled
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is one toast shown to the user
type Notification struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Variant     Variant   `json:"variant"`
	CreatedAt   time.Time `json:"created_at"`
}

// Kind tells subscribers what happened to a notification
type Kind string

const (
	KindPublished Kind = "published"
	KindDismissed Kind = "dismissed"
)

// Event is delivered to subscribers
type Event struct {
	Kind         Kind         `json:"kind"`
	Notification Notification `json:"notification"`
}

// Handler receives bus events synchronously
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous pub-sub bus holding the active notifications.
// Handlers run outside the bus lock and may call back into the bus.
type Bus struct {
	mu     sync.RWMutex
	active []Notification
	subs   []subscription
	limit  int
	nextID atomic.Uint64
	logger *logrus.Logger
}

// NewBus creates a bus keeping at most limit active notifications
func NewBus(limit int, logger *logrus.Logger) *Bus {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bus{limit: limit, logger: logger}
}

// Info publishes a default notification
func (b *Bus) Info(title, description string) string {
	return b.Publish(Notification{Title: title, Description: description, Variant: VariantDefault})
}

// Error publishes a destructive notification
func (b *Bus) Error(title, description string) string {
	return b.Publish(Notification{Title: title, Description: description, Variant: VariantDestructive})
}

// Publish adds n to the active queue and returns its id. When the queue is
// full the oldest entry is dismissed first.
func (b *Bus) Publish(n Notification) string {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Variant == "" {
		n.Variant = VariantDefault
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	b.mu.Lock()
	var dropped []Notification
	for len(b.active) >= b.limit {
		dropped = append(dropped, b.active[0])
		b.active = b.active[1:]
	}
	b.active = append(b.active, n)
	b.mu.Unlock()

	for _, old := range dropped {
		b.dispatch(Event{Kind: KindDismissed, Notification: old})
	}
	b.dispatch(Event{Kind: KindPublished, Notification: n})
	return n.ID
}

// Dismiss removes a notification. It reports false when id is not active.
func (b *Bus) Dismiss(id string) bool {
	b.mu.Lock()
	var removed *Notification
	for i, n := range b.active {
		if n.ID == id {
			removed = &n
			b.active = append(b.active[:i:i], b.active[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	if removed == nil {
		return false
	}
	b.dispatch(Event{Kind: KindDismissed, Notification: *removed})
	return true
}

// Active returns the active notifications, oldest first
func (b *Bus) Active() []Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Notification, len(b.active))
	copy(out, b.active)
	return out
}

// Subscribe registers handler for every event and returns a subscription id
func (b *Bus) Subscribe(handler Handler) uint64 {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, handler: handler})
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription, reporting whether it was registered
func (b *Bus) Unsubscribe(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.safeCall(sub.handler, event)
	}
}

// safeCall keeps one panicking handler from blocking the others
func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"component":       "notify",
				"event_kind":      event.Kind,
				"notification_id": event.Notification.ID,
				"panic":           r,
				"stack":           string(debug.Stack()),
			}).Error("Notification handler panicked")
		}
	}()
	handler(event)
}
