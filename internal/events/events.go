// Package events carries lifecycle notifications from the engine to
// subscribers. Publication never fails and never blocks ingestion; a no-op
// publisher is explicitly supported for headless hosts.
package events

import (
	"log/slog"
	"sync"
	"time"

	"hubward/internal/logging"
)

// Lifecycle event names.
const (
	MediaAdded        = "MediaAdded"
	MetadataHarvested = "MetadataHarvested"
	DuplicateSkipped  = "DuplicateSkipped"
	AssetCorrupt      = "AssetCorrupt"
	AssetOrphaned     = "AssetOrphaned"
	IngestFailed      = "IngestFailed"
	ConfigChanged     = "ConfigChanged"
)

// Payload is the free-form event body.
type Payload map[string]any

// Event is one published notification.
type Event struct {
	Name       string
	Payload    Payload
	OccurredAt time.Time
}

// Publisher emits lifecycle events. Implementations must not fail on zero
// subscribers and must not filter per subscriber.
type Publisher interface {
	Publish(name string, payload Payload)
}

// NoopPublisher discards all events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(string, Payload) {}

// Bus is a fanout publisher. Subscribers receive events on buffered
// channels; a subscriber that falls behind loses the oldest events rather
// than stalling the engine.
type Bus struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus constructs a fanout bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logging.NewComponentLogger(logger, "events"),
		subs:   make(map[int]chan Event),
	}
}

// Publish delivers the event to every subscriber. Never blocks: full
// subscriber buffers drop their oldest event first.
func (b *Bus) Publish(name string, payload Payload) {
	event := Event{Name: name, Payload: payload, OccurredAt: time.Now().UTC()}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	b.logger.Debug("event published", logging.String("event", name))
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
}
