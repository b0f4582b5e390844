// Package events carries memory lifecycle notifications from the engine to
// interested sinks: websocket clients in the web layer and, optionally, a NATS
// JetStream stream for other services.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/pkg/types"
)

// Type names an event.
type Type string

// Event types
const (
	TypeMemoryCreated   Type = "memory.created"
	TypeStatusChanged   Type = "memory.status"
	TypeMemoryConfirmed Type = "memory.confirmed"
	TypeMemoryFlagged   Type = "memory.flagged"
	TypeMemoryEdited    Type = "memory.edited"
)

// Event is a single lifecycle notification. Events never carry memory
// content; subscribers fetch the memory if they need it.
type Event struct {
	Type     Type                   `json:"type"`
	UserID   string                 `json:"user_id"`
	MemoryID string                 `json:"memory_id"`
	Status   types.ProcessingStatus `json:"status,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
	At       time.Time              `json:"at"`
}

// Publisher delivers events to one sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Bus fans events out to every registered publisher. A failing publisher is
// logged and does not affect the others or the caller.
type Bus struct {
	mu         sync.RWMutex
	publishers []Publisher
	timeout    time.Duration
	log        *logger.Logger
}

// NewBus creates an empty bus. Each publish is bounded by timeout (default 2s).
func NewBus(timeout time.Duration, log *logger.Logger) *Bus {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Bus{timeout: timeout, log: log}
}

// Subscribe registers p for all future events.
func (b *Bus) Subscribe(p Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishers = append(b.publishers, p)
}

// Notify publishes e to every subscriber. A zero At is set to now.
func (b *Bus) Notify(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	pubs := make([]Publisher, len(b.publishers))
	copy(pubs, b.publishers)
	b.mu.RUnlock()

	for _, p := range pubs {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		if err := p.Publish(pctx, e); err != nil {
			b.log.Warn("event publish failed",
				"type", string(e.Type), "memory_id", e.MemoryID, "error", err)
		}
		cancel()
	}
}
