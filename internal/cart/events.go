package cart

import (
	"context"
	"log/slog"
)

// EventType names a cart notification.
type EventType string

const (
	EventItemAdded        EventType = "item.added"
	EventItemUpdated      EventType = "item.updated"
	EventItemRemoved      EventType = "item.removed"
	EventConditionAdded   EventType = "condition.added"
	EventConditionRemoved EventType = "condition.removed"
	EventCartCleared      EventType = "cart.cleared"
	EventCartCreated      EventType = "cart.created"
	EventCartMerged       EventType = "cart.merged"
)

// Event is a fire-and-forget notification emitted after a successful
// mutation.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Cart      Identity       `json:"cart"`
	ItemID    string         `json:"item_id,omitempty"`
	Condition string         `json:"condition,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventSink receives cart events. Emit must not block the caller for long
// and cannot fail the mutation that triggered it.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// NopSink discards events.
type NopSink struct{}

// Emit implements EventSink.
func (NopSink) Emit(context.Context, Event) {}

// LogSink writes events to a structured logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

// Emit implements EventSink.
func (s LogSink) Emit(ctx context.Context, ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "cart event",
		"event_id", ev.ID,
		"type", string(ev.Type),
		"cart", ev.Cart.String(),
		"item_id", ev.ItemID,
		"condition", ev.Condition,
	)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }
