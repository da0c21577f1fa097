// Package events moves domain events between GlassWallet modules inside one
// process. Anything that has to survive a restart, or reach the scheduler
// binary, is written to the notification outbox instead.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a fact announced by one module. Names are dotted and start with
// the owning context, e.g. "credit.balance.low".
type Event interface {
	EventName() string
	EventID() uuid.UUID
	OccurredAt() time.Time
}

// BaseEvent is embedded by every event and carries its identity.
type BaseEvent struct {
	ID        uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"occurredAt"`
}

func (e BaseEvent) EventID() uuid.UUID { return e.ID }

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps a fresh ID and the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{ID: uuid.New(), Timestamp: time.Now().UTC()}
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes events to the handlers subscribed under their name.
type Bus interface {
	// Publish returns immediately. Handlers run on a context that ignores the
	// caller's cancellation, and their errors are logged.
	Publish(ctx context.Context, event Event)
	// PublishSync runs handlers inline in subscription order and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
