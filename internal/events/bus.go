package events

import (
	platformevents "glasswallet_backend/platform/events"
	"glasswallet_backend/platform/logger"
)

type InMemoryBus = platformevents.InMemoryBus

// NewBus returns the bus one binary wires its modules to. The api and the
// scheduler each own a bus; events never cross between them, so the scheduler
// reaches the notification module through OutboxDue on its own bus.
func NewBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}
