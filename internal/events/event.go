// Package events lists the GlassWallet domain events. Modules import this
// package only; the bus itself lives in platform/events.
package events

import (
	"glasswallet_backend/platform/events"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when a lead is stored, whatever the intake path.
type LeadCreated struct {
	BaseEvent
	UserID uuid.UUID `json:"userId"`
	LeadID uuid.UUID `json:"leadId"`
	Source string    `json:"source"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadTagged describes tags persisted by rule evaluation. It is staged into
// the outbox inside the tag transaction, not published on the bus.
// WebhookEvents are the rule-declared event names to deliver.
type LeadTagged struct {
	BaseEvent
	UserID        uuid.UUID `json:"userId"`
	LeadID        uuid.UUID `json:"leadId"`
	TagTypes      []string  `json:"tagTypes"`
	RuleIDs       []string  `json:"ruleIds"`
	WebhookEvents []string  `json:"webhookEvents"`
	CreditScore   *int      `json:"creditScore,omitempty"`
}

func (e LeadTagged) EventName() string { return "leads.lead.tagged" }

// IntakeProcessed is published when an external submission that asked for a
// callback finished processing.
type IntakeProcessed struct {
	BaseEvent
	UserID      uuid.UUID `json:"userId"`
	CallbackURL string    `json:"callbackUrl"`
	Batch       bool      `json:"batch"`
	Result      any       `json:"result"`
}

func (e IntakeProcessed) EventName() string { return "integrate.intake.processed" }

// =============================================================================
// Credit Domain Events
// =============================================================================

// CreditPulled is published after a successful ledger debit for a pull.
type CreditPulled struct {
	BaseEvent
	UserID        uuid.UUID `json:"userId"`
	LeadID        uuid.UUID `json:"leadId"`
	TransactionID uuid.UUID `json:"transactionId"`
	CostInCents   int64     `json:"costInCents"`
	BalanceAfter  int64     `json:"balanceAfter"`
	CreditScore   int       `json:"creditScore"`
}

func (e CreditPulled) EventName() string { return "credit.pull.completed" }

// CreditBalanceLow is published when a debit crosses the user's threshold.
type CreditBalanceLow struct {
	BaseEvent
	UserID    uuid.UUID `json:"userId"`
	Email     string    `json:"email"`
	Balance   int64     `json:"balance"`
	Threshold int64     `json:"threshold"`
}

func (e CreditBalanceLow) EventName() string { return "credit.balance.low" }

// =============================================================================
// Pixels Domain Events
// =============================================================================

// PixelSyncCompleted is published per connection after a sync attempt.
type PixelSyncCompleted struct {
	BaseEvent
	UserID       uuid.UUID `json:"userId"`
	ConnectionID uuid.UUID `json:"connectionId"`
	Platform     string    `json:"platform"`
	Synced       int       `json:"synced"`
	Failed       int       `json:"failed"`
}

func (e PixelSyncCompleted) EventName() string { return "pixels.sync.completed" }

// PixelConnectionExpired is published when a platform rejects stored credentials.
type PixelConnectionExpired struct {
	BaseEvent
	UserID         uuid.UUID `json:"userId"`
	ConnectionID   uuid.UUID `json:"connectionId"`
	ConnectionName string    `json:"connectionName"`
	Platform       string    `json:"platform"`
}

func (e PixelConnectionExpired) EventName() string { return "pixels.connection.expired" }

// =============================================================================
// Notification Events
// =============================================================================

// OutboxDue is published by the scheduler worker when an outbox row is due.
type OutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
	UserID   uuid.UUID `json:"userId"`
	// FinalAttempt is true when no retry follows a failure.
	FinalAttempt bool `json:"finalAttempt"`
}

func (e OutboxDue) EventName() string { return "notification.outbox.due" }
