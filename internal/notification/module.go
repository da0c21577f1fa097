// Package notification turns domain events into durable deliveries: webhooks
// to user endpoints and account emails. Every delivery goes through the outbox
// so the scheduler can retry it and failures end up visible as dead letters.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	accountsrepo "glasswallet_backend/internal/accounts/repository"
	"glasswallet_backend/internal/email"
	"glasswallet_backend/internal/events"
	apphttp "glasswallet_backend/internal/http"
	"glasswallet_backend/internal/notification/handler"
	"glasswallet_backend/internal/notification/outbox"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Webhook event names sent in the envelope and the X-GlassWallet-Event header.
const eventIntakeProcessed = "intake.processed"

// Email templates stored in outbox payloads.
const (
	templateLowBalance        = "low_balance"
	templateConnectionExpired = "connection_expired"
)

var errUndeliverable = errors.New("outbox record cannot be delivered")

// AccountReader resolves where an account wants its notifications.
type AccountReader interface {
	Get(ctx context.Context, id uuid.UUID) (accountsrepo.Account, error)
}

type webhookEnvelope struct {
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

type leadTaggedData struct {
	LeadID      uuid.UUID `json:"leadId"`
	TagTypes    []string  `json:"tagTypes"`
	RuleIDs     []string  `json:"ruleIds"`
	CreditScore *int      `json:"creditScore,omitempty"`
}

type emailPayload struct {
	Template       string `json:"template"`
	BalanceCents   int64  `json:"balanceCents,omitempty"`
	ThresholdCents int64  `json:"thresholdCents,omitempty"`
	ConnectionName string `json:"connectionName,omitempty"`
	Platform       string `json:"platform,omitempty"`
}

// Module is the notification module. It subscribes to the event bus and
// exposes the delivery log over HTTP.
type Module struct {
	outbox   outbox.Store
	accounts AccountReader
	sender   email.Sender
	hooks    *WebhookClient
	handler  *handler.Handler
	log      *logger.Logger
	now      func() time.Time
}

// New creates the notification module.
func New(store outbox.Store, accounts AccountReader, sender email.Sender, hooks *WebhookClient, val *validator.Validator, log *logger.Logger) *Module {
	if sender == nil {
		sender = email.NoopSender{}
	}
	if hooks == nil {
		hooks = NewWebhookClient(nil)
	}
	m := &Module{
		outbox:   store,
		accounts: accounts,
		sender:   sender,
		hooks:    hooks,
		log:      log,
		now:      time.Now,
	}
	m.handler = handler.New(m, val)
	return m
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes mounts the delivery log.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	deliveries := ctx.Protected.Group("/notifications/deliveries")
	deliveries.GET("", m.handler.List)
	deliveries.POST("/:id/redeliver", m.handler.Redeliver)
}

// RegisterHandlers subscribes to the domain events that produce deliveries.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.IntakeProcessed{}.EventName(), m)
	bus.Subscribe(events.CreditBalanceLow{}.EventName(), m)
	bus.Subscribe(events.PixelConnectionExpired{}.EventName(), m)
	bus.Subscribe(events.OutboxDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.IntakeProcessed:
		return m.handleIntakeProcessed(ctx, e)
	case events.CreditBalanceLow:
		return m.handleCreditBalanceLow(ctx, e)
	case events.PixelConnectionExpired:
		return m.handleConnectionExpired(ctx, e)
	case events.OutboxDue:
		return m.handleOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) enqueue(ctx context.Context, p outbox.InsertParams) error {
	return m.enqueueWith(ctx, p, m.outbox.Insert)
}

func (m *Module) enqueueWith(ctx context.Context, p outbox.InsertParams, insert func(context.Context, outbox.InsertParams) (uuid.UUID, error)) error {
	id, err := insert(ctx, p)
	if err != nil {
		m.log.Error("outbox insert failed", "userId", p.UserID, "kind", p.Kind, "error", err)
		return err
	}
	m.log.Debug("outbox record queued", "outboxId", id, "kind", p.Kind)
	return nil
}

// StageLeadTagged queues one webhook per requested event name inside tx, the
// same transaction that persisted the tags. Nothing is queued when the account
// has no webhook URL.
func (m *Module) StageLeadTagged(ctx context.Context, tx pgx.Tx, e events.LeadTagged) error {
	if len(e.WebhookEvents) == 0 {
		return nil
	}
	acct, err := m.accounts.Get(ctx, e.UserID)
	if err != nil {
		return fmt.Errorf("load account for lead webhook: %w", err)
	}
	if acct.WebhookURL == nil || strings.TrimSpace(*acct.WebhookURL) == "" {
		m.log.Debug("rule requested webhook but account has no webhook url", "userId", e.UserID, "leadId", e.LeadID)
		return nil
	}

	data := leadTaggedData{LeadID: e.LeadID, TagTypes: e.TagTypes, RuleIDs: e.RuleIDs, CreditScore: e.CreditScore}
	seen := make(map[string]bool, len(e.WebhookEvents))
	for _, name := range e.WebhookEvents {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		err := m.enqueueWith(ctx, outbox.InsertParams{
			UserID:      e.UserID,
			Kind:        outbox.KindWebhook,
			Destination: *acct.WebhookURL,
			Payload:     webhookEnvelope{Event: name, OccurredAt: e.OccurredAt(), Data: data},
			Timeout:     outbox.DefaultTimeout,
		}, func(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error) {
			return m.outbox.InsertTx(ctx, tx, p)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) handleIntakeProcessed(ctx context.Context, e events.IntakeProcessed) error {
	timeout := outbox.DefaultTimeout
	if e.Batch {
		timeout = outbox.BatchTimeout
	}
	return m.enqueue(ctx, outbox.InsertParams{
		UserID:      e.UserID,
		Kind:        outbox.KindWebhook,
		Destination: e.CallbackURL,
		Payload:     webhookEnvelope{Event: eventIntakeProcessed, OccurredAt: e.OccurredAt(), Data: e.Result},
		Timeout:     timeout,
	})
}

func (m *Module) handleCreditBalanceLow(ctx context.Context, e events.CreditBalanceLow) error {
	to := e.Email
	if to == "" {
		acct, err := m.accounts.Get(ctx, e.UserID)
		if err != nil {
			return fmt.Errorf("load account for low balance email: %w", err)
		}
		to = acct.Email
	}
	return m.enqueue(ctx, outbox.InsertParams{
		UserID:      e.UserID,
		Kind:        outbox.KindEmail,
		Destination: to,
		Payload:     emailPayload{Template: templateLowBalance, BalanceCents: e.Balance, ThresholdCents: e.Threshold},
	})
}

func (m *Module) handleConnectionExpired(ctx context.Context, e events.PixelConnectionExpired) error {
	acct, err := m.accounts.Get(ctx, e.UserID)
	if err != nil {
		return fmt.Errorf("load account for expiry email: %w", err)
	}
	return m.enqueue(ctx, outbox.InsertParams{
		UserID:      e.UserID,
		Kind:        outbox.KindEmail,
		Destination: acct.Email,
		Payload:     emailPayload{Template: templateConnectionExpired, ConnectionName: e.ConnectionName, Platform: e.Platform},
	})
}

// handleOutboxDue performs one delivery attempt. A returned error asks the
// queue to retry; on the final attempt the row is dead-lettered instead.
func (m *Module) handleOutboxDue(ctx context.Context, e events.OutboxDue) error {
	rec, err := m.outbox.GetByID(ctx, e.OutboxID)
	if err != nil {
		return err
	}
	if rec.Status == outbox.StatusSucceeded || rec.Status == outbox.StatusFailed {
		m.log.Debug("outbox record already settled; skipping", "outboxId", rec.ID, "status", rec.Status)
		return nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return err
	}
	attempt := rec.Attempts + 1

	deliveryErr := m.deliver(ctx, rec)
	if deliveryErr == nil {
		if err := m.outbox.MarkSucceeded(ctx, rec.ID); err != nil {
			m.log.Error("failed to mark outbox succeeded", "outboxId", rec.ID, "error", err)
		}
		m.log.Info("outbox record delivered", "outboxId", rec.ID, "kind", rec.Kind, "attempt", attempt)
		return nil
	}

	if errors.Is(deliveryErr, errUndeliverable) || e.FinalAttempt {
		m.deadLetter(ctx, rec, attempt, deliveryErr)
		return nil
	}

	if err := m.outbox.RecordAttemptError(ctx, rec.ID, deliveryErr.Error()); err != nil {
		m.log.Error("failed to record outbox error", "outboxId", rec.ID, "error", err)
	}
	m.log.Warn("outbox delivery failed; will retry", "outboxId", rec.ID, "kind", rec.Kind, "attempt", attempt, "error", deliveryErr)
	return deliveryErr
}

func (m *Module) deadLetter(ctx context.Context, rec outbox.Record, attempt int, cause error) {
	if err := m.outbox.MarkFailed(ctx, rec.ID, cause.Error()); err != nil {
		m.log.Error("failed to mark outbox failed", "outboxId", rec.ID, "error", err)
	}
	m.log.Warn("outbox delivery dead-lettered", "outboxId", rec.ID, "kind", rec.Kind, "attempt", attempt, "error", cause)

	if rec.Kind != outbox.KindWebhook {
		return
	}
	acct, err := m.accounts.Get(ctx, rec.UserID)
	if err != nil {
		m.log.Error("dead letter email skipped", "outboxId", rec.ID, "error", err)
		return
	}
	if err := m.sender.SendDeliveryFailedEmail(ctx, acct.Email, rec.Destination, attempt, cause.Error(), m.now()); err != nil {
		m.log.Error("dead letter email failed", "outboxId", rec.ID, "error", err)
	}
}

func (m *Module) deliver(ctx context.Context, rec outbox.Record) error {
	switch rec.Kind {
	case outbox.KindWebhook:
		var env struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(rec.Payload, &env); err != nil {
			return fmt.Errorf("%w: %v", errUndeliverable, err)
		}
		timeout := rec.Timeout
		if timeout <= 0 {
			timeout = outbox.DefaultTimeout
		}
		return m.hooks.Post(ctx, rec.Destination, rec.Payload, timeout, env.Event, rec.ID.String())
	case outbox.KindEmail:
		var p emailPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", errUndeliverable, err)
		}
		switch p.Template {
		case templateLowBalance:
			return m.sender.SendLowBalanceEmail(ctx, rec.Destination, p.BalanceCents, p.ThresholdCents)
		case templateConnectionExpired:
			return m.sender.SendConnectionExpiredEmail(ctx, rec.Destination, p.ConnectionName, p.Platform)
		}
		return fmt.Errorf("%w: unknown email template %q", errUndeliverable, p.Template)
	}
	return fmt.Errorf("%w: unknown kind %q", errUndeliverable, rec.Kind)
}

// ListDeliveries pages the caller's outbox rows.
func (m *Module) ListDeliveries(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]handler.Delivery, int, error) {
	recs, total, err := m.outbox.ListByUser(ctx, userID, status, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]handler.Delivery, 0, len(recs))
	for _, r := range recs {
		d := handler.Delivery{
			ID:          r.ID,
			Kind:        r.Kind,
			Destination: r.Destination,
			Status:      string(r.Status),
			Attempts:    r.Attempts,
			LastError:   r.LastError,
			RunAt:       r.RunAt,
		}
		if r.Kind == outbox.KindWebhook {
			var env struct {
				Event string `json:"event"`
			}
			if json.Unmarshal(r.Payload, &env) == nil {
				d.Event = env.Event
			}
		}
		out = append(out, d)
	}
	return out, total, nil
}

// Redeliver requeues a dead-lettered delivery.
func (m *Module) Redeliver(ctx context.Context, userID, id uuid.UUID) error {
	return m.outbox.Requeue(ctx, id, userID)
}

var (
	_ apphttp.Module         = (*Module)(nil)
	_ events.Handler         = (*Module)(nil)
	_ handler.DeliveryLister = (*Module)(nil)
)
