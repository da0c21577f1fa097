package integrate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"glasswallet_backend/internal/events"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/logger"

	"github.com/google/uuid"
)

// Lead sources recorded on intake.
const (
	SourceWidget  = "widget"
	SourceWebhook = "webhook"
)

// LeadCreator stores an intake lead through the leads pipeline.
type LeadCreator interface {
	CreateLead(ctx context.Context, userID uuid.UUID, lead IntakeLead, source string) (CreatedLead, error)
}

type Service struct {
	keys  KeyStore
	leads LeadCreator
	bus   events.Bus
	log   *logger.Logger
}

func NewService(keys KeyStore, leads LeadCreator, bus events.Bus, log *logger.Logger) *Service {
	return &Service{keys: keys, leads: leads, bus: bus, log: log}
}

func consentError(indexes []int) error {
	err := apperr.Validation("consumer consent is required to submit a lead").WithCode("CONSENT_REQUIRED")
	if indexes != nil {
		err = err.WithDetails(map[string]interface{}{"leadIndexes": indexes})
	}
	return err
}

func validateCallback(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Validation("callbackUrl must be an absolute http(s) URL")
	}
	return nil
}

// SubmitWidget creates one lead from the embeddable form. Without consent
// nothing is stored and no callback fires.
func (s *Service) SubmitWidget(ctx context.Context, userID uuid.UUID, sub WidgetSubmission) (IntakeResponse, error) {
	if !sub.ConsentGiven {
		return IntakeResponse{}, consentError(nil)
	}
	if err := validateCallback(sub.CallbackURL); err != nil {
		return IntakeResponse{}, err
	}

	lead, err := s.leads.CreateLead(ctx, userID, sub.IntakeLead, SourceWidget)
	if err != nil {
		return IntakeResponse{}, err
	}
	resp := IntakeResponse{LeadID: lead.ID, Status: "received", CreatedAt: lead.CreatedAt}

	if sub.CallbackURL != "" {
		queued := s.queueCallback(ctx, userID, sub.CallbackURL, false, resp)
		resp.CallbackQueued = &queued
	}
	return resp, nil
}

// SubmitWebhook creates a batch of leads. Every lead must carry consent or the
// whole batch is rejected before anything is stored.
func (s *Service) SubmitWebhook(ctx context.Context, userID uuid.UUID, sub WebhookSubmission) (IntakeBatchResponse, error) {
	if len(sub.Leads) == 0 || len(sub.Leads) > MaxWebhookLeads {
		return IntakeBatchResponse{}, apperr.Validation(fmt.Sprintf("submit between 1 and %d leads", MaxWebhookLeads))
	}
	var missing []int
	for i, l := range sub.Leads {
		if !l.ConsentGiven {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return IntakeBatchResponse{}, consentError(missing)
	}
	if err := validateCallback(sub.CallbackURL); err != nil {
		return IntakeBatchResponse{}, err
	}

	resp := IntakeBatchResponse{Received: len(sub.Leads), Results: make([]IntakeItemResult, 0, len(sub.Leads))}
	for i, l := range sub.Leads {
		lead, err := s.leads.CreateLead(ctx, userID, l, SourceWebhook)
		if err != nil {
			resp.Failed++
			msg := "failed to store lead"
			var appErr *apperr.Error
			if errors.As(err, &appErr) {
				msg = appErr.Message
			} else {
				s.log.Error("webhook intake lead failed", "userId", userID, "index", i, "error", err)
			}
			resp.Results = append(resp.Results, IntakeItemResult{Index: i, Error: msg})
			continue
		}
		id := lead.ID
		resp.Created++
		resp.Results = append(resp.Results, IntakeItemResult{Index: i, LeadID: &id})
	}

	if sub.CallbackURL != "" && resp.Created > 0 {
		queued := s.queueCallback(ctx, userID, sub.CallbackURL, true, resp)
		resp.CallbackQueued = &queued
	}
	return resp, nil
}

// queueCallback writes the callback to the outbox before the response goes
// out. The leads are already stored, so a failure is reported on the response
// instead of failing the request and inviting a duplicate submission.
func (s *Service) queueCallback(ctx context.Context, userID uuid.UUID, callbackURL string, batch bool, result any) bool {
	err := s.bus.PublishSync(ctx, events.IntakeProcessed{
		BaseEvent:   events.NewBaseEvent(),
		UserID:      userID,
		CallbackURL: callbackURL,
		Batch:       batch,
		Result:      result,
	})
	if err != nil {
		s.log.Error("intake callback not queued", "userId", userID, "batch", batch, "error", err)
		return false
	}
	return true
}

func (s *Service) CreateKey(ctx context.Context, userID uuid.UUID, req CreateAPIKeyRequest) (CreateAPIKeyResponse, error) {
	domains := make([]string, 0, len(req.AllowedDomains))
	for _, raw := range req.AllowedDomains {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		d, err := NormalizeDomain(raw)
		if err != nil {
			return CreateAPIKeyResponse{}, apperr.Validation(err.Error())
		}
		domains = append(domains, d)
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		return CreateAPIKeyResponse{}, fmt.Errorf("generate api key: %w", err)
	}
	key, err := s.keys.Create(ctx, userID, strings.TrimSpace(req.Name), hash, prefix, domains)
	if err != nil {
		return CreateAPIKeyResponse{}, err
	}
	return CreateAPIKeyResponse{APIKeyResponse: toAPIKeyResponse(key), Key: plaintext}, nil
}

func (s *Service) ListKeys(ctx context.Context, userID uuid.UUID) ([]APIKeyResponse, error) {
	keys, err := s.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, toAPIKeyResponse(k))
	}
	return out, nil
}

func (s *Service) RevokeKey(ctx context.Context, userID, keyID uuid.UUID) error {
	return s.keys.Revoke(ctx, keyID, userID)
}
