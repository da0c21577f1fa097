// Package service implements lead management and the qualification pipeline.
package service

import (
	"context"
	"strings"

	"glasswallet_backend/internal/events"
	"glasswallet_backend/internal/leads/ports"
	"glasswallet_backend/internal/leads/repository"
	"glasswallet_backend/internal/leads/transport"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/phone"
	"glasswallet_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Deps are the collaborators of the leads service. Signals and Pixels are optional.
type Deps struct {
	Repo    repository.LeadsRepository
	Bus     events.Bus
	Credit  ports.CreditPuller
	Rules   ports.RuleEvaluator
	Signals ports.SignalProvider
	Pixels  ports.PixelSyncer
	Hooks   ports.WebhookStager
	Log     *logger.Logger
}

type Service struct {
	repo    repository.LeadsRepository
	bus     events.Bus
	credit  ports.CreditPuller
	rules   ports.RuleEvaluator
	signals ports.SignalProvider
	pixels  ports.PixelSyncer
	hooks   ports.WebhookStager
	log     *logger.Logger
}

func New(d Deps) *Service {
	return &Service{
		repo:    d.Repo,
		bus:     d.Bus,
		credit:  d.Credit,
		rules:   d.Rules,
		signals: d.Signals,
		pixels:  d.Pixels,
		hooks:   d.Hooks,
		log:     d.Log,
	}
}

// SetPixelSyncer wires the pixel orchestrator after both modules exist.
func (s *Service) SetPixelSyncer(p ports.PixelSyncer) {
	s.pixels = p
}

// SetWebhookStager wires the notification outbox for rule-requested webhooks.
func (s *Service) SetWebhookStager(h ports.WebhookStager) {
	s.hooks = h
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func normalizePtr(v *string, fn func(string) string) *string {
	if v == nil {
		return nil
	}
	out := fn(strings.TrimSpace(*v))
	return &out
}

// Create stores a lead from any intake path and publishes LeadCreated.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req transport.CreateLeadRequest, source string) (transport.LeadResponse, error) {
	if source == "" {
		source = repository.SourceManual
	}
	params := repository.CreateLeadParams{
		UserID:       userID,
		FirstName:    sanitize.PersonName(req.FirstName),
		LastName:     sanitize.PersonName(req.LastName),
		Email:        optional(sanitize.Email(req.Email)),
		Phone:        optional(phone.NormalizeE164(req.Phone)),
		Street:       optional(sanitize.Text(req.Street)),
		City:         optional(sanitize.PersonName(req.City)),
		State:        optional(sanitize.StateCode(req.State)),
		ZipCode:      optional(req.ZipCode),
		ConsentGiven: req.ConsentGiven,
		Source:       source,
	}

	lead, err := s.repo.Create(ctx, params)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEvent(),
			UserID:    userID,
			LeadID:    lead.ID,
			Source:    source,
		})
	}
	return toLeadResponse(lead, nil), nil
}

func (s *Service) GetByID(ctx context.Context, userID, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	tags, err := s.repo.ListTags(ctx, userID, id)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return toLeadResponse(lead, tags), nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, req transport.ListLeadsRequest) ([]transport.LeadResponse, int, error) {
	page, limit := PageAndLimit(req.Page, req.Limit)
	leads, total, err := s.repo.List(ctx, repository.ListParams{
		UserID:         userID,
		Search:         req.Search,
		TagType:        req.TagType,
		Processed:      req.Processed,
		MinCreditScore: req.MinCreditScore,
		MaxCreditScore: req.MaxCreditScore,
		Offset:         (page - 1) * limit,
		Limit:          limit,
	})
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uuid.UUID, 0, len(leads))
	for _, l := range leads {
		ids = append(ids, l.ID)
	}
	tags := map[uuid.UUID][]repository.Tag{}
	if len(ids) > 0 {
		if tags, err = s.repo.ListTagsForLeads(ctx, userID, ids); err != nil {
			return nil, 0, err
		}
	}

	items := make([]transport.LeadResponse, 0, len(leads))
	for _, l := range leads {
		items = append(items, toLeadResponse(l, tags[l.ID]))
	}
	return items, total, nil
}

func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, req transport.UpdateLeadRequest) (transport.LeadResponse, error) {
	lead, err := s.repo.Update(ctx, userID, id, repository.UpdateLeadParams{
		FirstName:    normalizePtr(req.FirstName, sanitize.PersonName),
		LastName:     normalizePtr(req.LastName, sanitize.PersonName),
		Email:        normalizePtr(req.Email, sanitize.Email),
		Phone:        normalizePtr(req.Phone, phone.NormalizeE164),
		Street:       normalizePtr(req.Street, sanitize.Text),
		City:         normalizePtr(req.City, sanitize.PersonName),
		State:        normalizePtr(req.State, sanitize.StateCode),
		ZipCode:      normalizePtr(req.ZipCode, strings.TrimSpace),
		ConsentGiven: req.ConsentGiven,
	})
	if err != nil {
		return transport.LeadResponse{}, err
	}
	tags, err := s.repo.ListTags(ctx, userID, id)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return toLeadResponse(lead, tags), nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.Delete(ctx, userID, id)
}

// PageAndLimit applies list defaults.
func PageAndLimit(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func toTagResponses(tags []repository.Tag) []transport.TagResponse {
	out := make([]transport.TagResponse, 0, len(tags))
	for _, t := range tags {
		out = append(out, transport.TagResponse{
			ID:             t.ID,
			TagType:        t.TagType,
			Reason:         t.Reason,
			RuleID:         t.RuleID,
			SyncedToPixels: t.SyncedToPixels,
			PixelSyncAt:    t.PixelSyncAt,
			CreatedAt:      t.CreatedAt,
			UpdatedAt:      t.UpdatedAt,
		})
	}
	return out
}

func toLeadResponse(l repository.Lead, tags []repository.Tag) transport.LeadResponse {
	return transport.LeadResponse{
		ID:                l.ID,
		FirstName:         l.FirstName,
		LastName:          l.LastName,
		Email:             l.Email,
		Phone:             l.Phone,
		Street:            l.Street,
		City:              l.City,
		State:             l.State,
		ZipCode:           l.ZipCode,
		CreditScore:       l.CreditScore,
		IncomeEstimate:    l.IncomeEstimate,
		ConsentGiven:      l.ConsentGiven,
		Source:            l.Source,
		ProcessedAt:       l.ProcessedAt,
		DataRetentionDate: l.DataRetentionDate,
		Tags:              toTagResponses(tags),
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
}
