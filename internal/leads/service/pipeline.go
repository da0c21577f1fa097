package service

import (
	"context"
	"errors"

	"glasswallet_backend/internal/events"
	"glasswallet_backend/internal/leads/ports"
	"glasswallet_backend/internal/leads/repository"
	"glasswallet_backend/internal/leads/transport"
	"glasswallet_backend/internal/rules/engine"
	"glasswallet_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

// batchConcurrency caps concurrent pulls in BatchQualify.
const batchConcurrency = 5

// Sync triggers recorded on pixel sync logs.
const (
	TriggerManual = "manual"
	TriggerAuto   = "auto"
)

// BuildFacts maps a lead and its signals into rule facts.
// Absent score or income stay absent so numeric conditions on them do not hold.
func BuildFacts(lead repository.Lead, signals *ports.Signals) engine.Facts {
	facts := engine.Facts{
		engine.FieldHasEmail: lead.Email != nil && *lead.Email != "",
		engine.FieldHasPhone: lead.Phone != nil && *lead.Phone != "",
		engine.FieldSource:   lead.Source,
	}
	if lead.CreditScore != nil {
		facts[engine.FieldCreditScore] = *lead.CreditScore
	}
	if lead.IncomeEstimate != nil {
		facts[engine.FieldIncomeEstimate] = *lead.IncomeEstimate
	}
	if lead.State != nil && *lead.State != "" {
		facts[engine.FieldState] = *lead.State
	}
	if signals != nil {
		facts[engine.FieldAIScore] = signals.AIScore
		facts[engine.FieldRiskScore] = signals.RiskScore
		facts[engine.FieldAnomalyCount] = signals.AnomalyCount
		facts[engine.FieldConversionProbability] = signals.ConversionProbability
	}
	return facts
}

func (s *Service) signalsFor(ctx context.Context, lead repository.Lead) *ports.Signals {
	if s.signals == nil {
		return nil
	}
	sig, err := s.signals.Signals(ctx, ports.SignalInput{
		LeadID:         lead.ID,
		UserID:         lead.UserID,
		CreditScore:    lead.CreditScore,
		IncomeEstimate: lead.IncomeEstimate,
		HasEmail:       lead.Email != nil && *lead.Email != "",
		HasPhone:       lead.Phone != nil && *lead.Phone != "",
		State:          deref(lead.State),
		Source:         lead.Source,
		CreatedAt:      lead.CreatedAt,
		ProcessedAt:    lead.ProcessedAt,
	})
	if err != nil {
		s.log.Warn("intelligence signals unavailable", "leadId", lead.ID, "error", err)
		return nil
	}
	return &sig
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func tagWrite(tagType engine.TagType, reason, ruleID string) repository.TagWrite {
	w := repository.TagWrite{TagType: string(tagType), Reason: reason, Remove: string(tagType.Opposite())}
	if id, err := uuid.Parse(ruleID); err == nil {
		w.RuleID = &id
	}
	return w
}

func (s *Service) ListTags(ctx context.Context, userID, leadID uuid.UUID) ([]transport.TagResponse, error) {
	if _, err := s.repo.GetByID(ctx, userID, leadID); err != nil {
		return nil, err
	}
	tags, err := s.repo.ListTags(ctx, userID, leadID)
	if err != nil {
		return nil, err
	}
	return toTagResponses(tags), nil
}

// Tag applies a manual tag and drops the opposing one.
func (s *Service) Tag(ctx context.Context, userID, leadID uuid.UUID, req transport.TagRequest) (transport.TagResponse, error) {
	if _, err := s.repo.GetByID(ctx, userID, leadID); err != nil {
		return transport.TagResponse{}, err
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}
	tags, err := s.repo.ApplyTags(ctx, leadID, []repository.TagWrite{tagWrite(engine.TagType(req.TagType), reason, "")}, nil)
	if err != nil {
		return transport.TagResponse{}, err
	}
	return toTagResponses(tags)[0], nil
}

// RemoveTag deletes a tag; a missing tag is NOT_FOUND.
func (s *Service) RemoveTag(ctx context.Context, userID, leadID uuid.UUID, tagType string) error {
	n, err := s.repo.RemoveTag(ctx, userID, leadID, tagType)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("tag not found").WithDetails(map[string]string{"tagType": tagType})
	}
	return nil
}

// AutoTag evaluates the user's rules on a lead and persists the decisions.
func (s *Service) AutoTag(ctx context.Context, userID, leadID uuid.UUID) (transport.AutoTagResponse, error) {
	lead, err := s.repo.GetByID(ctx, userID, leadID)
	if err != nil {
		return transport.AutoTagResponse{}, err
	}

	signals := s.signalsFor(ctx, lead)
	result, err := s.rules.Evaluate(ctx, userID, BuildFacts(lead, signals))
	if err != nil {
		return transport.AutoTagResponse{}, err
	}

	resp := transport.AutoTagResponse{
		LeadID:        leadID,
		Decisions:     result.Decisions,
		MatchedRules:  result.MatchedRules,
		Baseline:      result.Baseline,
		Tags:          []transport.TagResponse{},
		WebhookEvents: []string{},
	}
	if signals != nil {
		resp.Signals = *signals
	}
	if len(result.Decisions) == 0 {
		return resp, nil
	}

	writes := make([]repository.TagWrite, 0, len(result.Decisions))
	seen := map[string]bool{}
	tagTypes := make([]string, 0, len(result.Decisions))
	ruleIDs := make([]string, 0, len(result.Decisions))
	for _, d := range result.Decisions {
		writes = append(writes, tagWrite(d.TagType, d.Reason, d.RuleID))
		tagTypes = append(tagTypes, string(d.TagType))
		if d.RuleID != "" {
			ruleIDs = append(ruleIDs, d.RuleID)
		}
		for _, ev := range d.WebhookEvents {
			if !seen[ev] {
				seen[ev] = true
				resp.WebhookEvents = append(resp.WebhookEvents, ev)
			}
		}
	}

	var hook repository.TxHook
	if s.hooks != nil && len(resp.WebhookEvents) > 0 {
		tagged := events.LeadTagged{
			BaseEvent:     events.NewBaseEvent(),
			UserID:        userID,
			LeadID:        leadID,
			TagTypes:      tagTypes,
			RuleIDs:       ruleIDs,
			WebhookEvents: resp.WebhookEvents,
			CreditScore:   lead.CreditScore,
		}
		hook = func(ctx context.Context, tx pgx.Tx) error {
			return s.hooks.StageLeadTagged(ctx, tx, tagged)
		}
	}

	tags, err := s.repo.ApplyTags(ctx, leadID, writes, hook)
	if err != nil {
		return transport.AutoTagResponse{}, err
	}
	resp.Tags = toTagResponses(tags)
	return resp, nil
}

// PullAndQualify pulls credit and, when autoTag is set, evaluates rules on the result.
func (s *Service) PullAndQualify(ctx context.Context, userID, leadID uuid.UUID, consentGiven, autoTag bool) (transport.PullAndQualifyResponse, error) {
	credit, err := s.credit.Pull(ctx, userID, leadID, consentGiven)
	if err != nil {
		return transport.PullAndQualifyResponse{}, err
	}
	resp := transport.PullAndQualifyResponse{LeadID: leadID, Credit: credit}
	if !autoTag {
		return resp, nil
	}

	tagging, err := s.AutoTag(ctx, userID, leadID)
	if err != nil {
		// The pull is billed and stored; tagging can be retried on its own.
		s.log.Error("auto-tag after credit pull failed", "leadId", leadID, "error", err)
		return resp, nil
	}
	resp.Tagging = &tagging
	return resp, nil
}

func syncable(t engine.TagType) bool {
	return t == engine.TagWhitelist || t == engine.TagQualified
}

// TagAndSync auto-tags a lead, then pushes it for every syncable decision
// whose rule asked for a pixel sync.
func (s *Service) TagAndSync(ctx context.Context, userID, leadID uuid.UUID, req transport.TagAndSyncRequest) (transport.TagAndSyncResponse, error) {
	tagging, err := s.AutoTag(ctx, userID, leadID)
	if err != nil {
		return transport.TagAndSyncResponse{}, err
	}
	resp := transport.TagAndSyncResponse{Tagging: tagging, Syncs: []ports.PixelSyncSummary{}}
	if s.pixels == nil {
		return resp, nil
	}

	// A lead reaches each connection once, under the first syncable decision.
	pushed := make(map[uuid.UUID]struct{})
	for _, d := range tagging.Decisions {
		if !d.SyncToPixels || !syncable(d.TagType) {
			continue
		}
		candidates := req.ConnectionIDs
		if len(candidates) == 0 {
			if candidates, err = s.pixels.AutoSyncConnections(ctx, userID, string(d.TagType)); err != nil {
				return transport.TagAndSyncResponse{}, err
			}
		}
		connections := make([]uuid.UUID, 0, len(candidates))
		for _, id := range candidates {
			if _, done := pushed[id]; done {
				continue
			}
			pushed[id] = struct{}{}
			connections = append(connections, id)
		}
		if len(connections) == 0 {
			continue
		}
		trigger := TriggerAuto
		if len(req.ConnectionIDs) > 0 {
			trigger = TriggerManual
		}
		summary, err := s.pixels.Sync(ctx, userID, ports.PixelSyncRequest{
			LeadIDs:       []uuid.UUID{leadID},
			ConnectionIDs: connections,
			SyncType:      string(d.TagType),
			Trigger:       trigger,
		})
		if err != nil {
			return transport.TagAndSyncResponse{}, err
		}
		resp.Syncs = append(resp.Syncs, summary)
	}
	return resp, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ownedLeads returns NOT_FOUND naming every id the user does not own.
func (s *Service) ownedLeads(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	leads, err := s.repo.GetMany(ctx, userID, ids)
	if err != nil {
		return err
	}
	if len(leads) == len(ids) {
		return nil
	}
	found := make(map[uuid.UUID]bool, len(leads))
	for _, l := range leads {
		found[l.ID] = true
	}
	missing := make([]uuid.UUID, 0)
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return apperr.NotFound("one or more leads were not found").
		WithDetails(map[string]interface{}{"missingLeadIds": missing})
}

// BulkTag applies one tag to up to MaxBulkTagLeads leads, all or nothing.
func (s *Service) BulkTag(ctx context.Context, userID uuid.UUID, req transport.BulkTagRequest) (transport.BulkTagResponse, error) {
	ids := dedupe(req.LeadIDs)
	if len(ids) > transport.MaxBulkTagLeads {
		return transport.BulkTagResponse{}, apperr.Validation("too many leads").
			WithDetails(map[string]interface{}{"max": transport.MaxBulkTagLeads, "received": len(ids)})
	}
	if err := s.ownedLeads(ctx, userID, ids); err != nil {
		return transport.BulkTagResponse{}, err
	}

	reason := req.Reason
	if reason == "" {
		reason = "bulk"
	}
	n, err := s.repo.BulkApplyTag(ctx, ids, tagWrite(engine.TagType(req.TagType), reason, ""))
	if err != nil {
		return transport.BulkTagResponse{}, err
	}
	return transport.BulkTagResponse{Tagged: n, TagType: req.TagType, LeadIDs: ids}, nil
}

func batchError(err error) *transport.BatchItemError {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return &transport.BatchItemError{Code: appErr.ErrorCode(), Message: appErr.Message}
	}
	return &transport.BatchItemError{Code: apperr.CodeInternal, Message: "internal error"}
}

// BatchQualify pulls and tags up to MaxBatchQualifyLeads leads with bounded
// concurrency. Per-lead failures are reported in place; results keep input order.
func (s *Service) BatchQualify(ctx context.Context, userID uuid.UUID, req transport.BatchQualifyRequest) (transport.BatchQualifyResponse, error) {
	ids := dedupe(req.LeadIDs)
	if len(ids) > transport.MaxBatchQualifyLeads {
		return transport.BatchQualifyResponse{}, apperr.Validation("too many leads").
			WithDetails(map[string]interface{}{"max": transport.MaxBatchQualifyLeads, "received": len(ids)})
	}

	results := make([]transport.BatchQualifyItem, len(ids))
	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			item := transport.BatchQualifyItem{LeadID: id}
			res, err := s.PullAndQualify(ctx, userID, id, req.ConsentGiven, true)
			if err != nil {
				if apperr.GetKind(err) == apperr.KindUnknown {
					s.log.Error("batch qualify failed", "leadId", id, "error", err)
				}
				item.Error = batchError(err)
			} else {
				item.Success = true
				item.Result = &res
			}
			results[i] = item
			return nil
		})
	}
	_ = g.Wait()

	resp := transport.BatchQualifyResponse{Total: len(ids), Results: results}
	for _, r := range results {
		if r.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	return resp, nil
}
