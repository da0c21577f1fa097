package service

import (
	"context"
	"errors"
	"fmt"

	"glasswallet_backend/internal/events"
	"glasswallet_backend/internal/pixels/platforms"
	"glasswallet_backend/internal/pixels/ports"
	"glasswallet_backend/internal/pixels/repository"
	"glasswallet_backend/internal/pixels/transport"
	"glasswallet_backend/platform/apperr"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Sync triggers.
const (
	TriggerManual = "manual"
	TriggerAuto   = "auto"
	TriggerRetry  = "retry"
)

// ErrRetryPointless tells the queue not to retry a sync that can never succeed.
var ErrRetryPointless = errors.New("pixel sync retry cannot succeed")

// SyncInput is one orchestrator run.
type SyncInput struct {
	LeadIDs       []uuid.UUID
	ConnectionIDs []uuid.UUID
	SyncType      string
	Trigger       string
}

// pushOutcome is the result of pushing to one connection. pushed is every
// lead sent, accepted the subset the platform confirmed.
type pushOutcome struct {
	conn     repository.Connection
	pushed   []uuid.UUID
	accepted []uuid.UUID
	res      platforms.PushResult
	err      error
}

func (o pushOutcome) success() bool {
	return o.err == nil && o.res.SyncedCount > 0
}

// retryable reports a transient failure worth another attempt. Leads the
// platform rejected, or that carry nothing to match on, never are.
func (o pushOutcome) retryable() bool {
	if errors.Is(o.err, platforms.ErrPlatformUnavailable) {
		return true
	}
	return o.err == nil && o.res.Retryable > 0
}

// unaccepted is what a retry should resend.
func (o pushOutcome) unaccepted() []uuid.UUID {
	done := make(map[uuid.UUID]struct{}, len(o.accepted))
	for _, id := range o.accepted {
		done[id] = struct{}{}
	}
	out := make([]uuid.UUID, 0, len(o.pushed))
	for _, id := range o.pushed {
		if _, ok := done[id]; !ok {
			out = append(out, id)
		}
	}
	return out
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

// validateConnections loads every requested connection and rejects the whole
// run when one is missing or not active.
func (s *Service) validateConnections(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]repository.Connection, error) {
	conns, err := s.repo.GetMany(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]repository.Connection, len(conns))
	for _, c := range conns {
		byID[c.ID] = c
	}

	var missing []uuid.UUID
	ordered := make([]repository.Connection, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		ordered = append(ordered, c)
	}
	if len(missing) > 0 {
		return nil, apperr.NotFound("one or more pixel connections were not found").
			WithDetails(map[string]interface{}{"missingConnectionIds": missing})
	}

	var inactive []string
	for _, c := range ordered {
		if c.Status != repository.StatusActive {
			inactive = append(inactive, c.Name)
		}
	}
	if len(inactive) > 0 {
		return nil, apperr.BusinessLogic("INACTIVE_CONNECTIONS",
			fmt.Sprintf("sync rejected, inactive connections: %v", inactive)).
			WithDetails(map[string]interface{}{"inactiveConnections": inactive})
	}
	return ordered, nil
}

func eligible(leads []platforms.Lead, minScore *int) []platforms.Lead {
	if minScore == nil {
		return leads
	}
	out := make([]platforms.Lead, 0, len(leads))
	for _, l := range leads {
		if l.CreditScore != nil && *l.CreditScore >= *minScore {
			out = append(out, l)
		}
	}
	return out
}

func leadIDs(leads []platforms.Lead) []uuid.UUID {
	raw := make([]string, 0, len(leads))
	for _, l := range leads {
		raw = append(raw, l.ID)
	}
	return parseIDs(raw)
}

func parseIDs(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// push runs one connection. It never returns an error; failures are part of the outcome.
func (s *Service) push(ctx context.Context, c repository.Connection, leads []platforms.Lead, syncType string) pushOutcome {
	leads = eligible(leads, c.Settings.MinCreditScore)
	out := pushOutcome{conn: c, pushed: leadIDs(leads), res: platforms.PushResult{Errors: []string{}}}
	if len(leads) == 0 {
		out.res.Errors = append(out.res.Errors, "no leads meet the connection filters")
		return out
	}

	adapter, err := s.adapters.Get(platforms.Platform(c.Platform))
	if err != nil {
		out.err = err
		return out
	}
	creds, err := s.credentials(c)
	if err != nil {
		out.err = err
		return out
	}
	res, err := adapter.PushLeads(ctx, creds, leads, syncType)
	if res.Errors == nil {
		res.Errors = []string{}
	}
	out.res = res
	out.accepted = parseIDs(res.Accepted)
	if err != nil {
		out.err = err
		// nothing was accepted by a failed call beyond what it already reported
		out.res.FailedCount = len(leads) - res.SyncedCount
		if errors.Is(err, platforms.ErrPlatformUnavailable) {
			out.res.Retryable = out.res.FailedCount
		}
		out.res.Errors = append(out.res.Errors, err.Error())
	}
	return out
}

// Sync pushes the tagged subset of leadIDs to every requested connection.
func (s *Service) Sync(ctx context.Context, userID uuid.UUID, in SyncInput) (transport.SyncResponse, error) {
	if in.Trigger == "" {
		in.Trigger = TriggerManual
	}
	leadIDsIn := dedupe(in.LeadIDs)
	connIDs := dedupe(in.ConnectionIDs)
	if len(connIDs) == 0 {
		return transport.SyncResponse{}, apperr.Validation("at least one connection is required")
	}
	if len(leadIDsIn) > transport.MaxSyncLeads {
		return transport.SyncResponse{}, apperr.Validation(fmt.Sprintf("at most %d leads per sync", transport.MaxSyncLeads))
	}

	conns, err := s.validateConnections(ctx, userID, connIDs)
	if err != nil {
		return transport.SyncResponse{}, err
	}

	candidates, err := s.leads.SyncCandidates(ctx, userID, leadIDsIn, in.SyncType)
	if err != nil {
		return transport.SyncResponse{}, err
	}

	resp := transport.SyncResponse{
		SyncType:   in.SyncType,
		TotalLeads: len(candidates),
		Skipped:    len(leadIDsIn) - len(candidates),
		Results:    make([]transport.ConnectionResult, 0, len(conns)),
	}
	if len(candidates) == 0 {
		for _, c := range conns {
			resp.Results = append(resp.Results, transport.ConnectionResult{
				ConnectionID:   c.ID,
				ConnectionName: c.Name,
				Platform:       c.Platform,
				Errors:         []string{fmt.Sprintf("no requested leads carry a %s tag", in.SyncType)},
			})
		}
		return resp, nil
	}

	outcomes := make([]pushOutcome, len(conns))
	var g errgroup.Group
	for i, c := range conns {
		g.Go(func() error {
			outcomes[i] = s.push(ctx, c, candidates, in.SyncType)
			return nil
		})
	}
	_ = g.Wait()

	synced := make(map[uuid.UUID]struct{})
	for _, o := range outcomes {
		result := s.settle(ctx, userID, o, in.SyncType, in.Trigger)
		resp.Results = append(resp.Results, result)
		resp.TotalSynced += result.SyncedCount
		resp.TotalFailed += result.FailedCount
		if result.Success {
			resp.SuccessfulConnections++
		}
		for _, id := range o.accepted {
			synced[id] = struct{}{}
		}
	}

	if len(synced) > 0 {
		ids := make([]uuid.UUID, 0, len(synced))
		for id := range synced {
			ids = append(ids, id)
		}
		if err := s.leads.MarkSynced(ctx, userID, ids, in.SyncType, s.now()); err != nil {
			s.log.Error("failed to mark tags synced", "userId", userID, "error", err)
		}
	}
	return resp, nil
}

// settle applies the side effects of one outcome and builds its result.
func (s *Service) settle(ctx context.Context, userID uuid.UUID, o pushOutcome, syncType, trigger string) transport.ConnectionResult {
	c := o.conn
	result := transport.ConnectionResult{
		ConnectionID:   c.ID,
		ConnectionName: c.Name,
		Platform:       c.Platform,
		Success:        o.success(),
		SyncedCount:    o.res.SyncedCount,
		FailedCount:    o.res.FailedCount,
		Errors:         o.res.Errors,
	}
	s.log.PixelSync(c.ID.String(), c.Platform, o.res.SyncedCount, o.res.FailedCount, o.err)

	switch {
	case errors.Is(o.err, platforms.ErrExpiredCredentials):
		s.markExpired(ctx, c, o.err)
	case o.res.SyncedCount > 0:
		if err := s.repo.RecordSync(ctx, c.ID, s.now()); err != nil {
			s.log.Error("failed to record pixel sync", "connectionId", c.ID, "error", err)
		}
	case o.err != nil:
		msg := o.err.Error()
		if err := s.repo.SetStatus(ctx, c.ID, c.Status, &msg); err != nil {
			s.log.Error("failed to record pixel sync error", "connectionId", c.ID, "error", err)
		}
	}

	if err := s.repo.InsertSyncLog(ctx, repository.SyncLog{
		UserID:       userID,
		ConnectionID: c.ID,
		SyncType:     syncType,
		Trigger:      trigger,
		LeadCount:    len(o.pushed),
		SyncedCount:  o.res.SyncedCount,
		FailedCount:  o.res.FailedCount,
		Errors:       o.res.Errors,
	}); err != nil {
		s.log.Error("failed to write pixel sync log", "connectionId", c.ID, "error", err)
	}

	if o.success() || o.res.FailedCount > 0 {
		s.bus.Publish(ctx, events.PixelSyncCompleted{
			BaseEvent:    events.NewBaseEvent(),
			UserID:       userID,
			ConnectionID: c.ID,
			Platform:     c.Platform,
			Synced:       o.res.SyncedCount,
			Failed:       o.res.FailedCount,
		})
	}

	if trigger != TriggerRetry && o.retryable() && s.retries != nil {
		err := s.retries.EnqueuePixelSyncRetry(ctx, ports.SyncRetry{
			UserID:       userID,
			ConnectionID: c.ID,
			LeadIDs:      o.unaccepted(),
			SyncType:     syncType,
		})
		if err != nil {
			s.log.Error("failed to schedule pixel sync retry", "connectionId", c.ID, "error", err)
		} else {
			result.RetryScheduled = true
		}
	}
	return result
}

// RetrySync re-pushes leads to one connection from the task queue. A returned
// error asks the queue to retry; ErrRetryPointless stops it.
func (s *Service) RetrySync(ctx context.Context, r ports.SyncRetry) error {
	c, err := s.repo.Get(ctx, r.UserID, r.ConnectionID)
	if apperr.Is(err, apperr.KindNotFound) {
		return fmt.Errorf("%w: connection %s deleted", ErrRetryPointless, r.ConnectionID)
	}
	if err != nil {
		return err
	}
	if c.Status != repository.StatusActive {
		return fmt.Errorf("%w: connection %s is %s", ErrRetryPointless, c.ID, c.Status)
	}

	candidates, err := s.leads.SyncCandidates(ctx, r.UserID, r.LeadIDs, r.SyncType)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no leads left to sync", ErrRetryPointless)
	}

	o := s.push(ctx, c, candidates, r.SyncType)
	s.settle(ctx, r.UserID, o, r.SyncType, TriggerRetry)

	if errors.Is(o.err, platforms.ErrExpiredCredentials) || errors.Is(o.err, platforms.ErrPlatformRejected) {
		return fmt.Errorf("%w: %v", ErrRetryPointless, o.err)
	}
	if len(o.accepted) > 0 {
		if err := s.leads.MarkSynced(ctx, r.UserID, o.accepted, r.SyncType, s.now()); err != nil {
			return fmt.Errorf("mark synced: %w", err)
		}
	}

	switch {
	case o.err != nil:
		return o.err
	case o.res.Retryable > 0:
		return fmt.Errorf("pixel sync retry: %d leads failed transiently", o.res.Retryable)
	case o.res.FailedCount > 0:
		return fmt.Errorf("%w: %d leads rejected permanently", ErrRetryPointless, o.res.FailedCount)
	case o.success():
		return nil
	default:
		return fmt.Errorf("%w: nothing to push", ErrRetryPointless)
	}
}
