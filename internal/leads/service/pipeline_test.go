package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"glasswallet_backend/internal/events"
	"glasswallet_backend/internal/leads/ports"
	"glasswallet_backend/internal/leads/repository"
	"glasswallet_backend/internal/leads/transport"
	"glasswallet_backend/internal/rules/defaults"
	"glasswallet_backend/internal/rules/engine"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type fakeRepo struct {
	mu    sync.Mutex
	leads map[uuid.UUID]repository.Lead
	tags  map[uuid.UUID]map[string]repository.Tag
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{leads: map[uuid.UUID]repository.Lead{}, tags: map[uuid.UUID]map[string]repository.Tag{}}
}

func (f *fakeRepo) add(userID uuid.UUID, score *int, income *int64) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.leads[id] = repository.Lead{ID: id, UserID: userID, FirstName: "Ada", LastName: "Lovelace",
		CreditScore: score, IncomeEstimate: income, ConsentGiven: true, Source: repository.SourceManual}
	return id
}

func (f *fakeRepo) setCredit(id uuid.UUID, score int, income int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.leads[id]
	l.CreditScore = &score
	l.IncomeEstimate = &income
	f.leads[id] = l
}

func (f *fakeRepo) GetByID(_ context.Context, userID, id uuid.UUID) (repository.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok || l.UserID != userID {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	return l, nil
}

func (f *fakeRepo) GetMany(_ context.Context, userID uuid.UUID, ids []uuid.UUID) ([]repository.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []repository.Lead{}
	for _, id := range ids {
		if l, ok := f.leads[id]; ok && l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) List(context.Context, repository.ListParams) ([]repository.Lead, int, error) {
	return nil, 0, nil
}

func (f *fakeRepo) Create(_ context.Context, p repository.CreateLeadParams) (repository.Lead, error) {
	l := repository.Lead{ID: uuid.New(), UserID: p.UserID, FirstName: p.FirstName, LastName: p.LastName,
		Email: p.Email, Phone: p.Phone, State: p.State, ConsentGiven: p.ConsentGiven, Source: p.Source}
	f.mu.Lock()
	f.leads[l.ID] = l
	f.mu.Unlock()
	return l, nil
}

func (f *fakeRepo) Update(context.Context, uuid.UUID, uuid.UUID, repository.UpdateLeadParams) (repository.Lead, error) {
	return repository.Lead{}, nil
}

func (f *fakeRepo) Delete(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (f *fakeRepo) upsert(leadID uuid.UUID, w repository.TagWrite) repository.Tag {
	if f.tags[leadID] == nil {
		f.tags[leadID] = map[string]repository.Tag{}
	}
	if w.Remove != "" {
		delete(f.tags[leadID], w.Remove)
	}
	t, ok := f.tags[leadID][w.TagType]
	if !ok {
		t = repository.Tag{ID: uuid.New(), LeadID: leadID, TagType: w.TagType}
	}
	if ok && t.Reason != w.Reason {
		t.SyncedToPixels = false
	}
	t.Reason = w.Reason
	t.RuleID = w.RuleID
	f.tags[leadID][w.TagType] = t
	return t
}

func (f *fakeRepo) ApplyTags(ctx context.Context, leadID uuid.UUID, writes []repository.TagWrite, hook repository.TxHook) ([]repository.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hook != nil {
		// A failing hook rolls the write back, so tags are stored only after it succeeds.
		if err := hook(ctx, nil); err != nil {
			return nil, err
		}
	}
	out := []repository.Tag{}
	for _, w := range writes {
		out = append(out, f.upsert(leadID, w))
	}
	return out, nil
}

func (f *fakeRepo) BulkApplyTag(_ context.Context, leadIDs []uuid.UUID, w repository.TagWrite) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range leadIDs {
		f.upsert(id, w)
	}
	return len(leadIDs), nil
}

func (f *fakeRepo) RemoveTag(_ context.Context, _ uuid.UUID, leadID uuid.UUID, tagType string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tags[leadID][tagType]; !ok {
		return 0, nil
	}
	delete(f.tags[leadID], tagType)
	return 1, nil
}

func (f *fakeRepo) ListTags(_ context.Context, _ uuid.UUID, leadID uuid.UUID) ([]repository.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []repository.Tag{}
	for _, t := range f.tags[leadID] {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRepo) ListTagsForLeads(context.Context, uuid.UUID, []uuid.UUID) (map[uuid.UUID][]repository.Tag, error) {
	return map[uuid.UUID][]repository.Tag{}, nil
}

func (f *fakeRepo) MarkTagsSynced(context.Context, uuid.UUID, []uuid.UUID, string, time.Time) (int64, error) {
	return 0, nil
}

type defaultRules struct{ rules []engine.Rule }

func (d defaultRules) Evaluate(_ context.Context, _ uuid.UUID, facts engine.Facts) (engine.Result, error) {
	return engine.Evaluate(facts, d.rules, engine.PolicyCumulative), nil
}

func loadDefaultRules(t *testing.T) defaultRules {
	t.Helper()
	pack, err := defaults.Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	return defaultRules{rules: defaults.EngineRules(pack)}
}

// fakeCredit simulates a pull by writing a fixed score onto the lead.
type fakeCredit struct {
	repo   *fakeRepo
	failOn map[uuid.UUID]error
}

func (c *fakeCredit) Pull(_ context.Context, _ uuid.UUID, leadID uuid.UUID, consent bool) (ports.CreditOutcome, error) {
	if !consent {
		return ports.CreditOutcome{}, apperr.BusinessLogic("CONSENT_REQUIRED", "consent required")
	}
	if err := c.failOn[leadID]; err != nil {
		return ports.CreditOutcome{}, err
	}
	c.repo.setCredit(leadID, 750, 7_500_000)
	score, income := 750, int64(7_500_000)
	return ports.CreditOutcome{CreditScore: &score, IncomeEstimate: &income, CostInCents: 100}, nil
}

type fakePixels struct {
	mu     sync.Mutex
	syncs  []ports.PixelSyncRequest
	conns  []uuid.UUID
	byType map[string][]uuid.UUID
}

func (p *fakePixels) Sync(_ context.Context, _ uuid.UUID, req ports.PixelSyncRequest) (ports.PixelSyncSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncs = append(p.syncs, req)
	return ports.PixelSyncSummary{SyncType: req.SyncType}, nil
}

func (p *fakePixels) AutoSyncConnections(_ context.Context, _ uuid.UUID, syncType string) ([]uuid.UUID, error) {
	if conns, ok := p.byType[syncType]; ok {
		return conns, nil
	}
	return p.conns, nil
}

type fakeStager struct {
	staged []events.LeadTagged
	err    error
}

func (s *fakeStager) StageLeadTagged(_ context.Context, _ pgx.Tx, e events.LeadTagged) error {
	if s.err != nil {
		return s.err
	}
	s.staged = append(s.staged, e)
	return nil
}

func newPipeline(t *testing.T) (*Service, *fakeRepo, *fakePixels) {
	repo := newFakeRepo()
	pixels := &fakePixels{conns: []uuid.UUID{uuid.New()}}
	svc := New(Deps{
		Repo:   repo,
		Credit: &fakeCredit{repo: repo, failOn: map[uuid.UUID]error{}},
		Rules:  loadDefaultRules(t),
		Pixels: pixels,
		Log:    logger.New("development"),
	})
	return svc, repo, pixels
}

func ptrInt(v int) *int       { return &v }
func ptrInt64(v int64) *int64 { return &v }

func TestAutoTagDefaultScenario(t *testing.T) {
	svc, repo, _ := newPipeline(t)
	userID := uuid.New()
	leadID := repo.add(userID, ptrInt(750), ptrInt64(7_500_000))

	resp, err := svc.AutoTag(context.Background(), userID, leadID)
	if err != nil {
		t.Fatalf("auto-tag: %v", err)
	}
	if len(resp.Decisions) != 2 || resp.Decisions[0].TagType != engine.TagQualified || resp.Decisions[1].TagType != engine.TagWhitelist {
		t.Fatalf("expected [qualified whitelist], got %+v", resp.Decisions)
	}
	if len(resp.WebhookEvents) != 1 || resp.WebhookEvents[0] != "lead.qualified" {
		t.Fatalf("unexpected webhook events %v", resp.WebhookEvents)
	}
	if len(repo.tags[leadID]) != 2 {
		t.Fatalf("expected two stored tags, got %d", len(repo.tags[leadID]))
	}
}

func TestAutoTagStagesWebhooksWithTags(t *testing.T) {
	svc, repo, _ := newPipeline(t)
	stager := &fakeStager{}
	svc.SetWebhookStager(stager)
	userID := uuid.New()
	leadID := repo.add(userID, ptrInt(750), ptrInt64(7_500_000))

	if _, err := svc.AutoTag(context.Background(), userID, leadID); err != nil {
		t.Fatalf("auto-tag: %v", err)
	}
	if len(stager.staged) != 1 {
		t.Fatalf("expected one staged event, got %d", len(stager.staged))
	}
	got := stager.staged[0]
	if got.LeadID != leadID || got.UserID != userID || len(got.WebhookEvents) != 1 || got.WebhookEvents[0] != "lead.qualified" {
		t.Fatalf("unexpected staged event %+v", got)
	}
}

func TestAutoTagRollsBackWhenWebhookCannotBeQueued(t *testing.T) {
	svc, repo, _ := newPipeline(t)
	svc.SetWebhookStager(&fakeStager{err: errors.New("outbox unavailable")})
	userID := uuid.New()
	leadID := repo.add(userID, ptrInt(750), ptrInt64(7_500_000))

	if _, err := svc.AutoTag(context.Background(), userID, leadID); err == nil {
		t.Fatalf("expected auto-tag to fail when the webhook cannot be queued")
	}
	if len(repo.tags[leadID]) != 0 {
		t.Fatalf("expected no stored tags after rollback, got %d", len(repo.tags[leadID]))
	}
}

func TestAutoTagWithoutScoreIsUntagged(t *testing.T) {
	svc, repo, _ := newPipeline(t)
	userID := uuid.New()
	leadID := repo.add(userID, nil, nil)

	resp, err := svc.AutoTag(context.Background(), userID, leadID)
	if err != nil {
		t.Fatalf("auto-tag: %v", err)
	}
	if len(resp.Decisions) != 0 || len(repo.tags[leadID]) != 0 {
		t.Fatalf("expected no tags, got %+v", resp.Decisions)
	}
}

func TestManualTagReplacesOpposite(t *testing.T) {
	svc, repo, _ := newPipeline(t)
	userID := uuid.New()
	leadID := repo.add(userID, nil, nil)
	ctx := context.Background()

	if _, err := svc.Tag(ctx, userID, leadID, transport.TagRequest{TagType: "blacklist"}); err != nil {
		t.Fatalf("tag: %v", err)
	}
	if _, err := svc.Tag(ctx, userID, leadID, transport.TagRequest{TagType: "whitelist"}); err != nil {
		t.Fatalf("tag: %v", err)
	}
	if _, ok := repo.tags[leadID]["blacklist"]; ok {
		t.Fatalf("blacklist should have been removed")
	}
}

func TestRemoveMissingTagIsNotFound(t *testing.T) {
	svc, repo, _ := newPipeline(t)
	userID := uuid.New()
	leadID := repo.add(userID, nil, nil)

	err := svc.RemoveTag(context.Background(), userID, leadID, "qualified")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBulkTagRejectsForeignLeads(t *testing.T) {
	svc, repo, _ := newPipeline(t)
	userID := uuid.New()
	mine := repo.add(userID, nil, nil)
	theirs := repo.add(uuid.New(), nil, nil)

	_, err := svc.BulkTag(context.Background(), userID, transport.BulkTagRequest{
		LeadIDs: []uuid.UUID{mine, theirs}, TagType: "whitelist",
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(repo.tags[mine]) != 0 {
		t.Fatalf("no lead may be tagged when one is missing")
	}
}

func TestBulkTagRejectsMoreThanHundred(t *testing.T) {
	svc, _, _ := newPipeline(t)
	ids := make([]uuid.UUID, 101)
	for i := range ids {
		ids[i] = uuid.New()
	}
	_, err := svc.BulkTag(context.Background(), uuid.New(), transport.BulkTagRequest{LeadIDs: ids, TagType: "whitelist"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBatchQualifyKeepsInputOrder(t *testing.T) {
	svc, repo, _ := newPipeline(t)
	userID := uuid.New()
	ids := make([]uuid.UUID, 12)
	for i := range ids {
		ids[i] = repo.add(userID, nil, nil)
	}
	failing := ids[3]
	svc.credit.(*fakeCredit).failOn[failing] = apperr.InsufficientCredits("insufficient credits")

	resp, err := svc.BatchQualify(context.Background(), userID, transport.BatchQualifyRequest{LeadIDs: ids, ConsentGiven: true})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if resp.Total != 12 || resp.Succeeded != 11 || resp.Failed != 1 {
		t.Fatalf("unexpected totals %+v", resp)
	}
	for i, item := range resp.Results {
		if item.LeadID != ids[i] {
			t.Fatalf("result %d out of order", i)
		}
	}
	if resp.Results[3].Error == nil || resp.Results[3].Error.Code != apperr.CodeInsufficientCredits {
		t.Fatalf("expected insufficient credits on item 3, got %+v", resp.Results[3])
	}
	if resp.Results[0].Result.Tagging == nil || len(resp.Results[0].Result.Tagging.Decisions) != 2 {
		t.Fatalf("expected tagging after pull")
	}
}

func TestTagAndSyncPushesSyncableDecisions(t *testing.T) {
	svc, repo, pixels := newPipeline(t)
	userID := uuid.New()
	leadID := repo.add(userID, ptrInt(750), ptrInt64(7_500_000))

	resp, err := svc.TagAndSync(context.Background(), userID, leadID, transport.TagAndSyncRequest{})
	if err != nil {
		t.Fatalf("tag and sync: %v", err)
	}
	if len(resp.Syncs) != 1 || len(pixels.syncs) != 1 {
		t.Fatalf("expected one sync for the shared connection, got %d", len(pixels.syncs))
	}
	if pixels.syncs[0].SyncType != "qualified" || pixels.syncs[0].Trigger != TriggerAuto {
		t.Fatalf("unexpected first sync %+v", pixels.syncs[0])
	}
}

func TestTagAndSyncPushesLeadOncePerConnection(t *testing.T) {
	svc, repo, pixels := newPipeline(t)
	shared, whitelistOnly := uuid.New(), uuid.New()
	pixels.byType = map[string][]uuid.UUID{
		"qualified": {shared},
		"whitelist": {shared, whitelistOnly},
	}
	userID := uuid.New()
	leadID := repo.add(userID, ptrInt(750), ptrInt64(7_500_000))

	if _, err := svc.TagAndSync(context.Background(), userID, leadID, transport.TagAndSyncRequest{}); err != nil {
		t.Fatalf("tag and sync: %v", err)
	}
	if len(pixels.syncs) != 2 {
		t.Fatalf("expected qualified and whitelist syncs, got %+v", pixels.syncs)
	}
	second := pixels.syncs[1]
	if second.SyncType != "whitelist" || len(second.ConnectionIDs) != 1 || second.ConnectionIDs[0] != whitelistOnly {
		t.Fatalf("expected whitelist sync to skip the shared connection, got %+v", second)
	}
}

func TestTagAndSyncSkipsBlacklist(t *testing.T) {
	svc, repo, pixels := newPipeline(t)
	userID := uuid.New()
	leadID := repo.add(userID, ptrInt(550), ptrInt64(1_000_000))

	if _, err := svc.TagAndSync(context.Background(), userID, leadID, transport.TagAndSyncRequest{}); err != nil {
		t.Fatalf("tag and sync: %v", err)
	}
	if len(pixels.syncs) != 0 {
		t.Fatalf("blacklist must not be pushed, got %+v", pixels.syncs)
	}
}
