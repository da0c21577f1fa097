package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"glasswallet_backend/internal/events"
	"glasswallet_backend/internal/pixels/platforms"
	"glasswallet_backend/internal/pixels/ports"
	"glasswallet_backend/internal/pixels/repository"
	"glasswallet_backend/internal/pixels/transport"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/cache"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/secretbox"

	"github.com/google/uuid"
)

type fakeRepo struct {
	mu       sync.Mutex
	conns    map[uuid.UUID]repository.Connection
	logs     []repository.SyncLog
	recorded []uuid.UUID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{conns: map[uuid.UUID]repository.Connection{}}
}

func (r *fakeRepo) Create(_ context.Context, c repository.Connection) (repository.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.conns {
		if existing.UserID == c.UserID && existing.Name == c.Name {
			return repository.Connection{}, apperr.Conflict("name taken")
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	r.conns[c.ID] = c
	return c, nil
}

func (r *fakeRepo) Get(_ context.Context, userID, id uuid.UUID) (repository.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok || c.UserID != userID {
		return repository.Connection{}, apperr.NotFound("pixel connection not found")
	}
	return c, nil
}

func (r *fakeRepo) GetMany(_ context.Context, userID uuid.UUID, ids []uuid.UUID) ([]repository.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Connection
	for _, id := range ids {
		if c, ok := r.conns[id]; ok && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeRepo) List(_ context.Context, userID uuid.UUID) ([]repository.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Connection
	for _, c := range r.conns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListAutoSync(_ context.Context, userID uuid.UUID, syncType string) ([]repository.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Connection
	for _, c := range r.conns {
		if c.UserID != userID || c.Status != repository.StatusActive || !c.Settings.AutoSync {
			continue
		}
		for _, t := range c.Settings.SyncTypes {
			if t == syncType {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) Update(_ context.Context, userID, id uuid.UUID, upd repository.ConnectionUpdate) (repository.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok || c.UserID != userID {
		return repository.Connection{}, apperr.NotFound("pixel connection not found")
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.Settings != nil {
		c.Settings = *upd.Settings
	}
	r.conns[id] = c
	return c, nil
}

func (r *fakeRepo) UpdateCredentials(_ context.Context, c repository.Connection) (repository.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Status = repository.StatusActive
	r.conns[c.ID] = c
	return c, nil
}

func (r *fakeRepo) FindByName(_ context.Context, userID uuid.UUID, name string) (repository.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.UserID == userID && c.Name == name {
			return c, nil
		}
	}
	return repository.Connection{}, apperr.NotFound("pixel connection not found")
}

func (r *fakeRepo) Delete(_ context.Context, userID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	return nil
}

func (r *fakeRepo) SetStatus(_ context.Context, id uuid.UUID, status string, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[id]
	c.Status = status
	c.LastError = lastError
	r.conns[id] = c
	return nil
}

func (r *fakeRepo) RecordSync(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[id]
	c.LastSyncAt = &at
	r.conns[id] = c
	r.recorded = append(r.recorded, id)
	return nil
}

func (r *fakeRepo) InsertSyncLog(_ context.Context, l repository.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, l)
	return nil
}

func (r *fakeRepo) ListSyncLogs(_ context.Context, p repository.SyncLogParams) ([]repository.SyncLog, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs, len(r.logs), nil
}

type fakeAdapter struct {
	platform platforms.Platform
	mu       sync.Mutex
	calls    int
	pushed   [][]platforms.Lead
	err      error
	result   func([]platforms.Lead) platforms.PushResult
}

func (a *fakeAdapter) Platform() platforms.Platform { return a.platform }

func (a *fakeAdapter) AuthURL(state, redirectURI string) string {
	return "https://auth.example.com/?state=" + state + "&redirect_uri=" + url.QueryEscape(redirectURI)
}

func (a *fakeAdapter) ExchangeCode(_ context.Context, code, _ string) (platforms.Credentials, error) {
	return platforms.Credentials{AccessToken: "at-" + code, AccountID: "acct"}, nil
}

func (a *fakeAdapter) FetchAccounts(context.Context, platforms.Credentials) ([]platforms.Account, error) {
	return []platforms.Account{{ID: "acct", Name: "Main"}}, a.err
}

func (a *fakeAdapter) PushLeads(_ context.Context, creds platforms.Credentials, leads []platforms.Lead, _ string) (platforms.PushResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.pushed = append(a.pushed, leads)
	if creds.AccessToken == "" {
		return platforms.PushResult{}, errors.New("credentials not unsealed")
	}
	if a.err != nil {
		return platforms.PushResult{}, a.err
	}
	if a.result != nil {
		return a.result(leads), nil
	}
	res := platforms.PushResult{SyncedCount: len(leads), Errors: []string{}}
	for _, l := range leads {
		res.Accepted = append(res.Accepted, l.ID)
	}
	return res, nil
}

// matchOnlyWithEmail accepts leads that carry an email and rejects the rest
// permanently, the way the real adapters treat unmatchable leads.
func matchOnlyWithEmail(leads []platforms.Lead) platforms.PushResult {
	res := platforms.PushResult{Errors: []string{}}
	for _, l := range leads {
		if l.Email == "" {
			res.FailedCount++
			res.Errors = append(res.Errors, "lead "+l.ID+": no email or phone to match")
			continue
		}
		res.SyncedCount++
		res.Accepted = append(res.Accepted, l.ID)
	}
	return res
}

type fakeLeads struct {
	mu       sync.Mutex
	tagged   map[uuid.UUID]platforms.Lead
	marked   []uuid.UUID
	markType string
}

func (f *fakeLeads) SyncCandidates(_ context.Context, _ uuid.UUID, ids []uuid.UUID, _ string) ([]platforms.Lead, error) {
	var out []platforms.Lead
	for _, id := range ids {
		if l, ok := f.tagged[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeads) MarkSynced(_ context.Context, _ uuid.UUID, ids []uuid.UUID, tagType string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, ids...)
	f.markType = tagType
	return nil
}

type fakeRetries struct {
	mu      sync.Mutex
	retries []ports.SyncRetry
}

func (f *fakeRetries) EnqueuePixelSyncRetry(_ context.Context, r ports.SyncRetry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, r)
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
	synced []string
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.synced = append(b.synced, e.EventName())
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

type harness struct {
	svc     *Service
	repo    *fakeRepo
	leads   *fakeLeads
	retries *fakeRetries
	bus     *recordingBus
	meta    *fakeAdapter
	tiktok  *fakeAdapter
	box     *secretbox.Box
	userID  uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	box, err := secretbox.New("test-encryption-secret-value")
	if err != nil {
		t.Fatalf("secretbox: %v", err)
	}
	h := &harness{
		repo:    newFakeRepo(),
		leads:   &fakeLeads{tagged: map[uuid.UUID]platforms.Lead{}},
		retries: &fakeRetries{},
		bus:     &recordingBus{},
		meta:    &fakeAdapter{platform: platforms.Meta},
		tiktok:  &fakeAdapter{platform: platforms.TikTok},
		box:     box,
		userID:  uuid.New(),
	}
	h.svc = New(Deps{
		Repo:       h.repo,
		Adapters:   platforms.NewRegistry(h.meta, h.tiktok),
		Box:        box,
		Cache:      cache.NewMemoryStore(),
		Leads:      h.leads,
		Retries:    h.retries,
		Bus:        h.bus,
		Log:        logger.New("development"),
		AppBaseURL: "https://app.example.com",
		APIBaseURL: "https://api.example.com",
	})
	return h
}

func (h *harness) connection(t *testing.T, p platforms.Platform, name, status string) uuid.UUID {
	t.Helper()
	sealed, err := h.box.Seal("token-" + name)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	c, _ := h.repo.Create(context.Background(), repository.Connection{
		UserID:            h.userID,
		Platform:          string(p),
		Name:              name,
		PixelID:           "px",
		SealedAccessToken: sealed,
		Status:            status,
	})
	return c.ID
}

func (h *harness) taggedLead(score int) uuid.UUID {
	id := uuid.New()
	h.leads.tagged[id] = platforms.Lead{ID: id.String(), Email: id.String() + "@example.com", CreditScore: &score}
	return id
}

func TestSyncRejectsInactiveConnectionsWithoutSideEffects(t *testing.T) {
	h := newHarness(t)
	active := h.connection(t, platforms.Meta, "Main pixel", repository.StatusActive)
	inactive := h.connection(t, platforms.TikTok, "Paused TikTok", repository.StatusInactive)
	lead := h.taggedLead(760)

	_, err := h.svc.Sync(context.Background(), h.userID, SyncInput{
		LeadIDs:       []uuid.UUID{lead},
		ConnectionIDs: []uuid.UUID{active, inactive},
		SyncType:      "qualified",
	})
	if !apperr.HasCode(err, "INACTIVE_CONNECTIONS") {
		t.Fatalf("expected INACTIVE_CONNECTIONS, got %v", err)
	}
	if !strings.Contains(err.Error(), "Paused TikTok") {
		t.Fatalf("expected error to name the inactive connection, got %q", err.Error())
	}
	if h.meta.calls != 0 || h.tiktok.calls != 0 {
		t.Fatalf("expected no platform calls")
	}
	if len(h.leads.marked) != 0 || len(h.repo.logs) != 0 {
		t.Fatalf("expected no side effects")
	}
}

func TestSyncRejectsUnknownConnection(t *testing.T) {
	h := newHarness(t)
	active := h.connection(t, platforms.Meta, "Main pixel", repository.StatusActive)

	_, err := h.svc.Sync(context.Background(), h.userID, SyncInput{
		LeadIDs:       []uuid.UUID{h.taggedLead(700)},
		ConnectionIDs: []uuid.UUID{active, uuid.New()},
		SyncType:      "qualified",
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if h.meta.calls != 0 {
		t.Fatalf("expected no platform calls")
	}
}

func TestSyncIsolatesConnectionFailures(t *testing.T) {
	h := newHarness(t)
	h.tiktok.err = platforms.ErrPlatformUnavailable
	metaID := h.connection(t, platforms.Meta, "Main pixel", repository.StatusActive)
	tiktokID := h.connection(t, platforms.TikTok, "TikTok", repository.StatusActive)
	a, b := h.taggedLead(760), h.taggedLead(710)
	untagged := uuid.New()

	resp, err := h.svc.Sync(context.Background(), h.userID, SyncInput{
		LeadIDs:       []uuid.UUID{a, b, untagged, a},
		ConnectionIDs: []uuid.UUID{metaID, tiktokID},
		SyncType:      "qualified",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.TotalLeads != 2 || resp.Skipped != 1 {
		t.Fatalf("expected 2 leads and 1 skipped, got %d/%d", resp.TotalLeads, resp.Skipped)
	}
	if resp.TotalSynced != 2 || resp.TotalFailed != 2 || resp.SuccessfulConnections != 1 {
		t.Fatalf("unexpected totals %+v", resp)
	}
	if len(resp.Results) != 2 || resp.Results[0].ConnectionID != metaID || !resp.Results[0].Success {
		t.Fatalf("expected results in request order, got %+v", resp.Results)
	}
	if resp.Results[1].Success || !resp.Results[1].RetryScheduled {
		t.Fatalf("expected failed tiktok result with retry, got %+v", resp.Results[1])
	}
	if len(h.retries.retries) != 1 || h.retries.retries[0].ConnectionID != tiktokID {
		t.Fatalf("expected one retry for tiktok, got %+v", h.retries.retries)
	}
	if len(h.leads.marked) != 2 || h.leads.markType != "qualified" {
		t.Fatalf("expected both leads marked synced, got %v", h.leads.marked)
	}
	if len(h.repo.recorded) != 1 || h.repo.recorded[0] != metaID {
		t.Fatalf("expected last_sync_at only on meta, got %v", h.repo.recorded)
	}
	if len(h.repo.logs) != 2 {
		t.Fatalf("expected a sync log per connection, got %d", len(h.repo.logs))
	}
}

func TestSyncExpiredCredentialsFlipConnection(t *testing.T) {
	h := newHarness(t)
	h.meta.err = platforms.ErrExpiredCredentials
	id := h.connection(t, platforms.Meta, "Main pixel", repository.StatusActive)

	resp, err := h.svc.Sync(context.Background(), h.userID, SyncInput{
		LeadIDs:       []uuid.UUID{h.taggedLead(780)},
		ConnectionIDs: []uuid.UUID{id},
		SyncType:      "whitelist",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SuccessfulConnections != 0 || resp.Results[0].RetryScheduled {
		t.Fatalf("expected failure without retry, got %+v", resp.Results[0])
	}
	if h.repo.conns[id].Status != repository.StatusExpired {
		t.Fatalf("expected connection to be expired, got %s", h.repo.conns[id].Status)
	}
	if h.bus.count("pixels.connection.expired") != 1 {
		t.Fatalf("expected expiry event")
	}
	if len(h.bus.synced) != 1 || h.bus.synced[0] != "pixels.connection.expired" {
		t.Fatalf("expected the expiry email to be queued inline, got %v", h.bus.synced)
	}
	if len(h.leads.marked) != 0 {
		t.Fatalf("expected no tags marked synced")
	}
}

func TestSyncAppliesMinCreditScore(t *testing.T) {
	h := newHarness(t)
	id := h.connection(t, platforms.Meta, "Prime only", repository.StatusActive)
	minScore := 740
	c := h.repo.conns[id]
	c.Settings.MinCreditScore = &minScore
	h.repo.conns[id] = c
	high, low := h.taggedLead(790), h.taggedLead(650)

	resp, err := h.svc.Sync(context.Background(), h.userID, SyncInput{
		LeadIDs:       []uuid.UUID{high, low},
		ConnectionIDs: []uuid.UUID{id},
		SyncType:      "qualified",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.TotalSynced != 1 || len(h.meta.pushed[0]) != 1 || h.meta.pushed[0][0].ID != high.String() {
		t.Fatalf("expected only the high score lead pushed, got %+v", h.meta.pushed)
	}
	if len(h.leads.marked) != 1 || h.leads.marked[0] != high {
		t.Fatalf("expected only pushed lead marked, got %v", h.leads.marked)
	}
}

func TestRetrySyncStopsOnInactiveConnection(t *testing.T) {
	h := newHarness(t)
	id := h.connection(t, platforms.Meta, "Main pixel", repository.StatusInactive)

	err := h.svc.RetrySync(context.Background(), ports.SyncRetry{
		UserID: h.userID, ConnectionID: id, LeadIDs: []uuid.UUID{h.taggedLead(700)}, SyncType: "qualified",
	})
	if !errors.Is(err, ErrRetryPointless) {
		t.Fatalf("expected ErrRetryPointless, got %v", err)
	}
}

func TestRetrySyncSucceedsAndMarksTags(t *testing.T) {
	h := newHarness(t)
	id := h.connection(t, platforms.Meta, "Main pixel", repository.StatusActive)
	lead := h.taggedLead(700)

	err := h.svc.RetrySync(context.Background(), ports.SyncRetry{
		UserID: h.userID, ConnectionID: id, LeadIDs: []uuid.UUID{lead}, SyncType: "qualified",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.leads.marked) != 1 || h.repo.logs[0].Trigger != TriggerRetry {
		t.Fatalf("expected retry to mark tags and log with retry trigger")
	}
}

func TestRetrySyncReturnsErrorForTransientFailure(t *testing.T) {
	h := newHarness(t)
	h.meta.err = platforms.ErrPlatformUnavailable
	id := h.connection(t, platforms.Meta, "Main pixel", repository.StatusActive)

	err := h.svc.RetrySync(context.Background(), ports.SyncRetry{
		UserID: h.userID, ConnectionID: id, LeadIDs: []uuid.UUID{h.taggedLead(700)}, SyncType: "qualified",
	})
	if err == nil || errors.Is(err, ErrRetryPointless) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if len(h.retries.retries) != 0 {
		t.Fatalf("retry runs must not schedule more retries")
	}
}

func TestOAuthRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.svc.OAuthConnect(ctx, h.userID, "meta", "Brand pixel")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !strings.Contains(out.AuthURL, url.QueryEscape("https://api.example.com/api/v1/pixels/oauth/meta/callback")) {
		t.Fatalf("expected callback url in auth url, got %s", out.AuthURL)
	}

	redirect := h.svc.OAuthCallback(ctx, "meta", "code-1", out.State, "")
	if redirect != "https://app.example.com/pixels?success=meta" {
		t.Fatalf("unexpected redirect %s", redirect)
	}
	conn, err := h.repo.FindByName(ctx, h.userID, "Brand pixel")
	if err != nil {
		t.Fatalf("expected connection to be saved: %v", err)
	}
	token, _ := h.box.Open(conn.SealedAccessToken)
	if token != "at-code-1" || conn.SealedAccessToken == "at-code-1" {
		t.Fatalf("expected sealed token, got %q", conn.SealedAccessToken)
	}

	again := h.svc.OAuthCallback(ctx, "meta", "code-2", out.State, "")
	if again != "https://app.example.com/pixels?error=invalid_state" {
		t.Fatalf("expected state to be single use, got %s", again)
	}
}

func TestOAuthCallbackDenied(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	out, _ := h.svc.OAuthConnect(ctx, h.userID, "tiktok", "")

	redirect := h.svc.OAuthCallback(ctx, "tiktok", "", out.State, "access_denied")
	if redirect != "https://app.example.com/pixels?error=access_denied" {
		t.Fatalf("unexpected redirect %s", redirect)
	}
}

func TestTestConnectionExpired(t *testing.T) {
	h := newHarness(t)
	h.meta.err = platforms.ErrExpiredCredentials
	id := h.connection(t, platforms.Meta, "Main pixel", repository.StatusActive)

	out, err := h.svc.TestConnection(context.Background(), h.userID, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.OK || out.Status != repository.StatusExpired {
		t.Fatalf("expected expired result, got %+v", out)
	}
}

func TestCreateConnectionSealsTokens(t *testing.T) {
	h := newHarness(t)
	out, err := h.svc.CreateConnection(context.Background(), h.userID, transport.CreateConnectionRequest{
		Platform:    "google-ads",
		Name:        "Ads",
		AccessToken: "plain-token",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Platform != "GOOGLE_ADS" || out.SyncSettings.SyncTypes[0] != "qualified" {
		t.Fatalf("unexpected connection %+v", out)
	}
	if h.repo.conns[out.ID].SealedAccessToken == "plain-token" {
		t.Fatalf("expected token sealed at rest")
	}
	if _, err := h.svc.CreateConnection(context.Background(), h.userID, transport.CreateConnectionRequest{
		Platform: "myspace", Name: "x", AccessToken: "t",
	}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func (h *harness) anonymousLead(score int) uuid.UUID {
	id := uuid.New()
	h.leads.tagged[id] = platforms.Lead{ID: id.String(), CreditScore: &score}
	return id
}

func TestSyncMarksOnlyAcceptedLeads(t *testing.T) {
	h := newHarness(t)
	h.meta.result = matchOnlyWithEmail
	id := h.connection(t, platforms.Meta, "Main pixel", repository.StatusActive)
	matched, unmatched := h.taggedLead(760), h.anonymousLead(740)

	resp, err := h.svc.Sync(context.Background(), h.userID, SyncInput{
		LeadIDs:       []uuid.UUID{matched, unmatched},
		ConnectionIDs: []uuid.UUID{id},
		SyncType:      "qualified",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.TotalSynced != 1 || resp.TotalFailed != 1 {
		t.Fatalf("expected 1 synced 1 failed, got %+v", resp)
	}
	if len(h.leads.marked) != 1 || h.leads.marked[0] != matched {
		t.Fatalf("expected only the accepted lead marked, got %v", h.leads.marked)
	}
	if resp.Results[0].RetryScheduled || len(h.retries.retries) != 0 {
		t.Fatalf("permanent rejections must not schedule a retry")
	}
}

func TestSyncDoesNotRetryPermanentFailures(t *testing.T) {
	h := newHarness(t)
	h.meta.result = matchOnlyWithEmail
	id := h.connection(t, platforms.Meta, "Main pixel", repository.StatusActive)

	resp, err := h.svc.Sync(context.Background(), h.userID, SyncInput{
		LeadIDs:       []uuid.UUID{h.anonymousLead(700)},
		ConnectionIDs: []uuid.UUID{id},
		SyncType:      "qualified",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Results[0].RetryScheduled || len(h.retries.retries) != 0 {
		t.Fatalf("expected no retry for an unmatchable lead, got %+v", h.retries.retries)
	}
}

func TestSyncRetriesOnlyTransientFailures(t *testing.T) {
	h := newHarness(t)
	h.meta.result = func(leads []platforms.Lead) platforms.PushResult {
		return platforms.PushResult{
			SyncedCount: 1,
			FailedCount: 1,
			Retryable:   1,
			Accepted:    []string{leads[0].ID},
			Errors:      []string{"platform unavailable: status 503"},
		}
	}
	id := h.connection(t, platforms.Meta, "Main pixel", repository.StatusActive)
	first, second := h.taggedLead(760), h.taggedLead(720)

	resp, err := h.svc.Sync(context.Background(), h.userID, SyncInput{
		LeadIDs:       []uuid.UUID{first, second},
		ConnectionIDs: []uuid.UUID{id},
		SyncType:      "qualified",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Results[0].RetryScheduled || len(h.retries.retries) != 1 {
		t.Fatalf("expected one retry, got %+v", h.retries.retries)
	}
	if ids := h.retries.retries[0].LeadIDs; len(ids) != 1 || ids[0] != second {
		t.Fatalf("expected retry to resend only the unaccepted lead, got %v", ids)
	}
}

func TestRetrySyncStopsOnPermanentRejection(t *testing.T) {
	h := newHarness(t)
	h.meta.result = matchOnlyWithEmail
	id := h.connection(t, platforms.Meta, "Main pixel", repository.StatusActive)

	err := h.svc.RetrySync(context.Background(), ports.SyncRetry{
		UserID: h.userID, ConnectionID: id, LeadIDs: []uuid.UUID{h.anonymousLead(700)}, SyncType: "qualified",
	})
	if !errors.Is(err, ErrRetryPointless) {
		t.Fatalf("expected ErrRetryPointless, got %v", err)
	}
	if len(h.leads.marked) != 0 {
		t.Fatalf("expected nothing marked, got %v", h.leads.marked)
	}
}
