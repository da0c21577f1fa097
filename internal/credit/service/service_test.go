package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"glasswallet_backend/internal/credit/provider"
	"glasswallet_backend/internal/credit/repository"
	"glasswallet_backend/internal/credit/transport"
	"glasswallet_backend/internal/events"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	account repository.Account
	leads   map[uuid.UUID]repository.Lead
	txs     []repository.Transaction
}

func newFakeRepo(balance int64) *fakeRepo {
	return &fakeRepo{
		account: repository.Account{UserID: uuid.New(), Email: "owner@example.com", Balance: balance, LowBalanceThreshold: 500},
		leads:   map[uuid.UUID]repository.Lead{},
	}
}

func (f *fakeRepo) addLead(consent bool, processedAt *time.Time) uuid.UUID {
	id := uuid.New()
	f.leads[id] = repository.Lead{ID: id, UserID: f.account.UserID, FirstName: "Ada", LastName: "Lovelace",
		ConsentGiven: consent, ProcessedAt: processedAt}
	return id
}

func (f *fakeRepo) GetAccount(context.Context, uuid.UUID) (repository.Account, error) {
	return f.account, nil
}

func (f *fakeRepo) GetLead(_ context.Context, _ uuid.UUID, leadID uuid.UUID) (repository.Lead, error) {
	l, ok := f.leads[leadID]
	if !ok {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	return l, nil
}

func (f *fakeRepo) Debit(_ context.Context, p repository.DebitParams) (repository.DebitResult, error) {
	var processedAt *time.Time
	if p.LeadID != nil {
		processedAt = f.leads[*p.LeadID].ProcessedAt
	}
	if p.Guard != nil {
		if err := p.Guard(f.account.Balance, processedAt); err != nil {
			return repository.DebitResult{}, err
		}
	}
	if f.account.Balance < p.Cost {
		return repository.DebitResult{}, apperr.InsufficientCredits("insufficient credits")
	}
	before := f.account
	tx := repository.Transaction{ID: uuid.New(), UserID: p.UserID, LeadID: p.LeadID, Type: repository.TypePull,
		CostInCents: p.Cost, BalanceBefore: before.Balance, BalanceAfter: before.Balance - p.Cost}
	f.txs = append(f.txs, tx)
	f.account.Balance = tx.BalanceAfter
	if p.MarkProcessed && p.LeadID != nil {
		l := f.leads[*p.LeadID]
		now := time.Now()
		l.ProcessedAt = &now
		f.leads[*p.LeadID] = l
	}
	return repository.DebitResult{Transaction: tx, Account: before}, nil
}

func (f *fakeRepo) Grant(_ context.Context, userID uuid.UUID, amount int64, _ *string, _ string) (repository.Transaction, error) {
	tx := repository.Transaction{ID: uuid.New(), UserID: userID, Type: repository.TypePurchase, CostInCents: amount,
		BalanceBefore: f.account.Balance, BalanceAfter: f.account.Balance + amount}
	f.account.Balance = tx.BalanceAfter
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeRepo) Refund(context.Context, uuid.UUID, string) (repository.Transaction, error) {
	return repository.Transaction{}, errors.New("not implemented")
}

func (f *fakeRepo) GetTransaction(_ context.Context, _ uuid.UUID, id uuid.UUID) (repository.Transaction, error) {
	for _, t := range f.txs {
		if t.ID == id {
			return t, nil
		}
	}
	return repository.Transaction{}, apperr.NotFound("transaction not found")
}

func (f *fakeRepo) ListTransactions(context.Context, repository.ListParams) ([]repository.Transaction, int, error) {
	return f.txs, len(f.txs), nil
}

type fakeProvider struct {
	calls int
	err   error
}

func (p *fakeProvider) Pull(context.Context, provider.Subject) (provider.Report, error) {
	p.calls++
	if p.err != nil {
		return provider.Report{}, p.err
	}
	return provider.Report{ReportID: "r1", CreditScore: 742, IncomeEstimate: 9_000_000, Raw: []byte(`{"ok":true}`)}, nil
}

func (p *fakeProvider) SoftCheck(context.Context, provider.Subject) (provider.SoftReport, error) {
	p.calls++
	if p.err != nil {
		return provider.SoftReport{}, p.err
	}
	return provider.SoftReportFor(742), nil
}

type fakeStore struct {
	keys []string
}

func (s *fakeStore) PutJSON(_ context.Context, _, key string, _ []byte) error {
	s.keys = append(s.keys, key)
	return nil
}

func (s *fakeStore) Get(context.Context, string, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStore) PresignGet(_ context.Context, _, key string) (string, error) {
	return "https://storage.local/" + key, nil
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

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

func newTestService(repo *fakeRepo, prov *fakeProvider) (*Service, *fakeStore, *recordingBus) {
	store := &fakeStore{}
	bus := &recordingBus{}
	svc := New(repo, prov, store, "reports", bus, Pricing{PullCost: 100, PreQualifyCost: 50}, logger.New("development"))
	return svc, store, bus
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if !apperr.HasCode(err, code) {
		t.Fatalf("expected error code %s, got %v", code, err)
	}
}

func TestPullRequiresConsentFlag(t *testing.T) {
	repo := newFakeRepo(1000)
	prov := &fakeProvider{}
	svc, _, _ := newTestService(repo, prov)
	leadID := repo.addLead(true, nil)

	_, err := svc.Pull(context.Background(), repo.account.UserID, leadID, false)
	assertCode(t, err, CodeConsentRequired)
	if prov.calls != 0 || len(repo.txs) != 0 || repo.account.Balance != 1000 {
		t.Fatalf("expected no provider call and no ledger row")
	}
}

func TestPullRequiresStoredConsent(t *testing.T) {
	repo := newFakeRepo(1000)
	svc, _, _ := newTestService(repo, &fakeProvider{})
	leadID := repo.addLead(false, nil)

	_, err := svc.Pull(context.Background(), repo.account.UserID, leadID, true)
	assertCode(t, err, CodeConsentRequired)
}

func TestPullWithinWindowReportsHoursRemaining(t *testing.T) {
	repo := newFakeRepo(1000)
	prov := &fakeProvider{}
	svc, _, _ := newTestService(repo, prov)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	processed := now.Add(-2*time.Hour - 30*time.Minute)
	leadID := repo.addLead(true, &processed)

	_, err := svc.Pull(context.Background(), repo.account.UserID, leadID, true)
	assertCode(t, err, CodeRecentPullExists)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected apperr")
	}
	details := appErr.Details.(map[string]interface{})
	if details["hoursRemaining"] != 22 {
		t.Fatalf("expected 22 hours remaining, got %v", details["hoursRemaining"])
	}
	if prov.calls != 0 || len(repo.txs) != 0 {
		t.Fatalf("expected no provider call and no ledger row")
	}
}

func TestPullAllowedAfterWindow(t *testing.T) {
	repo := newFakeRepo(1000)
	svc, _, _ := newTestService(repo, &fakeProvider{})
	processed := time.Now().Add(-25 * time.Hour)
	leadID := repo.addLead(true, &processed)

	if _, err := svc.Pull(context.Background(), repo.account.UserID, leadID, true); err != nil {
		t.Fatalf("pull: %v", err)
	}
}

func TestPullInsufficientCreditsSkipsProvider(t *testing.T) {
	repo := newFakeRepo(99)
	prov := &fakeProvider{}
	svc, _, _ := newTestService(repo, prov)
	leadID := repo.addLead(true, nil)

	_, err := svc.Pull(context.Background(), repo.account.UserID, leadID, true)
	if !apperr.Is(err, apperr.KindPaymentRequired) {
		t.Fatalf("expected payment required, got %v", err)
	}
	if prov.calls != 0 {
		t.Fatalf("provider must not be called without credits")
	}
}

func TestPullMapsProviderErrors(t *testing.T) {
	repo := newFakeRepo(1000)
	prov := &fakeProvider{err: provider.ErrProviderUnavailable}
	svc, _, _ := newTestService(repo, prov)
	leadID := repo.addLead(true, nil)

	_, err := svc.Pull(context.Background(), repo.account.UserID, leadID, true)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.HTTPStatus() != 503 || appErr.Retryable == nil || !*appErr.Retryable {
		t.Fatalf("expected retryable 503, got %v", err)
	}

	prov.err = provider.ErrInvalidInput
	_, err = svc.Pull(context.Background(), repo.account.UserID, leadID, true)
	if !errors.As(err, &appErr) || appErr.HTTPStatus() != 400 || appErr.Retryable == nil || *appErr.Retryable {
		t.Fatalf("expected non-retryable 400, got %v", err)
	}
	if len(repo.txs) != 0 || repo.account.Balance != 1000 {
		t.Fatalf("failed pulls must not touch the ledger")
	}
}

func TestPullDebitsLedgerAndArchives(t *testing.T) {
	repo := newFakeRepo(550)
	svc, store, bus := newTestService(repo, &fakeProvider{})
	leadID := repo.addLead(true, nil)

	resp, err := svc.Pull(context.Background(), repo.account.UserID, leadID, true)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if !resp.Success || *resp.CreditScore != 742 || resp.CostInCents != 100 || resp.BalanceAfter != 450 {
		t.Fatalf("unexpected response %+v", resp)
	}
	tx := repo.txs[0]
	if tx.BalanceAfter != tx.BalanceBefore-tx.CostInCents {
		t.Fatalf("ledger arithmetic broken: %+v", tx)
	}
	if len(store.keys) != 1 || !strings.HasPrefix(store.keys[0], "credit-reports/"+repo.account.UserID.String()+"/"+leadID.String()+"/") {
		t.Fatalf("unexpected archive keys %v", store.keys)
	}
	names := bus.names()
	if len(names) != 2 || names[0] != "credit.balance.low" || names[1] != "credit.pull.completed" {
		t.Fatalf("unexpected events %v", names)
	}
	if len(bus.synced) != 1 || bus.synced[0] != "credit.balance.low" {
		t.Fatalf("expected the low balance email to be queued inline, got %v", bus.synced)
	}

	_, err = svc.Pull(context.Background(), repo.account.UserID, leadID, true)
	assertCode(t, err, CodeRecentPullExists)
}

func TestPreQualifyDoesNotMarkProcessed(t *testing.T) {
	repo := newFakeRepo(1000)
	svc, _, _ := newTestService(repo, &fakeProvider{})
	leadID := repo.addLead(true, nil)

	resp, err := svc.PreQualify(context.Background(), repo.account.UserID, transport.PreQualifyRequest{
		LeadID: &leadID, FirstName: "Ada", LastName: "Lovelace", ConsentGiven: true,
	})
	if err != nil {
		t.Fatalf("prequalify: %v", err)
	}
	if resp.Tier != "prime" || resp.CostInCents != 50 || resp.BalanceAfter != 950 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if repo.leads[leadID].ProcessedAt != nil {
		t.Fatalf("pre-qualification must not set processed_at")
	}
}

func TestBalanceReportsPullsRemaining(t *testing.T) {
	repo := newFakeRepo(1050)
	svc, _, _ := newTestService(repo, &fakeProvider{})

	resp, err := svc.Balance(context.Background(), repo.account.UserID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if resp.PullsRemaining != 10 {
		t.Fatalf("expected 10 pulls remaining, got %d", resp.PullsRemaining)
	}
}
