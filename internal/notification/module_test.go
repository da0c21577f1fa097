package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	accountsrepo "glasswallet_backend/internal/accounts/repository"
	"glasswallet_backend/internal/events"
	"glasswallet_backend/internal/notification/outbox"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type fakeStore struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*outbox.Record
	ids       []uuid.UUID
	txInserts int
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[uuid.UUID]*outbox.Record{}}
}

func (s *fakeStore) InsertTx(ctx context.Context, _ pgx.Tx, p outbox.InsertParams) (uuid.UUID, error) {
	s.mu.Lock()
	s.txInserts++
	s.mu.Unlock()
	return s.Insert(ctx, p)
}

func (s *fakeStore) Insert(_ context.Context, p outbox.InsertParams) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return uuid.Nil, s.insertErr
	}
	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	s.rows[id] = &outbox.Record{ID: id, UserID: p.UserID, Kind: p.Kind, Destination: p.Destination,
		Payload: raw, Timeout: p.Timeout, RunAt: time.Now(), Status: outbox.StatusPending}
	s.ids = append(s.ids, id)
	return id, nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (outbox.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return outbox.Record{}, apperr.NotFound("outbox record not found")
	}
	return *r, nil
}

func (s *fakeStore) ClaimPending(context.Context, int) ([]outbox.Record, error) { return nil, nil }

func (s *fakeStore) set(id uuid.UUID, fn func(r *outbox.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return apperr.NotFound("outbox record not found")
	}
	fn(r)
	return nil
}

func (s *fakeStore) MarkPending(_ context.Context, id uuid.UUID, lastError *string) error {
	return s.set(id, func(r *outbox.Record) { r.Status = outbox.StatusPending; r.LastError = lastError })
}

func (s *fakeStore) MarkProcessing(_ context.Context, id uuid.UUID) error {
	return s.set(id, func(r *outbox.Record) { r.Status = outbox.StatusProcessing; r.Attempts++ })
}

func (s *fakeStore) RecordAttemptError(_ context.Context, id uuid.UUID, lastError string) error {
	return s.set(id, func(r *outbox.Record) { r.LastError = &lastError })
}

func (s *fakeStore) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	return s.set(id, func(r *outbox.Record) { r.Status = outbox.StatusSucceeded; r.LastError = nil })
}

func (s *fakeStore) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	return s.set(id, func(r *outbox.Record) { r.Status = outbox.StatusFailed; r.LastError = &lastError })
}

func (s *fakeStore) ListByUser(_ context.Context, userID uuid.UUID, status string, _, _ int) ([]outbox.Record, int, error) {
	var out []outbox.Record
	for _, id := range s.ids {
		r := s.rows[id]
		if r.UserID == userID && (status == "" || string(r.Status) == status) {
			out = append(out, *r)
		}
	}
	return out, len(out), nil
}

func (s *fakeStore) Requeue(_ context.Context, id, userID uuid.UUID) error {
	return s.set(id, func(r *outbox.Record) { r.Status = outbox.StatusPending; r.Attempts = 0 })
}

func (s *fakeStore) only(t *testing.T) outbox.Record {
	t.Helper()
	if len(s.ids) != 1 {
		t.Fatalf("expected exactly one outbox row, got %d", len(s.ids))
	}
	return *s.rows[s.ids[0]]
}

type fakeAccounts map[uuid.UUID]accountsrepo.Account

func (f fakeAccounts) Get(_ context.Context, id uuid.UUID) (accountsrepo.Account, error) {
	a, ok := f[id]
	if !ok {
		return accountsrepo.Account{}, apperr.NotFound("account not found")
	}
	return a, nil
}

type sentMail struct {
	kind string
	to   string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (s *fakeSender) SendLowBalanceEmail(_ context.Context, to string, _, _ int64) error {
	s.sent = append(s.sent, sentMail{"low_balance", to})
	return s.err
}

func (s *fakeSender) SendConnectionExpiredEmail(_ context.Context, to, _, _ string) error {
	s.sent = append(s.sent, sentMail{"connection_expired", to})
	return s.err
}

func (s *fakeSender) SendDeliveryFailedEmail(_ context.Context, to, _ string, _ int, _ string, _ time.Time) error {
	s.sent = append(s.sent, sentMail{"delivery_failed", to})
	return nil
}

type fixture struct {
	mod    *Module
	store  *fakeStore
	sender *fakeSender
	userID uuid.UUID
}

func newFixture(t *testing.T, webhookURL string) *fixture {
	t.Helper()
	userID := uuid.New()
	acct := accountsrepo.Account{ID: userID, Email: "owner@example.com"}
	if webhookURL != "" {
		acct.WebhookURL = &webhookURL
	}
	store := newFakeStore()
	sender := &fakeSender{}
	mod := New(store, fakeAccounts{userID: acct}, sender, NewWebhookClient(nil), validator.New(), logger.New("development"))
	return &fixture{mod: mod, store: store, sender: sender, userID: userID}
}

func (f *fixture) due(t *testing.T, final bool) error {
	t.Helper()
	rec := f.store.only(t)
	return f.mod.Handle(context.Background(), events.OutboxDue{
		BaseEvent:    events.NewBaseEvent(),
		OutboxID:     rec.ID,
		UserID:       f.userID,
		FinalAttempt: final,
	})
}

func TestLeadTaggedQueuesOneWebhookPerEvent(t *testing.T) {
	var mu sync.Mutex
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.Header.Get(headerEvent))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	err := f.mod.StageLeadTagged(context.Background(), nil, events.LeadTagged{
		BaseEvent:     events.NewBaseEvent(),
		UserID:        f.userID,
		LeadID:        uuid.New(),
		TagTypes:      []string{"qualified"},
		WebhookEvents: []string{"lead.qualified", "lead.qualified", " "},
	})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if f.store.txInserts != 1 {
		t.Fatalf("expected the row to be written through the tag transaction, got %d tx inserts", f.store.txInserts)
	}
	rec := f.store.only(t)
	if rec.Kind != outbox.KindWebhook || rec.Destination != srv.URL || rec.Timeout != outbox.DefaultTimeout {
		t.Fatalf("unexpected outbox row %+v", rec)
	}

	if err := f.due(t, false); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(got) != 1 || got[0] != "lead.qualified" {
		t.Fatalf("expected one lead.qualified post, got %v", got)
	}
	if status := f.store.only(t).Status; status != outbox.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", status)
	}
}

func TestLeadTaggedWithoutWebhookURLIsSkipped(t *testing.T) {
	f := newFixture(t, "")
	err := f.mod.StageLeadTagged(context.Background(), nil, events.LeadTagged{
		BaseEvent:     events.NewBaseEvent(),
		UserID:        f.userID,
		LeadID:        uuid.New(),
		WebhookEvents: []string{"lead.qualified"},
	})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if len(f.store.ids) != 0 {
		t.Fatalf("expected no outbox rows, got %d", len(f.store.ids))
	}
}

func TestStageLeadTaggedReturnsInsertFailure(t *testing.T) {
	f := newFixture(t, "https://crm.example.com/hook")
	f.store.insertErr = errors.New("outbox unavailable")
	err := f.mod.StageLeadTagged(context.Background(), nil, events.LeadTagged{
		BaseEvent:     events.NewBaseEvent(),
		UserID:        f.userID,
		LeadID:        uuid.New(),
		WebhookEvents: []string{"lead.qualified"},
	})
	if err == nil {
		t.Fatalf("expected insert failure to reach the caller")
	}
}

func TestIntakeCallbackReturnsInsertFailure(t *testing.T) {
	f := newFixture(t, "")
	f.store.insertErr = errors.New("outbox unavailable")
	err := f.mod.Handle(context.Background(), events.IntakeProcessed{
		BaseEvent:   events.NewBaseEvent(),
		UserID:      f.userID,
		CallbackURL: "https://crm.example.com/cb",
		Result:      map[string]int{"created": 1},
	})
	if err == nil {
		t.Fatalf("expected insert failure to reach the caller")
	}
}

func TestBatchIntakeCallbackUsesLongTimeout(t *testing.T) {
	f := newFixture(t, "")
	err := f.mod.Handle(context.Background(), events.IntakeProcessed{
		BaseEvent:   events.NewBaseEvent(),
		UserID:      f.userID,
		CallbackURL: "https://crm.example.com/cb",
		Batch:       true,
		Result:      map[string]int{"created": 3},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if rec := f.store.only(t); rec.Timeout != outbox.BatchTimeout {
		t.Fatalf("expected batch timeout, got %s", rec.Timeout)
	}
}

func TestNon2xxIsRetriedThenDeadLettered(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newFixture(t, "")
	if err := f.mod.Handle(context.Background(), events.IntakeProcessed{
		BaseEvent:   events.NewBaseEvent(),
		UserID:      f.userID,
		CallbackURL: srv.URL,
		Result:      map[string]string{"status": "received"},
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if err := f.due(t, false); err == nil {
		t.Fatalf("expected error so the queue retries")
	}
	rec := f.store.only(t)
	if rec.Status != outbox.StatusProcessing || rec.LastError == nil || rec.Attempts != 1 {
		t.Fatalf("expected processing row with last error, got %+v", rec)
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("no dead letter email before the final attempt")
	}

	if err := f.due(t, true); err != nil {
		t.Fatalf("final attempt should settle the row, got %v", err)
	}
	rec = f.store.only(t)
	if rec.Status != outbox.StatusFailed || rec.Attempts != 2 {
		t.Fatalf("expected failed row after 2 attempts, got %+v", rec)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].kind != "delivery_failed" || f.sender.sent[0].to != "owner@example.com" {
		t.Fatalf("expected dead letter email to owner, got %+v", f.sender.sent)
	}

	var env webhookEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil || env.Event != eventIntakeProcessed {
		t.Fatalf("unexpected webhook body %q", body)
	}
}

func TestSettledRowsAreNotRedelivered(t *testing.T) {
	f := newFixture(t, "")
	if err := f.mod.Handle(context.Background(), events.CreditBalanceLow{
		BaseEvent: events.NewBaseEvent(),
		UserID:    f.userID,
		Email:     "billing@example.com",
		Balance:   250,
		Threshold: 500,
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := f.due(t, false); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := f.due(t, false); err != nil {
		t.Fatalf("second due: %v", err)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].to != "billing@example.com" {
		t.Fatalf("expected one low balance email, got %+v", f.sender.sent)
	}
}

func TestEmailFailureIsRetried(t *testing.T) {
	f := newFixture(t, "")
	f.sender.err = errors.New("smtp down")
	if err := f.mod.Handle(context.Background(), events.PixelConnectionExpired{
		BaseEvent:      events.NewBaseEvent(),
		UserID:         f.userID,
		ConnectionID:   uuid.New(),
		ConnectionName: "Main pixel",
		Platform:       "META",
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := f.due(t, false); err == nil {
		t.Fatalf("expected retryable error")
	}
	if f.sender.sent[0].kind != "connection_expired" || f.sender.sent[0].to != "owner@example.com" {
		t.Fatalf("unexpected mail %+v", f.sender.sent)
	}
}

func TestUnknownTemplateIsDeadLetteredImmediately(t *testing.T) {
	f := newFixture(t, "")
	if _, err := f.store.Insert(context.Background(), outbox.InsertParams{
		UserID: f.userID, Kind: outbox.KindEmail, Destination: "x@example.com",
		Payload: emailPayload{Template: "nope"},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := f.due(t, false); err != nil {
		t.Fatalf("expected no retry for undeliverable row, got %v", err)
	}
	if rec := f.store.only(t); rec.Status != outbox.StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
}
