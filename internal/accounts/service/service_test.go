package service

import (
	"context"
	"testing"

	"glasswallet_backend/internal/accounts/repository"
	"glasswallet_backend/internal/accounts/transport"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	accounts map[uuid.UUID]repository.Account
	lastUpd  repository.Update
}

func (f *fakeRepo) Upsert(_ context.Context, id uuid.UUID, email string) (repository.Account, bool, error) {
	a, ok := f.accounts[id]
	if !ok {
		a = repository.Account{ID: id, SubscriptionPlan: "starter", LowBalanceThreshold: 500}
	}
	if email != "" {
		a.Email = email
	}
	f.accounts[id] = a
	return a, !ok, nil
}

func (f *fakeRepo) Get(_ context.Context, id uuid.UUID) (repository.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return repository.Account{}, apperr.NotFound("account not found")
	}
	return a, nil
}

func (f *fakeRepo) Update(_ context.Context, id uuid.UUID, upd repository.Update) (repository.Account, error) {
	f.lastUpd = upd
	a := f.accounts[id]
	if upd.ClearWebhookURL {
		a.WebhookURL = nil
	} else if upd.WebhookURL != nil {
		a.WebhookURL = upd.WebhookURL
	}
	f.accounts[id] = a
	return a, nil
}

func TestSyncCreatesOnce(t *testing.T) {
	repo := &fakeRepo{accounts: map[uuid.UUID]repository.Account{}}
	svc := New(repo, logger.New("development"))
	id := uuid.New()

	first, err := svc.Sync(context.Background(), id, "  Owner@Example.com ")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !first.Created || first.Account.Email != "owner@example.com" {
		t.Fatalf("unexpected first sync %+v", first)
	}
	second, _ := svc.Sync(context.Background(), id, "owner@example.com")
	if second.Created {
		t.Fatalf("second sync must not report creation")
	}
}

func TestUpdateRejectsRelativeWebhookURL(t *testing.T) {
	repo := &fakeRepo{accounts: map[uuid.UUID]repository.Account{}}
	svc := New(repo, logger.New("development"))
	bad := "/hooks"

	_, err := svc.Update(context.Background(), uuid.New(), transport.UpdateAccountRequest{WebhookURL: &bad})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateEmptyWebhookClears(t *testing.T) {
	repo := &fakeRepo{accounts: map[uuid.UUID]repository.Account{}}
	svc := New(repo, logger.New("development"))
	empty := ""

	if _, err := svc.Update(context.Background(), uuid.New(), transport.UpdateAccountRequest{WebhookURL: &empty}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !repo.lastUpd.ClearWebhookURL {
		t.Fatalf("expected webhook url to be cleared")
	}
}
