// Package service implements tenant account operations.
package service

import (
	"context"
	"net/url"
	"strings"

	"glasswallet_backend/internal/accounts/repository"
	"glasswallet_backend/internal/accounts/transport"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Service manages the authenticated user's account.
type Service struct {
	repo repository.Repository
	log  *logger.Logger
}

// New creates an accounts service.
func New(repo repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Sync mirrors the token subject into the users table.
func (s *Service) Sync(ctx context.Context, userID uuid.UUID, email string) (transport.SyncResponse, error) {
	acct, created, err := s.repo.Upsert(ctx, userID, sanitize.Email(email))
	if err != nil {
		return transport.SyncResponse{}, err
	}
	if created {
		s.log.Info("account created", "userId", userID)
	}
	return transport.SyncResponse{Account: toResponse(acct), Created: created}, nil
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (transport.AccountResponse, error) {
	acct, err := s.repo.Get(ctx, userID)
	if err != nil {
		return transport.AccountResponse{}, err
	}
	return toResponse(acct), nil
}

func (s *Service) Update(ctx context.Context, userID uuid.UUID, req transport.UpdateAccountRequest) (transport.AccountResponse, error) {
	upd := repository.Update{LowBalanceThreshold: req.LowBalanceThreshold}
	if req.WebhookURL != nil {
		raw := strings.TrimSpace(*req.WebhookURL)
		if raw == "" {
			upd.ClearWebhookURL = true
		} else {
			if err := ValidateWebhookURL(raw); err != nil {
				return transport.AccountResponse{}, err
			}
			upd.WebhookURL = &raw
		}
	}
	acct, err := s.repo.Update(ctx, userID, upd)
	if err != nil {
		return transport.AccountResponse{}, err
	}
	return toResponse(acct), nil
}

// ValidateWebhookURL accepts absolute http(s) URLs with a host.
func ValidateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return apperr.Validation("webhookUrl must be an absolute http(s) URL").
			WithDetails(map[string]string{"webhookUrl": "invalid url"})
	}
	return nil
}

func toResponse(a repository.Account) transport.AccountResponse {
	return transport.AccountResponse{
		ID:                  a.ID,
		Email:               a.Email,
		SubscriptionPlan:    a.SubscriptionPlan,
		CreditBalance:       a.CreditBalance,
		WebhookURL:          a.WebhookURL,
		LowBalanceThreshold: a.LowBalanceThreshold,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}
