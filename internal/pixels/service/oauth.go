package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"glasswallet_backend/internal/pixels/platforms"
	"glasswallet_backend/internal/pixels/repository"
	"glasswallet_backend/internal/pixels/transport"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/cache"

	"github.com/google/uuid"
)

const (
	oauthStateTTL    = 10 * time.Minute
	oauthStatePrefix = "pixels:oauth:"
)

// OAuth callback error codes surfaced to the frontend.
const (
	OAuthErrDenied       = "access_denied"
	OAuthErrInvalidState = "invalid_state"
	OAuthErrExchange     = "exchange_failed"
	OAuthErrSave         = "save_failed"
)

type oauthState struct {
	UserID   uuid.UUID `json:"userId"`
	Platform string    `json:"platform"`
	Name     string    `json:"name"`
}

func (s *Service) callbackURL(p platforms.Platform) string {
	return fmt.Sprintf("%s/api/v1/pixels/oauth/%s/callback", s.apiBaseURL, p.Slug())
}

// OAuthConnect stores a single-use state and returns the platform consent URL.
func (s *Service) OAuthConnect(ctx context.Context, userID uuid.UUID, rawPlatform, name string) (transport.OAuthConnectResponse, error) {
	p, err := parsePlatform(rawPlatform)
	if err != nil {
		return transport.OAuthConnectResponse{}, err
	}
	adapter, err := s.adapters.Get(p)
	if err != nil {
		return transport.OAuthConnectResponse{}, apperr.Unavailable("platform is not configured", err)
	}

	state := uuid.NewString()
	raw, err := json.Marshal(oauthState{UserID: userID, Platform: string(p), Name: strings.TrimSpace(name)})
	if err != nil {
		return transport.OAuthConnectResponse{}, fmt.Errorf("encode oauth state: %w", err)
	}
	if err := s.cache.Set(ctx, oauthStatePrefix+state, raw, oauthStateTTL); err != nil {
		return transport.OAuthConnectResponse{}, fmt.Errorf("store oauth state: %w", err)
	}
	return transport.OAuthConnectResponse{AuthURL: adapter.AuthURL(state, s.callbackURL(p)), State: state}, nil
}

func (s *Service) redirect(key, value string) string {
	q := url.Values{}
	q.Set(key, value)
	return s.appBaseURL + "/pixels?" + q.Encode()
}

// OAuthCallback completes the consent flow and returns the frontend URL to redirect to.
// It never fails; problems are reported through the ?error= query parameter.
func (s *Service) OAuthCallback(ctx context.Context, rawPlatform, code, state, providerError string) string {
	p, err := platforms.ParsePlatform(rawPlatform)
	if err != nil {
		return s.redirect("error", OAuthErrInvalidState)
	}
	if state == "" {
		return s.redirect("error", OAuthErrInvalidState)
	}
	raw, err := s.cache.Take(ctx, oauthStatePrefix+state)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Error("failed to read oauth state", "error", err)
		}
		return s.redirect("error", OAuthErrInvalidState)
	}
	var st oauthState
	if err := json.Unmarshal(raw, &st); err != nil || st.Platform != string(p) {
		return s.redirect("error", OAuthErrInvalidState)
	}
	if providerError != "" || code == "" {
		return s.redirect("error", OAuthErrDenied)
	}

	adapter, err := s.adapters.Get(p)
	if err != nil {
		return s.redirect("error", OAuthErrExchange)
	}
	creds, err := adapter.ExchangeCode(ctx, code, s.callbackURL(p))
	if err != nil {
		s.log.Warn("oauth code exchange failed", "platform", p, "userId", st.UserID, "error", err)
		return s.redirect("error", OAuthErrExchange)
	}
	if creds.AccountID == "" {
		if accounts, err := adapter.FetchAccounts(ctx, creds); err == nil && len(accounts) > 0 {
			creds.AccountID = accounts[0].ID
		}
	}

	if err := s.saveOAuthConnection(ctx, st, p, creds); err != nil {
		s.log.Error("failed to save oauth connection", "platform", p, "userId", st.UserID, "error", err)
		return s.redirect("error", OAuthErrSave)
	}
	return s.redirect("success", p.Slug())
}

// saveOAuthConnection creates the connection, or refreshes the tokens of an
// existing one with the same name.
func (s *Service) saveOAuthConnection(ctx context.Context, st oauthState, p platforms.Platform, creds platforms.Credentials) error {
	name := st.Name
	if name == "" {
		name = fmt.Sprintf("%s connection", p.Slug())
	}
	access, err := s.box.Seal(creds.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.box.Seal(creds.RefreshToken)
	if err != nil {
		return err
	}

	existing, err := s.repo.FindByName(ctx, st.UserID, name)
	switch {
	case err == nil:
		existing.SealedAccessToken = access
		existing.SealedRefreshToken = refresh
		existing.TokenExpiresAt = creds.ExpiresAt
		existing.AccountID = creds.AccountID
		_, err = s.repo.UpdateCredentials(ctx, existing)
		return err
	case apperr.Is(err, apperr.KindNotFound):
		_, err = s.repo.Create(ctx, repository.Connection{
			UserID:             st.UserID,
			Platform:           string(p),
			Name:               name,
			AccountID:          creds.AccountID,
			PixelID:            creds.PixelID,
			SealedAccessToken:  access,
			SealedRefreshToken: refresh,
			TokenExpiresAt:     creds.ExpiresAt,
			Status:             repository.StatusActive,
			Settings:           toSettings(nil),
		})
		return err
	default:
		return err
	}
}
