package platforms

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// SandboxExpiredToken makes the sandbox behave as if the platform revoked the token.
const SandboxExpiredToken = "sandbox-expired"

// SandboxAdapter accepts every matchable lead without network calls.
type SandboxAdapter struct {
	platform Platform
	apiBase  string
}

// NewSandboxAdapter creates a sandbox for p. apiBase is used to build an
// authorization URL that points straight back at the callback.
func NewSandboxAdapter(p Platform, apiBase string) *SandboxAdapter {
	return &SandboxAdapter{platform: p, apiBase: apiBase}
}

func (s *SandboxAdapter) Platform() Platform { return s.platform }

func (s *SandboxAdapter) AuthURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("code", "sandbox-"+uuid.NewString())
	return redirectURI + "?" + q.Encode()
}

func (s *SandboxAdapter) ExchangeCode(_ context.Context, code, _ string) (Credentials, error) {
	if code == "" {
		return Credentials{}, fmt.Errorf("%w: empty code", ErrPlatformRejected)
	}
	exp := time.Now().Add(60 * 24 * time.Hour)
	return Credentials{
		AccessToken:  "sandbox-access-" + code,
		RefreshToken: "sandbox-refresh-" + code,
		ExpiresAt:    &exp,
		AccountID:    "sandbox-account",
		PixelID:      "sandbox-pixel",
	}, nil
}

func (s *SandboxAdapter) FetchAccounts(_ context.Context, creds Credentials) ([]Account, error) {
	if creds.AccessToken == SandboxExpiredToken {
		return nil, ErrExpiredCredentials
	}
	return []Account{{ID: "sandbox-account", Name: "Sandbox " + s.platform.Slug()}}, nil
}

func (s *SandboxAdapter) PushLeads(_ context.Context, creds Credentials, leads []Lead, _ string) (PushResult, error) {
	if creds.AccessToken == SandboxExpiredToken {
		return PushResult{}, ErrExpiredCredentials
	}
	ready, res := matchable(leads)
	res.accept(ready)
	return res, nil
}

var _ Adapter = (*SandboxAdapter)(nil)
