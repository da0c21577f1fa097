// Package platforms contains the ad-platform adapters used for pixel sync.
// Every adapter implements Adapter; Registry dispatches on the platform type.
package platforms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Platform identifies an advertising platform.
type Platform string

const (
	Meta      Platform = "META"
	GoogleAds Platform = "GOOGLE_ADS"
	TikTok    Platform = "TIKTOK"
)

// All lists the supported platforms.
var All = []Platform{Meta, GoogleAds, TikTok}

// ParsePlatform accepts "meta", "google-ads", "GOOGLE_ADS" and similar spellings.
func ParsePlatform(raw string) (Platform, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_"))
	for _, p := range All {
		if string(p) == normalized {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported platform %q", raw)
}

// Slug is the lowercase URL form of the platform.
func (p Platform) Slug() string {
	return strings.ToLower(strings.ReplaceAll(string(p), "_", "-"))
}

var (
	// ErrExpiredCredentials means the platform rejected the token; the user must reconnect.
	ErrExpiredCredentials = errors.New("platform credentials expired")
	// ErrPlatformUnavailable is a transient platform or network failure.
	ErrPlatformUnavailable = errors.New("platform unavailable")
	// ErrPlatformRejected is a permanent rejection of the request.
	ErrPlatformRejected = errors.New("platform rejected request")
)

// Credentials are the unsealed tokens and targets of a connection.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	AccountID    string
	PixelID      string
}

// Account is an ad account visible to the credentials.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Lead is the lead data an adapter may hash and push.
type Lead struct {
	ID          string
	Email       string
	Phone       string
	FirstName   string
	LastName    string
	State       string
	ZipCode     string
	CreditScore *int
}

// PushResult counts per-lead outcomes of a push. Accepted lists the lead IDs
// the platform confirmed; Retryable counts failures caused by a transient
// platform error, the rest of FailedCount will fail again on any retry.
type PushResult struct {
	SyncedCount int      `json:"syncedCount"`
	FailedCount int      `json:"failedCount"`
	Errors      []string `json:"errors"`
	Accepted    []string `json:"-"`
	Retryable   int      `json:"-"`
}

func (r *PushResult) accept(batch []Lead) {
	r.SyncedCount += len(batch)
	for _, l := range batch {
		r.Accepted = append(r.Accepted, l.ID)
	}
}

func (r *PushResult) fail(n int, err error) {
	r.FailedCount += n
	if errors.Is(err, ErrPlatformUnavailable) {
		r.Retryable += n
	}
	r.Errors = append(r.Errors, err.Error())
}

// Adapter is the capability every ad platform provides.
type Adapter interface {
	Platform() Platform
	AuthURL(state, redirectURI string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (Credentials, error)
	FetchAccounts(ctx context.Context, creds Credentials) ([]Account, error)
	PushLeads(ctx context.Context, creds Credentials, leads []Lead, syncType string) (PushResult, error)
}

// matchable splits leads into those with at least one identifier and the rest.
func matchable(leads []Lead) ([]Lead, PushResult) {
	out := make([]Lead, 0, len(leads))
	res := PushResult{Errors: []string{}}
	for _, l := range leads {
		if strings.TrimSpace(l.Email) == "" && strings.TrimSpace(l.Phone) == "" {
			res.FailedCount++
			res.Errors = append(res.Errors, fmt.Sprintf("lead %s: no email or phone to match", l.ID))
			continue
		}
		out = append(out, l)
	}
	return out, res
}

func chunk(leads []Lead, size int) [][]Lead {
	var out [][]Lead
	for size < len(leads) {
		leads, out = leads[size:], append(out, leads[:size])
	}
	if len(leads) > 0 {
		out = append(out, leads)
	}
	return out
}
