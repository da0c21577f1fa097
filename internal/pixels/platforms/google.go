package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	googleAdsURL   = "https://googleads.googleapis.com/v16"
	googleTokenURL = "https://oauth2.googleapis.com/token"
	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleScope    = "https://www.googleapis.com/auth/adwords"
	// addOperations accepts at most this many identifiers per call.
	googleBatchSize = 100
)

// GoogleAdsAdapter uploads leads to a Customer Match user list through
// offline user data jobs.
type GoogleAdsAdapter struct {
	clientID       string
	clientSecret   string
	developerToken string
	adsURL         string
	tokenURL       string
	client         *client
	now            func() time.Time
}

// NewGoogleAdsAdapter creates the adapter. Empty URLs select the production endpoints.
func NewGoogleAdsAdapter(clientID, clientSecret, developerToken, adsURL, tokenURL string) *GoogleAdsAdapter {
	if adsURL == "" {
		adsURL = googleAdsURL
	}
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}
	return &GoogleAdsAdapter{
		clientID:       clientID,
		clientSecret:   clientSecret,
		developerToken: developerToken,
		adsURL:         adsURL,
		tokenURL:       tokenURL,
		client:         newClient(5, 2),
		now:            time.Now,
	}
}

func (g *GoogleAdsAdapter) Platform() Platform { return GoogleAds }

func (g *GoogleAdsAdapter) AuthURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", g.clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("scope", googleScope)
	q.Set("response_type", "code")
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	return googleAuthURL + "?" + q.Encode()
}

func (g *GoogleAdsAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (Credentials, error) {
	form := url.Values{}
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)
	form.Set("redirect_uri", redirectURI)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")

	status, raw, err := g.client.do(ctx, http.MethodPost, g.tokenURL, nil, strings.NewReader(form.Encode()))
	if err != nil {
		return Credentials{}, err
	}
	if status == http.StatusBadRequest {
		// invalid_grant: the code was used or expired
		return Credentials{}, fmt.Errorf("%w: %s", ErrPlatformRejected, truncate(string(raw), 200))
	}
	if err := classify(status, raw); err != nil {
		return Credentials{}, err
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.AccessToken == "" {
		return Credentials{}, fmt.Errorf("%w: malformed token response", ErrPlatformRejected)
	}
	creds := Credentials{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}
	if out.ExpiresIn > 0 {
		exp := g.now().Add(time.Duration(out.ExpiresIn) * time.Second)
		creds.ExpiresAt = &exp
	}
	return creds, nil
}

func (g *GoogleAdsAdapter) headers(creds Credentials) map[string]string {
	return map[string]string{
		"Authorization":   "Bearer " + creds.AccessToken,
		"developer-token": g.developerToken,
	}
}

func (g *GoogleAdsAdapter) FetchAccounts(ctx context.Context, creds Credentials) ([]Account, error) {
	status, raw, err := g.client.do(ctx, http.MethodGet, g.adsURL+"/customers:listAccessibleCustomers", g.headers(creds), nil)
	if err != nil {
		return nil, err
	}
	if err := classify(status, raw); err != nil {
		return nil, err
	}
	var out struct {
		ResourceNames []string `json:"resourceNames"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed accounts response", ErrPlatformRejected)
	}
	accounts := make([]Account, 0, len(out.ResourceNames))
	for _, rn := range out.ResourceNames {
		id := strings.TrimPrefix(rn, "customers/")
		accounts = append(accounts, Account{ID: id, Name: rn})
	}
	return accounts, nil
}

type googleIdentifier struct {
	HashedEmail       string `json:"hashedEmail,omitempty"`
	HashedPhoneNumber string `json:"hashedPhoneNumber,omitempty"`
}

type googleOperation struct {
	Create struct {
		UserIdentifiers []googleIdentifier `json:"userIdentifiers"`
	} `json:"create"`
}

// PushLeads creates one job per push, adds the identifiers in batches and runs it.
// The audience is the connection's PixelID (user list id) under AccountID.
func (g *GoogleAdsAdapter) PushLeads(ctx context.Context, creds Credentials, leads []Lead, syncType string) (PushResult, error) {
	if creds.AccountID == "" || creds.PixelID == "" {
		return PushResult{}, fmt.Errorf("%w: connection needs account id and user list id", ErrPlatformRejected)
	}
	ready, res := matchable(leads)
	if len(ready) == 0 {
		return res, nil
	}
	base := fmt.Sprintf("%s/customers/%s", g.adsURL, url.PathEscape(creds.AccountID))

	job := map[string]interface{}{
		"job": map[string]interface{}{
			"type": "CUSTOMER_MATCH_USER_LIST",
			"customerMatchUserListMetadata": map[string]string{
				"userList": fmt.Sprintf("customers/%s/userLists/%s", creds.AccountID, creds.PixelID),
			},
		},
	}
	status, raw, err := g.client.do(ctx, http.MethodPost, base+"/offlineUserDataJobs:create", g.headers(creds), job)
	if err == nil {
		err = classify(status, raw)
	}
	if err != nil {
		return res, err
	}
	var created struct {
		ResourceName string `json:"resourceName"`
	}
	if err := json.Unmarshal(raw, &created); err != nil || created.ResourceName == "" {
		return res, fmt.Errorf("%w: malformed job response", ErrPlatformRejected)
	}
	jobURL := g.adsURL + "/" + created.ResourceName

	var added []Lead
	for _, batch := range chunk(ready, googleBatchSize) {
		ops := make([]googleOperation, 0, len(batch))
		for _, l := range batch {
			var op googleOperation
			if h := HashEmail(l.Email); h != "" {
				op.Create.UserIdentifiers = append(op.Create.UserIdentifiers, googleIdentifier{HashedEmail: h})
			}
			if h := HashPhoneE164(l.Phone); h != "" {
				op.Create.UserIdentifiers = append(op.Create.UserIdentifiers, googleIdentifier{HashedPhoneNumber: h})
			}
			ops = append(ops, op)
		}
		status, raw, err := g.client.do(ctx, http.MethodPost, jobURL+":addOperations", g.headers(creds),
			map[string]interface{}{"operations": ops, "enablePartialFailure": true})
		if err == nil {
			err = classify(status, raw)
		}
		if errors.Is(err, ErrExpiredCredentials) {
			return res, err
		}
		if err != nil {
			res.fail(len(batch), err)
			continue
		}
		added = append(added, batch...)
	}

	if len(added) == 0 {
		return res, nil
	}
	status, raw, err = g.client.do(ctx, http.MethodPost, jobURL+":run", g.headers(creds), map[string]string{})
	if err == nil {
		err = classify(status, raw)
	}
	if err != nil {
		if errors.Is(err, ErrExpiredCredentials) {
			return res, err
		}
		res.fail(len(added), fmt.Errorf("run %s job: %w", syncType, err))
		return res, nil
	}
	res.accept(added)
	return res, nil
}

var _ Adapter = (*GoogleAdsAdapter)(nil)
