package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	tiktokAPIURL  = "https://business-api.tiktok.com/open_api/v1.3"
	tiktokAuthURL = "https://business-api.tiktok.com/portal/auth"
	tiktokBatch   = 1000
)

// TikTok returns HTTP 200 with a business code; these codes mean the token is dead.
var tiktokExpiredCodes = map[int]bool{40104: true, 40105: true}

// TikTokAdapter reports leads through the Events API.
type TikTokAdapter struct {
	appID     string
	appSecret string
	apiURL    string
	client    *client
	now       func() time.Time
}

// NewTikTokAdapter creates the adapter. apiURL may be empty for the production API.
func NewTikTokAdapter(appID, appSecret, apiURL string) *TikTokAdapter {
	if apiURL == "" {
		apiURL = tiktokAPIURL
	}
	return &TikTokAdapter{appID: appID, appSecret: appSecret, apiURL: apiURL, client: newClient(10, 5), now: time.Now}
}

func (t *TikTokAdapter) Platform() Platform { return TikTok }

func (t *TikTokAdapter) AuthURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("app_id", t.appID)
	q.Set("state", state)
	q.Set("redirect_uri", redirectURI)
	return tiktokAuthURL + "?" + q.Encode()
}

type tiktokEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (t *TikTokAdapter) call(ctx context.Context, method, path string, token string, body interface{}) (json.RawMessage, error) {
	headers := map[string]string{}
	if token != "" {
		headers["Access-Token"] = token
	}
	status, raw, err := t.client.do(ctx, method, t.apiURL+path, headers, body)
	if err != nil {
		return nil, err
	}
	if err := classify(status, raw); err != nil {
		return nil, err
	}
	var env tiktokEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed response", ErrPlatformRejected)
	}
	switch {
	case env.Code == 0:
		return env.Data, nil
	case tiktokExpiredCodes[env.Code]:
		return nil, fmt.Errorf("%w: %s", ErrExpiredCredentials, env.Message)
	case env.Code == 40100 || env.Code >= 50000:
		return nil, fmt.Errorf("%w: %s", ErrPlatformUnavailable, env.Message)
	default:
		return nil, fmt.Errorf("%w: code %d: %s", ErrPlatformRejected, env.Code, env.Message)
	}
}

func (t *TikTokAdapter) ExchangeCode(ctx context.Context, code, _ string) (Credentials, error) {
	data, err := t.call(ctx, http.MethodPost, "/oauth2/access_token/", "", map[string]string{
		"app_id":    t.appID,
		"secret":    t.appSecret,
		"auth_code": code,
	})
	if err != nil {
		return Credentials{}, err
	}
	var out struct {
		AccessToken   string   `json:"access_token"`
		AdvertiserIDs []string `json:"advertiser_ids"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.AccessToken == "" {
		return Credentials{}, fmt.Errorf("%w: malformed token response", ErrPlatformRejected)
	}
	creds := Credentials{AccessToken: out.AccessToken}
	if len(out.AdvertiserIDs) > 0 {
		creds.AccountID = out.AdvertiserIDs[0]
	}
	return creds, nil
}

func (t *TikTokAdapter) FetchAccounts(ctx context.Context, creds Credentials) ([]Account, error) {
	q := url.Values{}
	q.Set("app_id", t.appID)
	q.Set("secret", t.appSecret)
	data, err := t.call(ctx, http.MethodGet, "/oauth2/advertiser/get/?"+q.Encode(), creds.AccessToken, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		List []struct {
			AdvertiserID   string `json:"advertiser_id"`
			AdvertiserName string `json:"advertiser_name"`
		} `json:"list"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed accounts response", ErrPlatformRejected)
	}
	accounts := make([]Account, 0, len(out.List))
	for _, a := range out.List {
		accounts = append(accounts, Account{ID: a.AdvertiserID, Name: a.AdvertiserName})
	}
	return accounts, nil
}

type tiktokUser struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type tiktokEvent struct {
	Event     string            `json:"event"`
	EventTime int64             `json:"event_time"`
	EventID   string            `json:"event_id"`
	User      tiktokUser        `json:"user"`
	Props     map[string]string `json:"properties,omitempty"`
}

func (t *TikTokAdapter) PushLeads(ctx context.Context, creds Credentials, leads []Lead, syncType string) (PushResult, error) {
	if creds.PixelID == "" {
		return PushResult{}, fmt.Errorf("%w: connection has no pixel code", ErrPlatformRejected)
	}
	ready, res := matchable(leads)

	for _, batch := range chunk(ready, tiktokBatch) {
		events := make([]tiktokEvent, 0, len(batch))
		for _, l := range batch {
			events = append(events, tiktokEvent{
				Event:     "SubmitForm",
				EventTime: t.now().Unix(),
				EventID:   l.ID + ":" + syncType,
				User:      tiktokUser{Email: HashEmail(l.Email), PhoneNumber: HashPhoneE164(l.Phone)},
				Props:     map[string]string{"lead_segment": syncType},
			})
		}
		_, err := t.call(ctx, http.MethodPost, "/event/track/", creds.AccessToken, map[string]interface{}{
			"event_source":    "web",
			"event_source_id": creds.PixelID,
			"data":            events,
		})
		if errors.Is(err, ErrExpiredCredentials) {
			return res, err
		}
		if err != nil {
			res.fail(len(batch), err)
			continue
		}
		res.accept(batch)
	}
	return res, nil
}

var _ Adapter = (*TikTokAdapter)(nil)
