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
	metaGraphURL  = "https://graph.facebook.com/v19.0"
	metaDialogURL = "https://www.facebook.com/v19.0/dialog/oauth"
	metaBatchSize = 1000
	// OAuthException code for invalid or expired tokens.
	metaCodeInvalidToken = 190
)

// MetaAdapter pushes leads through the Conversions API.
type MetaAdapter struct {
	appID     string
	appSecret string
	graphURL  string
	dialogURL string
	client    *client
	now       func() time.Time
}

// NewMetaAdapter creates a Meta adapter. graphURL may be empty for the production API.
func NewMetaAdapter(appID, appSecret, graphURL string) *MetaAdapter {
	if graphURL == "" {
		graphURL = metaGraphURL
	}
	return &MetaAdapter{
		appID:     appID,
		appSecret: appSecret,
		graphURL:  graphURL,
		dialogURL: metaDialogURL,
		client:    newClient(10, 5),
		now:       time.Now,
	}
}

func (m *MetaAdapter) Platform() Platform { return Meta }

func (m *MetaAdapter) AuthURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("client_id", m.appID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("scope", "ads_management,business_management")
	q.Set("response_type", "code")
	return m.dialogURL + "?" + q.Encode()
}

type metaError struct {
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// check maps Graph API errors; code 190 is an expired or revoked token.
func (m *MetaAdapter) check(status int, raw []byte) error {
	var me metaError
	if json.Unmarshal(raw, &me) == nil && me.Error != nil {
		if me.Error.Code == metaCodeInvalidToken {
			return fmt.Errorf("%w: %s", ErrExpiredCredentials, me.Error.Message)
		}
		if status >= 500 || status == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", ErrPlatformUnavailable, me.Error.Message)
		}
		return fmt.Errorf("%w: %s", ErrPlatformRejected, me.Error.Message)
	}
	return classify(status, raw)
}

func (m *MetaAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (Credentials, error) {
	q := url.Values{}
	q.Set("client_id", m.appID)
	q.Set("client_secret", m.appSecret)
	q.Set("redirect_uri", redirectURI)
	q.Set("code", code)

	status, raw, err := m.client.do(ctx, http.MethodGet, m.graphURL+"/oauth/access_token?"+q.Encode(), nil, nil)
	if err != nil {
		return Credentials{}, err
	}
	if err := m.check(status, raw); err != nil {
		return Credentials{}, err
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.AccessToken == "" {
		return Credentials{}, fmt.Errorf("%w: malformed token response", ErrPlatformRejected)
	}
	creds := Credentials{AccessToken: out.AccessToken}
	if out.ExpiresIn > 0 {
		exp := m.now().Add(time.Duration(out.ExpiresIn) * time.Second)
		creds.ExpiresAt = &exp
	}
	return creds, nil
}

func (m *MetaAdapter) FetchAccounts(ctx context.Context, creds Credentials) ([]Account, error) {
	q := url.Values{}
	q.Set("fields", "id,name")
	q.Set("access_token", creds.AccessToken)
	status, raw, err := m.client.do(ctx, http.MethodGet, m.graphURL+"/me/adaccounts?"+q.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	if err := m.check(status, raw); err != nil {
		return nil, err
	}
	var out struct {
		Data []Account `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed accounts response", ErrPlatformRejected)
	}
	return out.Data, nil
}

type metaUserData struct {
	Em []string `json:"em,omitempty"`
	Ph []string `json:"ph,omitempty"`
	Fn []string `json:"fn,omitempty"`
	Ln []string `json:"ln,omitempty"`
	St []string `json:"st,omitempty"`
	Zp []string `json:"zp,omitempty"`
}

type metaEvent struct {
	EventName    string            `json:"event_name"`
	EventTime    int64             `json:"event_time"`
	EventID      string            `json:"event_id"`
	ActionSource string            `json:"action_source"`
	UserData     metaUserData      `json:"user_data"`
	CustomData   map[string]string `json:"custom_data,omitempty"`
}

func nonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

func (m *MetaAdapter) PushLeads(ctx context.Context, creds Credentials, leads []Lead, syncType string) (PushResult, error) {
	if creds.PixelID == "" {
		return PushResult{}, fmt.Errorf("%w: connection has no pixel id", ErrPlatformRejected)
	}
	ready, res := matchable(leads)

	for _, batch := range chunk(ready, metaBatchSize) {
		events := make([]metaEvent, 0, len(batch))
		for _, l := range batch {
			events = append(events, metaEvent{
				EventName:    "Lead",
				EventTime:    m.now().Unix(),
				EventID:      l.ID + ":" + syncType,
				ActionSource: "system_generated",
				UserData: metaUserData{
					Em: nonEmpty(HashEmail(l.Email)),
					Ph: nonEmpty(HashPhoneDigits(l.Phone)),
					Fn: nonEmpty(HashName(l.FirstName)),
					Ln: nonEmpty(HashName(l.LastName)),
					St: nonEmpty(HashState(l.State)),
					Zp: nonEmpty(HashZip(l.ZipCode)),
				},
				CustomData: map[string]string{"lead_segment": syncType},
			})
		}

		q := url.Values{}
		q.Set("access_token", creds.AccessToken)
		status, raw, err := m.client.do(ctx, http.MethodPost,
			fmt.Sprintf("%s/%s/events?%s", m.graphURL, url.PathEscape(creds.PixelID), q.Encode()),
			nil, map[string]interface{}{"data": events})
		if err == nil {
			err = m.check(status, raw)
		}
		if errors.Is(err, ErrExpiredCredentials) {
			return res, err
		}
		if err != nil {
			res.fail(len(batch), err)
			continue
		}

		var out struct {
			EventsReceived int `json:"events_received"`
		}
		_ = json.Unmarshal(raw, &out)
		if out.EventsReceived >= len(batch) {
			res.accept(batch)
			continue
		}
		// Meta does not say which events it dropped, so none of a partial
		// batch is recorded as accepted. Dropped events are invalid and permanent.
		res.SyncedCount += out.EventsReceived
		missing := len(batch) - out.EventsReceived
		res.FailedCount += missing
		res.Errors = append(res.Errors, fmt.Sprintf("%d events not accepted", missing))
	}
	return res, nil
}

var _ Adapter = (*MetaAdapter)(nil)
