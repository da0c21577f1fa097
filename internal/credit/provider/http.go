package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider calls a bureau gateway speaking JSON over HTTPS.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a bureau client with a fixed timeout.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *HTTPProvider) post(ctx context.Context, path string, subject Subject) ([]byte, error) {
	if err := subject.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d", ErrInvalidInput, resp.StatusCode)
	}
	return raw, nil
}

func (p *HTTPProvider) Pull(ctx context.Context, subject Subject) (Report, error) {
	raw, err := p.post(ctx, "/v1/reports", subject)
	if err != nil {
		return Report{}, err
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return Report{}, fmt.Errorf("%w: decode report: %v", ErrProviderUnavailable, err)
	}
	if report.CreditScore < 300 || report.CreditScore > 850 {
		return Report{}, fmt.Errorf("%w: score %d out of range", ErrProviderUnavailable, report.CreditScore)
	}
	report.Raw = raw
	return report, nil
}

func (p *HTTPProvider) SoftCheck(ctx context.Context, subject Subject) (SoftReport, error) {
	raw, err := p.post(ctx, "/v1/prequalifications", subject)
	if err != nil {
		return SoftReport{}, err
	}
	var out struct {
		CreditScore int `json:"creditScore"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return SoftReport{}, fmt.Errorf("%w: decode soft check: %v", ErrProviderUnavailable, err)
	}
	return SoftReportFor(out.CreditScore), nil
}

var _ Provider = (*HTTPProvider)(nil)
