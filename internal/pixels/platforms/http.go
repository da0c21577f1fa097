package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// client is a paced JSON HTTP client shared by the adapters.
type client struct {
	http  *http.Client
	pacer *rate.Limiter
}

func newClient(perSecond float64, burst int) *client {
	return &client{
		http:  &http.Client{Timeout: 20 * time.Second},
		pacer: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// do sends body as JSON (or form when body is already an io.Reader) and returns
// the status and raw response. Transport errors map to ErrPlatformUnavailable.
func (c *client) do(ctx context.Context, method, url string, headers map[string]string, body interface{}) (int, []byte, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrPlatformUnavailable, err)
	}

	var reader io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
		contentType = "application/x-www-form-urlencoded"
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read body: %v", ErrPlatformUnavailable, err)
	}
	return resp.StatusCode, raw, nil
}

// classify maps an HTTP status to the adapter error kinds.
func classify(status int, raw []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d", ErrExpiredCredentials, status)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d", ErrPlatformUnavailable, status)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrPlatformRejected, status, truncate(string(raw), 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
