package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/tenant"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxFetchBytes       = 1 << 20
)

// Source is a polled upstream that can turn into celebration requests.
type Source interface {
	// Name keys the source's cursor and labels its metrics.
	Name() string
	Enabled(t tenant.Tenant) bool
	// Poll fetches upstream state and returns the requests that cur has not
	// seen yet. hasCursor is false on the very first poll.
	Poll(ctx context.Context, t tenant.Tenant, cur Cursor, hasCursor bool) (PollResult, error)
}

// PollResult is what one poll produced.
type PollResult struct {
	Items []Item
	// Cursor is stored once every item has been submitted.
	Cursor Cursor
}

// Item is one request and the cursor that records it as handled.
type Item struct {
	Request celebration.Request
	Cursor  Cursor
}

// HTTPConfig configures the HTTP-backed sources.
type HTTPConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Now        func() time.Time
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultFetchTimeout}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// getJSON issues an authenticated GET and decodes the response into out.
// Every failure wraps ErrFetchFailed.
func getJSON(ctx context.Context, hc *http.Client, url, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrFetchFailed, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrFetchFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w (status %d)", ErrFetchFailed, ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrFetchFailed, err)
	}
	return nil
}
