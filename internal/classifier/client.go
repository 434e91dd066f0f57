// Package classifier is the HTTP transport to the upstream domain
// classifier: JSON-over-HTTP POST with a bounded timeout and redirect
// count. Retries are a reporter-level policy, not implemented here.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	requestTimeout = 10 * time.Second
	maxRedirects   = 3
)

// Client posts JSON bodies to a classifier endpoint. BaseURL is
// mutex-guarded so it can be reconfigured at runtime (spec.md §9 "the
// reporter's server URL is protected by its own mutex").
type Client struct {
	mu      sync.RWMutex
	baseURL string

	httpClient *http.Client
	log        zerolog.Logger
}

// New constructs a Client pointed at baseURL.
func New(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		log: log.With().Str("component", "classifier").Logger(),
	}
}

// SetBaseURL updates the target URL under the write lock.
func (c *Client) SetBaseURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = url
}

func (c *Client) url() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Post sends body as a JSON POST to path (appended to the configured base
// URL) and returns the raw response body plus whether the status was 2xx.
// A non-2xx status, a network error, or a build failure is reported as
// ok=false; the caller decides whether that constitutes a retryable
// failure.
func (c *Client) Post(ctx context.Context, path string, body any) (respBody []byte, ok bool, err error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, false, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url()+path, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("classifier request failed")
		return nil, false, err
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	status2xx := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !status2xx {
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("classifier returned non-2xx")
		return data, false, nil
	}
	if readErr != nil {
		c.log.Warn().Err(readErr).Str("path", path).Msg("classifier response body unreadable after 2xx")
	}
	// Per spec.md §9: 2xx is success regardless of whether the body parses.
	return data, true, nil
}
