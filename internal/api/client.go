// Package api is the client side of the relay's HTTP and WebSocket surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
	"github.com/dgnsrekt/stagehand-relay/internal/probe"
	"github.com/dgnsrekt/stagehand-relay/internal/relay"
)

// Client interface for testability
type Client interface {
	Play(ctx context.Context) (probe.CommandResult, error)
	Pause(ctx context.Context) (probe.CommandResult, error)
	Next(ctx context.Context) (probe.CommandResult, error)
	Previous(ctx context.Context) (probe.CommandResult, error)
	Status(ctx context.Context) (media.Status, error)
	Current(ctx context.Context) (relay.Update, error)
}

type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger
}

type statusResponse struct {
	Status media.Status `json:"status"`
}

// NewClient creates a relay client. ratePerSec <= 0 disables outbound limiting.
func NewClient(baseURL string, ratePerSec float64, timeout, retryDelay time.Duration, retryCount int, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:       10,
		MaxConnsPerHost:    4,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	limit := rate.Limit(ratePerSec)
	burst := int(ratePerSec * 2)
	if ratePerSec <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		limiter:    rate.NewLimiter(limit, burst),
		retryCount: retryCount,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) Play(ctx context.Context) (probe.CommandResult, error) {
	return c.command(ctx, "play")
}

func (c *HTTPClient) Pause(ctx context.Context) (probe.CommandResult, error) {
	return c.command(ctx, "pause")
}

func (c *HTTPClient) Next(ctx context.Context) (probe.CommandResult, error) {
	return c.command(ctx, "next")
}

func (c *HTTPClient) Previous(ctx context.Context) (probe.CommandResult, error) {
	return c.command(ctx, "previous")
}

// Status returns the relay's most recently sampled playback status.
func (c *HTTPClient) Status(ctx context.Context) (media.Status, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, "/api/media/status", true, &resp); err != nil {
		return media.StatusUnknown, err
	}
	return resp.Status, nil
}

// Current returns the relay's most recently broadcast update.
func (c *HTTPClient) Current(ctx context.Context) (relay.Update, error) {
	var u relay.Update
	if err := c.do(ctx, http.MethodGet, "/api/media/current", true, &u); err != nil {
		return relay.Update{}, err
	}
	return u, nil
}

// command sends a control command in exactly one attempt; a timed-out request
// may still have reached the player, so it is never resent.
// A failed command returns its result together with ErrCommandFailed.
func (c *HTTPClient) command(ctx context.Context, name string) (probe.CommandResult, error) {
	var result probe.CommandResult
	if err := c.do(ctx, http.MethodPost, "/api/media/"+name, false, &result); err != nil {
		return probe.CommandResult{}, err
	}
	if !result.Success {
		return result, fmt.Errorf("%w: %s", ErrCommandFailed, result.Message)
	}
	return result, nil
}

// do performs the request. With retry set, transport errors, 429 and 5xx
// responses are retried with exponential backoff up to retryCount times.
func (c *HTTPClient) do(ctx context.Context, method, path string, retry bool, out any) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	url := c.baseURL + path
	c.logger.Debug("requesting", zap.String("method", method), zap.String("url", url))

	retries := 0
	if retry {
		retries = c.retryCount
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		// Read body before closing for error messages
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = ErrRateLimited
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	if retries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
