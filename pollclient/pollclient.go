// Package pollclient provides a rate-limited HTTP client for polling external
// provider APIs on behalf of users.
package pollclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/xraph/cascade/ratelimit"
)

const maxErrorBody = 1024 // cap on error response body storage

// Sentinel errors callers branch on. All three mean "skip this user this
// tick", not "crash the poll loop".
var (
	// ErrNoToken means the user has no usable credential for the provider.
	ErrNoToken = errors.New("pollclient: no token for user")

	// ErrRateLimited means the provider rejected the request for rate
	// limiting and the advertised wait exceeded the client's bound.
	ErrRateLimited = errors.New("pollclient: provider rate limited")

	// ErrNoContent means the provider returned an empty 204 response.
	ErrNoContent = errors.New("pollclient: no content")
)

// Token is a provider access credential for one user.
type Token struct {
	Value  string
	Scopes []string
}

// HasScope reports whether the token carries the named scope.
func (t Token) HasScope(scope string) bool {
	return slices.Contains(t.Scopes, scope)
}

// TokenSource resolves and refreshes per-user provider tokens. A source with
// no token for a user returns ErrNoToken.
type TokenSource interface {
	Token(ctx context.Context, userID string) (Token, error)
	Refresh(ctx context.Context, userID string) (Token, error)
}

// Config holds poll client configuration.
type Config struct {
	RequestTimeout time.Duration
	MaxRetryAfter  time.Duration
	Limit          ratelimit.Policy
}

// Client performs authenticated, rate-limited GETs against a provider API.
type Client struct {
	client  *http.Client
	tokens  TokenSource
	limiter *ratelimit.Limiter
	config  Config
	logger  *slog.Logger
}

// New creates a poll client.
func New(tokens TokenSource, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxRetryAfter <= 0 {
		cfg.MaxRetryAfter = 30 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		tokens:  tokens,
		limiter: ratelimit.New(cfg.Limit),
		config:  cfg,
		logger:  logger,
	}
}

// TokenFor returns the user's current token without issuing a request.
// Schedulers use this to gate scope-dependent polls.
func (c *Client) TokenFor(ctx context.Context, userID string) (Token, error) {
	return c.tokens.Token(ctx, userID)
}

// GetJSON fetches url on behalf of userID and decodes the JSON response into
// out. A 401 triggers exactly one silent token refresh and retry. A 429 waits
// out the provider's Retry-After hint when it fits the configured bound. A
// 204 returns ErrNoContent with out untouched.
func (c *Client) GetJSON(ctx context.Context, userID, url string, out any) error {
	if err := c.limiter.Wait(ctx, userID); err != nil {
		return err
	}

	tok, err := c.tokens.Token(ctx, userID)
	if err != nil {
		return err
	}

	resp, err := c.get(ctx, url, tok)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		tok, err = c.tokens.Refresh(ctx, userID)
		if err != nil {
			return fmt.Errorf("refresh token: %w", err)
		}
		c.logger.DebugContext(ctx, "token refreshed after 401", "user_id", userID)

		resp, err = c.get(ctx, url, tok)
		if err != nil {
			return err
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := retryAfter(resp)
		drain(resp)
		if wait > c.config.MaxRetryAfter {
			return fmt.Errorf("%w: retry after %s", ErrRateLimited, wait)
		}
		c.logger.DebugContext(ctx, "provider rate limited, waiting",
			"user_id", userID, "retry_after", wait)
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}

		resp, err = c.get(ctx, url, tok)
		if err != nil {
			return err
		}
	}

	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return ErrNoContent
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))
	}
}

func (c *Client) get(ctx context.Context, url string, tok Token) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("User-Agent", "Cascade/1.0")

	return c.client.Do(req)
}

// retryAfter parses the Retry-After header, defaulting to one second.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
