package economy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/artunion/celerychain/internal/platform/errors"
	"github.com/artunion/celerychain/internal/platform/timeouts"
)

// Client is an HTTP Bridge implementation against the economy service's
// REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the economy service at baseURL. The token
// is sent as a bearer credential on every request.
func NewClient(baseURL, token string) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("economy base URL is required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("parse economy base URL: %w", err)
	}
	return &Client{
		baseURL: trimmed,
		token:   token,
		http:    &http.Client{Timeout: timeouts.EconomyRequest},
	}, nil
}

// FetchBalance reads the current balance for a user in a guild.
func (c *Client) FetchBalance(ctx context.Context, guildID, userID string) (Balance, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.userPath(guildID, userID), nil)
	if err != nil {
		return Balance{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Balance{}, apperrors.Wrap(apperrors.CodeServiceUnavailable, "economy balance fetch failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Balance{}, unexpectedStatus("fetch balance", resp)
	}
	var balance Balance
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		return Balance{}, apperrors.Wrap(apperrors.CodeServiceUnavailable, "decode economy balance", err)
	}
	return balance, nil
}

// EditBalance applies a relative adjustment to a user's balance. Each call
// carries a fresh idempotency key so the economy service can absorb retries
// without double-applying the edit.
func (c *Client) EditBalance(ctx context.Context, guildID, userID string, edit Edit) error {
	payload, err := json.Marshal(edit)
	if err != nil {
		return fmt.Errorf("marshal balance edit: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPatch, c.userPath(guildID, userID), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeServiceUnavailable, "economy balance edit failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return unexpectedStatus("edit balance", resp)
	}
	return nil
}

func (c *Client) userPath(guildID, userID string) string {
	return fmt.Sprintf("%s/guilds/%s/users/%s", c.baseURL, url.PathEscape(guildID), url.PathEscape(userID))
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build economy request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func unexpectedStatus(op string, resp *http.Response) error {
	// Read a bounded slice of the body so error logs carry the service's
	// own message without risking unbounded reads.
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return apperrors.WithMetadata(apperrors.CodeServiceUnavailable,
		fmt.Sprintf("economy %s returned status %d", op, resp.StatusCode),
		map[string]string{
			"status": fmt.Sprintf("%d", resp.StatusCode),
			"body":   strings.TrimSpace(string(detail)),
		})
}
