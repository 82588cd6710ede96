// Package discord implements platform.Platform over the Discord REST API.
//
// Only REST is spoken here. Gateway events reach the bot through the
// admin API's event endpoints.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/greenghost107/TradersMind-chartBot/internal/config"
	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
)

const (
	userAgent   = "DiscordBot (https://github.com/greenghost107/TradersMind-chartBot, 1.0)"
	httpTimeout = 15 * time.Second

	// Discord's global limit is 50 requests per second per bot.
	globalRate  = 45
	globalBurst = 10

	// A 429 asking us to wait longer than this is returned as transient.
	maxRetryAfter = 5 * time.Second
)

// Client talks to the Discord REST API with a bot token.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	appID   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ platform.Platform = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithApplicationID sets the application that owns interaction
// responses. Interactions carrying their own application id override it.
func WithApplicationID(id string) Option {
	return func(c *Client) { c.appID = id }
}

// WithRateLimit replaces the request limiter.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New creates a client from config. The token is required.
func New(cfg config.DiscordConfig, opts ...Option) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required (CHARTBOT_DISCORD_TOKEN or DISCORD_TOKEN)")
	}
	base := strings.TrimRight(cfg.APIURL, "/")
	if base == "" {
		base = "https://discord.com/api/v10"
	}
	c := &Client{
		http:    &http.Client{Timeout: httpTimeout},
		baseURL: base,
		token:   cfg.Token,
		appID:   cfg.ApplicationID,
		limiter: rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CurrentUser returns the bot's own user id. A bot user shares its id
// with its application, so the id also becomes the application id when
// none was configured. Call it before the client is shared.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	var u user
	if err := c.call(ctx, "GET", "/users/@me", nil, &u); err != nil {
		return "", err
	}
	if c.appID == "" {
		c.appID = u.ID
	}
	return u.ID, nil
}

// call sends a JSON request and decodes a JSON response into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
	}
	return c.send(ctx, method, path, "application/json", body, out)
}

// send performs one request, retrying once on a short 429.
func (c *Client) send(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.NewTransient(method+" "+path, err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return errors.NewTransient(method+" "+path, err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return errors.NewTransient("read "+path, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt == 0 {
			if wait := retryAfter(resp, data); wait <= maxRetryAfter {
				c.logger.Debug("discord: rate limited", "path", path, "retry_after", wait)
				select {
				case <-time.After(wait):
					continue
				case <-ctx.Done():
					return errors.NewTransient(method+" "+path, ctx.Err())
				}
			}
		}
		if resp.StatusCode >= 300 {
			return statusError(method, path, resp.StatusCode, data)
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
		return nil
	}
}

// statusError maps a Discord status onto the error taxonomy.
func statusError(method, path string, status int, body []byte) error {
	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)

	switch status {
	case http.StatusNotFound:
		return errors.NewNotFound("discord resource", path)
	case http.StatusForbidden, http.StatusUnauthorized:
		return errors.NewForbidden("discord "+method, path)
	}
	msg := apiErr.Message
	if msg == "" {
		msg = string(body)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
	}
	return errors.NewTransient(method+" "+path, fmt.Errorf("status %d: %s", status, msg))
}

func retryAfter(resp *http.Response, body []byte) time.Duration {
	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.RetryAfter > 0 {
		return time.Duration(payload.RetryAfter * float64(time.Second))
	}
	if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return time.Second
}
