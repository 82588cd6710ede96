package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/config"
)

// defaultTimeout bounds requests whose context carries no deadline.
var defaultTimeout = 60 * time.Second

// apiClient talks to a running chartbot's admin API.
type apiClient struct {
	http      *http.Client
	serverURL string
}

// newAPIClient resolves the server URL from --server, then CHARTBOT_URL,
// then the configured listen address.
func newAPIClient() *apiClient {
	url := serverURL
	if url == "" {
		url = os.Getenv("CHARTBOT_URL")
	}
	if url == "" {
		cfg, _, err := config.Load(configPath)
		if err != nil {
			cfg = config.Default()
		}
		url = "http://" + cfg.ListenAddr()
	}
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	return &apiClient{
		http:      &http.Client{},
		serverURL: strings.TrimRight(url, "/"),
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w (is chartbot serve running?)", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

// Get sends a GET request and decodes the JSON response into out.
func (c *apiClient) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, "GET", path, nil, out)
}

// Post sends a POST request with a JSON body.
func (c *apiClient) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, "POST", path, body, out)
}

// Healthy checks if the server is reachable.
func (c *apiClient) Healthy(ctx context.Context) bool {
	return c.Get(ctx, "/api/health", nil) == nil
}
