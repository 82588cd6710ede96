package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
)

// Finnhub reads the Finnhub quote endpoint. It returns a snapshot without
// an intraday series.
type Finnhub struct {
	url    string
	key    string
	client *http.Client
}

// NewFinnhub creates a Finnhub provider.
func NewFinnhub(baseURL, key string, client *http.Client) *Finnhub {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Finnhub{url: baseURL, key: key, client: client}
}

func (f *Finnhub) Name() string { return "finnhub" }

// Fetch requests the current quote for ticker.
func (f *Finnhub) Fetch(ctx context.Context, ticker string) (*Record, error) {
	q := url.Values{"symbol": {ticker}}
	req, err := http.NewRequestWithContext(ctx, "GET", f.url+"/api/v1/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Finnhub-Token", f.key)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewTransient("finnhub api", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransient("read finnhub response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("finnhub", ticker, resp.StatusCode, body)
	}

	var result struct {
		Current       float64 `json:"c"`
		High          float64 `json:"h"`
		Low           float64 `json:"l"`
		Open          float64 `json:"o"`
		PreviousClose float64 `json:"pc"`
		Timestamp     int64   `json:"t"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode finnhub response: %w", err)
	}
	// Unknown symbols come back as an all-zero quote.
	if result.Current == 0 && result.Timestamp == 0 {
		return nil, errors.NewNotFound("quote", ticker)
	}

	return &Record{
		Ticker:        ticker,
		Provider:      f.Name(),
		Price:         result.Current,
		PreviousClose: result.PreviousClose,
		Open:          result.Open,
		High:          result.High,
		Low:           result.Low,
		FetchedAt:     time.Now(),
	}, nil
}
