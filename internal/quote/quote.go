// Package quote fetches price data for tickers from HTTP providers and
// caches it per calendar day.
package quote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/config"
	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
)

// Provider fetches a quote for one ticker.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, ticker string) (*Record, error)
}

// Point is one intraday price sample.
type Point struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}

// Record is a quote snapshot plus the intraday series used for charting.
type Record struct {
	Ticker        string    `json:"ticker"`
	Provider      string    `json:"provider"`
	Currency      string    `json:"currency,omitempty"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Open          float64   `json:"open,omitempty"`
	High          float64   `json:"high,omitempty"`
	Low           float64   `json:"low,omitempty"`
	Points        []Point   `json:"points,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Change returns the absolute change from the previous close.
func (r *Record) Change() float64 {
	return r.Price - r.PreviousClose
}

// ChangePercent returns the percent change from the previous close.
func (r *Record) ChangePercent() float64 {
	if r.PreviousClose == 0 {
		return 0
	}
	return (r.Price - r.PreviousClose) / r.PreviousClose * 100
}

// Summary is a one-line human description of the quote.
func (r *Record) Summary() string {
	sign := "+"
	if r.Change() < 0 {
		sign = ""
	}
	return fmt.Sprintf("%s %.2f (%s%.2f, %s%.2f%%)",
		r.Ticker, r.Price, sign, r.Change(), sign, r.ChangePercent())
}

// NewProvider creates a single provider by name.
func NewProvider(name string, cfg config.QuoteConfig) (Provider, error) {
	client := &http.Client{Timeout: timeout(cfg)}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "yahoo":
		url := cfg.YahooURL
		if url == "" {
			url = "https://query1.finance.yahoo.com"
		}
		return NewYahoo(url, client), nil
	case "finnhub":
		if cfg.FinnhubKey == "" {
			return nil, fmt.Errorf("finnhub provider requires CHARTBOT_QUOTE_FINNHUB_KEY or config")
		}
		url := cfg.FinnhubURL
		if url == "" {
			url = "https://finnhub.io"
		}
		return NewFinnhub(url, cfg.FinnhubKey, client), nil
	default:
		return nil, fmt.Errorf("unknown quote provider: %q", name)
	}
}

// NewFromConfig builds the configured providers in order. Providers that
// cannot be built are reported in skipped; an error is returned only when
// none can.
func NewFromConfig(cfg config.QuoteConfig) (p Provider, skipped []error, err error) {
	var providers []Provider
	for _, name := range cfg.Providers {
		prov, err := NewProvider(name, cfg)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		providers = append(providers, prov)
	}
	if len(providers) == 0 {
		return nil, skipped, fmt.Errorf("no usable quote provider in %v", cfg.Providers)
	}
	if len(providers) == 1 {
		return providers[0], skipped, nil
	}
	return NewFallback(providers...), skipped, nil
}

func timeout(cfg config.QuoteConfig) time.Duration {
	if cfg.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}

// statusError maps a provider HTTP status onto the error taxonomy.
func statusError(provider, ticker string, status int, body []byte) error {
	switch status {
	case http.StatusNotFound:
		return errors.NewNotFound("quote", ticker)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewForbidden(provider+" quote", ticker)
	}
	return errors.NewTransient(provider+" quote "+ticker,
		fmt.Errorf("status %d: %s", status, truncate(body, 200)))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
