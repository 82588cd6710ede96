package quote

import (
	"context"
	"sync"

	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
)

// Mock is a test double for Provider. Tickers missing from Records are
// reported as not found.
type Mock struct {
	ProviderName string
	Records      map[string]*Record
	Err          error

	mu    sync.Mutex
	calls []string
}

func (m *Mock) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Fetch records the call and returns the configured record or error.
func (m *Mock) Fetch(ctx context.Context, ticker string) (*Record, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ticker)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	rec, ok := m.Records[ticker]
	if !ok {
		return nil, errors.NewNotFound("quote", ticker)
	}
	cp := *rec
	return &cp, nil
}

// Calls returns the tickers fetched so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
