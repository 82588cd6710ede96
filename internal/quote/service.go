package quote

import (
	"context"
	"log/slog"

	"github.com/greenghost107/TradersMind-chartBot/internal/cache"
)

// Service answers quote requests from the day cache, fetching on a miss.
type Service struct {
	provider Provider
	cache    *cache.DayCache[*Record]
	logger   *slog.Logger
}

// NewService creates a Service. The cache key format is the quote key
// "<TICKER>_<YYYY-MM-DD>".
func NewService(p Provider, c *cache.DayCache[*Record], logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: p, cache: c, logger: logger}
}

// Get returns today's quote for ticker and the cache key it is held under.
func (s *Service) Get(ctx context.Context, ticker string) (*Record, string, error) {
	ticker = cache.NormalizeTicker(ticker)
	if rec, ok := s.cache.Get(ticker); ok {
		return rec, s.cache.Key(ticker), nil
	}

	rec, err := s.provider.Fetch(ctx, ticker)
	if err != nil {
		return nil, "", err
	}
	key := s.cache.Put(ticker, rec)
	s.logger.Debug("quote: cached", "ticker", ticker, "provider", rec.Provider, "key", key)
	return rec, key, nil
}
