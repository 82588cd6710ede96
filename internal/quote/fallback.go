package quote

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
)

// Fallback tries each provider in order and returns the first success.
type Fallback struct {
	providers []Provider
	logger    *slog.Logger
}

// NewFallback creates a Fallback over providers.
func NewFallback(providers ...Provider) *Fallback {
	return &Fallback{providers: providers, logger: slog.Default()}
}

// WithLogger sets the logger used to report provider failures.
func (f *Fallback) WithLogger(l *slog.Logger) *Fallback {
	f.logger = l
	return f
}

func (f *Fallback) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

// Fetch returns the first provider's success. When every provider fails
// the result is NOT_FOUND only if all of them said so.
func (f *Fallback) Fetch(ctx context.Context, ticker string) (*Record, error) {
	var errs []error
	allNotFound := true
	for _, p := range f.providers {
		rec, err := p.Fetch(ctx, ticker)
		if err == nil {
			if rec.Provider == "" {
				rec.Provider = p.Name()
			}
			return rec, nil
		}
		f.logger.Warn("quote: provider failed", "provider", p.Name(), "ticker", ticker, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if !errors.Is(err, errors.ErrNotFound) {
			allNotFound = false
		}
		if ctx.Err() != nil {
			break
		}
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("no quote providers configured")
	}
	if allNotFound {
		return nil, errors.NewNotFound("quote", ticker)
	}
	return nil, errors.NewTransient("fetch quote "+ticker, stderrors.Join(errs...))
}
