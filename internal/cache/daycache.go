// Package cache holds the quote and chart caches. Entries are keyed by
// ticker and calendar day and are valid only on the day they were written.
package cache

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/clock"
)

const (
	dayLayout = "2006-01-02"

	// ChartPrefix marks chart image keys.
	ChartPrefix = "chart_"
)

// keyPattern matches "<TICKER>_<YYYY-MM-DD>" after any prefix is removed.
// Tickers are upper-case so "chart_AAPL_..." can never be read as a quote key.
var keyPattern = regexp.MustCompile(`^([A-Z0-9.\-^=]{1,12})_(\d{4}-\d{2}-\d{2})$`)

// QuoteKey returns the quote cache key for ticker on day.
func QuoteKey(ticker string, day time.Time) string {
	return NormalizeTicker(ticker) + "_" + day.Format(dayLayout)
}

// ChartKey returns the chart cache key for ticker on day.
func ChartKey(ticker string, day time.Time) string {
	return ChartPrefix + QuoteKey(ticker, day)
}

// NormalizeTicker upper-cases and trims a symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Releaser is the view of a cache the retention engine needs.
type Releaser interface {
	Name() string
	Owns(key string) bool
	Release(key string) bool
}

// Sweepable is the view of a cache the sweeper needs.
type Sweepable interface {
	Name() string
	SweepExpired() int
}

type entry[T any] struct {
	day       string
	payload   T
	timestamp time.Time
}

// DayCache is a map from (ticker, day) to a payload.
type DayCache[T any] struct {
	name   string
	prefix string
	clock  clock.Clock
	loc    *time.Location

	mu      sync.RWMutex
	entries map[string]entry[T]
}

// NewDayCache creates a cache whose keys are prefix+"<TICKER>_<day>". The
// calendar day is computed from clk in loc; a nil loc means UTC.
func NewDayCache[T any](name, prefix string, clk clock.Clock, loc *time.Location) *DayCache[T] {
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &DayCache[T]{
		name:    name,
		prefix:  prefix,
		clock:   clk,
		loc:     loc,
		entries: make(map[string]entry[T]),
	}
}

// NewQuoteCache returns a cache using the "<TICKER>_<day>" key format.
func NewQuoteCache[T any](clk clock.Clock, loc *time.Location) *DayCache[T] {
	return NewDayCache[T]("quotes", "", clk, loc)
}

// NewChartCache returns a cache using the "chart_<TICKER>_<day>" key format.
func NewChartCache[T any](clk clock.Clock, loc *time.Location) *DayCache[T] {
	return NewDayCache[T]("charts", ChartPrefix, clk, loc)
}

// Name identifies the cache in logs.
func (c *DayCache[T]) Name() string { return c.name }

// Today returns the current calendar day in the cache's location.
func (c *DayCache[T]) Today() string {
	return c.clock.Now().In(c.loc).Format(dayLayout)
}

// Key returns the key ticker would be stored under today.
func (c *DayCache[T]) Key(ticker string) string {
	return c.prefix + NormalizeTicker(ticker) + "_" + c.Today()
}

// Get returns today's payload for ticker. Entries from earlier days read
// as absent; they are left for SweepExpired.
func (c *DayCache[T]) Get(ticker string) (T, bool) {
	today := c.Today()
	key := c.prefix + NormalizeTicker(ticker) + "_" + today

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero T
	if !ok || e.day != today {
		return zero, false
	}
	return e.payload, true
}

// Put stores payload under today's key for ticker and returns that key.
func (c *DayCache[T]) Put(ticker string, payload T) string {
	now := c.clock.Now()
	today := now.In(c.loc).Format(dayLayout)
	key := c.prefix + NormalizeTicker(ticker) + "_" + today

	c.mu.Lock()
	c.entries[key] = entry[T]{day: today, payload: payload, timestamp: now}
	c.mu.Unlock()
	return key
}

// Owns reports whether key has this cache's format.
func (c *DayCache[T]) Owns(key string) bool {
	if !strings.HasPrefix(key, c.prefix) {
		return false
	}
	return keyPattern.MatchString(key[len(c.prefix):])
}

// Release removes the entry stored under key. Returns whether one existed.
func (c *DayCache[T]) Release(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// SweepExpired removes every entry not written today.
func (c *DayCache[T]) SweepExpired() int {
	today := c.Today()

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if e.day != today {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, live or not yet swept.
func (c *DayCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
