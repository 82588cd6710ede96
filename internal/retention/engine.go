// Package retention deletes expired bot artifacts and the cache entries
// and threads they hold on to.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/greenghost107/TradersMind-chartBot/internal/cache"
	"github.com/greenghost107/TradersMind-chartBot/internal/clock"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
	"github.com/greenghost107/TradersMind-chartBot/internal/threads"
	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

const (
	DefaultRetention        = 26 * time.Hour
	DefaultSafetyMargin     = 4 * time.Hour
	DefaultInterval         = time.Hour
	DefaultOrphanSweepEvery = 6
	DefaultCallTimeout      = 15 * time.Second
)

// Options tune the engine. Zero values take the defaults above.
type Options struct {
	Retention    time.Duration
	SafetyMargin time.Duration

	// OrphanSweepEvery runs the orphan thread sweep on every Nth tick.
	// Negative disables it.
	OrphanSweepEvery int

	// BotUserID restricts the orphan sweep to threads owned by the bot.
	BotUserID string

	// Conversations are swept for orphan threads in addition to the ones
	// tracked artifacts live in.
	Conversations []string

	// CallTimeout bounds every platform call made during a tick.
	CallTimeout time.Duration

	// RunOnStart runs a tick as soon as the loop starts.
	RunOnStart bool
}

func (o Options) withDefaults() Options {
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.SafetyMargin <= 0 {
		o.SafetyMargin = DefaultSafetyMargin
	}
	if o.OrphanSweepEvery == 0 {
		o.OrphanSweepEvery = DefaultOrphanSweepEvery
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	return o
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Registry *tracking.Registry
	Threads  *threads.Directory
	Platform platform.Platform
	Caches   []cache.Releaser
	Clock    clock.Clock
	Logger   *slog.Logger

	// OnTick receives every finished tick summary, e.g. to record history.
	OnTick func(TickSummary)
}

// Status is a snapshot of the engine for observability.
type Status struct {
	Running      bool                  `json:"running"`
	Interval     time.Duration         `json:"interval"`
	Retention    time.Duration         `json:"retention"`
	TotalTracked int                   `json:"total_tracked"`
	ByKind       map[tracking.Kind]int `json:"by_kind"`
	Ticks        int                   `json:"ticks"`
	LastTick     *TickSummary          `json:"last_tick,omitempty"`
}

// Engine runs cleanup ticks on a timer. A tick never overlaps another;
// manual triggers wait for an in-flight tick to finish.
type Engine struct {
	registry *tracking.Registry
	threads  *threads.Directory
	platform platform.Platform
	caches   []cache.Releaser
	clock    clock.Clock
	logger   *slog.Logger
	opts     Options
	onTick   func(TickSummary)

	// tickMu serializes ticks.
	tickMu sync.Mutex

	mu       sync.Mutex
	ticks    int
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration
	last     *TickSummary
}

// New creates a stopped engine.
func New(deps Deps, opts Options) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		registry: deps.Registry,
		threads:  deps.Threads,
		platform: deps.Platform,
		caches:   deps.Caches,
		clock:    deps.Clock,
		logger:   deps.Logger,
		opts:     opts.withDefaults(),
		onTick:   deps.OnTick,
	}
}

// Start begins ticking every interval. Calling Start while running logs a
// warning and changes nothing.
func (e *Engine) Start(interval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopCh != nil {
		e.logger.Warn("retention: start called while running", "interval", e.interval)
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	e.interval = interval
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	ticker := e.clock.NewTicker(interval)

	e.logger.Info("retention: started",
		"interval", interval, "retention", e.opts.Retention, "safety_margin", e.opts.SafetyMargin)

	go e.loop(ticker, e.stopCh, e.doneCh)
}

func (e *Engine) loop(ticker *clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	if e.opts.RunOnStart {
		e.RunCleanup(context.Background())
	}
	for {
		select {
		case <-ticker.C:
			e.RunCleanup(context.Background())
		case <-stop:
			return
		}
	}
}

// Stop halts the timer. An in-flight tick runs to completion before Stop
// returns. Stopping a stopped engine logs and returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	stop, done := e.stopCh, e.doneCh
	e.stopCh, e.doneCh = nil, nil
	e.mu.Unlock()

	if stop == nil {
		e.logger.Debug("retention: stop called while stopped")
		return
	}
	close(stop)
	<-done
	e.logger.Info("retention: stopped")
}

// Running reports whether the timer is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopCh != nil
}

// TriggerCleanupNow runs a tick immediately, outside the timer. The tick
// ignores cancellation of ctx; see RunCleanup.
func (e *Engine) TriggerCleanupNow(ctx context.Context) TickSummary {
	e.logger.Info("retention: manual cleanup requested")
	return e.RunCleanup(ctx)
}

// Status returns a snapshot of engine state and registry size.
func (e *Engine) Status() Status {
	stats := e.registry.Stats()

	e.mu.Lock()
	st := Status{
		Running:      e.stopCh != nil,
		Interval:     e.interval,
		Retention:    e.opts.Retention,
		TotalTracked: stats.Total,
		ByKind:       stats.ByKind,
		Ticks:        e.ticks,
	}
	if e.last != nil {
		last := *e.last
		last.Artifacts = nil
		st.LastTick = &last
	}
	e.mu.Unlock()
	return st
}

// RunCleanup runs one tick: clean every expired artifact, sweep stale
// tracking, and on every Nth tick sweep orphan threads. Nothing in a tick
// escapes it; panics are recovered and logged.
//
// Every expired artifact is untracked whether or not its delete went
// through, so a tick must not be cut short by its caller. Cancellation of
// ctx is dropped and each platform call is bounded by CallTimeout alone.
func (e *Engine) RunCleanup(ctx context.Context) (summary TickSummary) {
	ctx = context.WithoutCancel(ctx)

	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	e.ticks++
	tick := e.ticks
	e.mu.Unlock()

	start := e.clock.Now()
	summary = TickSummary{TickID: ulid.Make().String(), StartedAt: start}

	defer func() {
		if r := recover(); r != nil {
			summary.Panicked = true
			e.logger.Error("retention: tick panicked",
				"tick_id", summary.TickID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
		summary.Duration = e.clock.Now().Sub(start)
		e.finish(summary)
	}()

	expired := e.registry.Expired(start, e.opts.Retention)
	summary.Expired = len(expired)
	for _, a := range expired {
		if a.Ephemeral {
			summary.Skipped++
		}
		summary.add(e.cleanupArtifact(ctx, a))
	}

	summary.Swept = e.registry.SweepStale(e.clock.Now(), e.opts.Retention, e.opts.SafetyMargin)
	if summary.Swept > 0 {
		e.logger.Warn("retention: swept stale tracking entries", "count", summary.Swept)
	}

	if every := e.opts.OrphanSweepEvery; every > 0 && tick%every == 0 {
		summary.OrphanRun = true
		summary.Orphans = e.sweepOrphans(ctx)
	}
	return summary
}

func (e *Engine) finish(s TickSummary) {
	e.mu.Lock()
	e.last = &s
	e.mu.Unlock()

	e.logger.Info("retention: cleanup tick",
		"tick_id", s.TickID,
		"expired", s.Expired,
		"deleted", s.Deleted,
		"errors", s.Errors,
		"skipped_ephemeral", s.Skipped,
		"cache_released", s.CacheReleased,
		"release_calls", s.ReleaseCalls,
		"tracking_swept", s.Swept,
		"threads_removed", s.Threads,
		"orphans_removed", s.Orphans,
		"duration", s.Duration,
	)

	if e.onTick != nil {
		e.onTick(s)
	}
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.CallTimeout)
}
