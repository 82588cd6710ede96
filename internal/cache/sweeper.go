package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/clock"
)

// Sweeper runs SweepExpired on a set of caches at a fixed interval,
// independent of the retention engine.
type Sweeper struct {
	caches   []Sweepable
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper creates a stopped sweeper.
func NewSweeper(interval time.Duration, clk clock.Clock, logger *slog.Logger, caches ...Sweepable) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Sweeper{
		caches:   caches,
		interval: interval,
		clock:    clk,
		logger:   logger,
	}
}

// SweepAll sweeps every cache once and returns the total removed.
func (s *Sweeper) SweepAll() int {
	total := 0
	for _, c := range s.caches {
		n := c.SweepExpired()
		if n > 0 {
			s.logger.Info("cache: swept expired entries", "cache", c.Name(), "removed", n)
		}
		total += n
	}
	return total
}

// Start begins sweeping in the background. Calling Start twice is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.SweepAll()
			case <-stop:
				return
			}
		}
	}(s.stopCh, s.doneCh)
}

// Stop halts the background loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	stop, done := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
