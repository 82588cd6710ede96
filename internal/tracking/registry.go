// Package tracking is the time-indexed registry of messages the bot has
// emitted and must eventually delete.
//
// Every operation on a Registry is atomic with respect to every other:
// the backing map is guarded by one mutex and never escapes the type.
// Event handlers track artifacts concurrently while the retention engine
// queries and untracks on its own timer.
package tracking

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/clock"
)

// Journal persists registry mutations so tracking survives restarts.
// Implementations must tolerate deleting ids they never saved.
//
// Journal calls run while the registry lock is held, so the journal sees
// the mutations of one id in the order the registry applied them. Every
// Track and Untrack waits on the journal's write; it must stay fast.
type Journal interface {
	SaveArtifact(a Artifact) error
	DeleteArtifact(id string) error
}

// Stats is a read-only snapshot of registry size.
type Stats struct {
	Total  int          `json:"total"`
	ByKind map[Kind]int `json:"by_kind"`
}

// Registry maps artifact id to artifact metadata.
type Registry struct {
	mu        sync.Mutex
	artifacts map[string]Artifact

	clock   clock.Clock
	journal Journal
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source used to stamp artifacts tracked without
// a CreatedAt.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithJournal enables write-through persistence.
func WithJournal(j Journal) Option {
	return func(r *Registry) { r.journal = j }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		artifacts: make(map[string]Artifact),
		clock:     clock.Real(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Track inserts or overwrites an artifact by id. A zero CreatedAt is
// stamped with the current time. Duplicate ids are last-write-wins.
func (r *Registry) Track(a Artifact) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.clock.Now()
	}
	a = a.clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.artifacts[a.ID]; ok {
		r.logger.Warn("tracking: duplicate artifact id, overwriting",
			"artifact_id", a.ID, "previous_kind", prev.Kind, "kind", a.Kind)
	}
	r.artifacts[a.ID] = a

	if r.journal != nil {
		if err := r.journal.SaveArtifact(a); err != nil {
			r.logger.Error("tracking: journal save failed", "artifact_id", a.ID, "error", err)
		}
	}
}

// Restore loads previously journaled artifacts without writing them back.
func (r *Registry) Restore(artifacts []Artifact) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range artifacts {
		r.artifacts[a.ID] = a.clone()
	}
	return len(artifacts)
}

// TrackChartResponse records a chart posted for a user.
func (r *Registry) TrackChartResponse(id, conversationID, userID, ticker string, cacheKeys []string, threadID string, ephemeral bool) {
	r.Track(Artifact{
		ID:        id,
		Kind:      KindChartResponse,
		Placement: Placement{ConversationID: conversationID, ThreadID: threadID},
		Owner:     userID,
		Ticker:    ticker,
		CacheKeys: cacheKeys,
		Ephemeral: ephemeral,
	})
}

// TrackButtonPrompt records a ticker prompt posted into a conversation.
func (r *Registry) TrackButtonPrompt(id, conversationID string, tickers []string) {
	r.Track(Artifact{
		ID:        id,
		Kind:      KindButtonPrompt,
		Placement: Placement{ConversationID: conversationID},
		Tickers:   tickers,
	})
}

// TrackThreadSystemNotice records the platform notice announcing a new thread.
func (r *Registry) TrackThreadSystemNotice(id, conversationID, threadID, userID string) {
	r.Track(Artifact{
		ID:        id,
		Kind:      KindThreadSystemNotice,
		Placement: Placement{ConversationID: conversationID, ThreadID: threadID},
		Owner:     userID,
	})
}

// Untrack removes an artifact. No-op when absent.
func (r *Registry) Untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.artifacts[id]; !ok {
		return
	}
	delete(r.artifacts, id)

	if r.journal != nil {
		if err := r.journal.DeleteArtifact(id); err != nil {
			r.logger.Error("tracking: journal delete failed", "artifact_id", id, "error", err)
		}
	}
}

// Get returns a copy of the artifact with the given id.
func (r *Registry) Get(id string) (Artifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[id]
	if !ok {
		return Artifact{}, false
	}
	return a.clone(), true
}

// Expired returns every artifact created strictly before now-retention.
// The result carries no ordering guarantee.
func (r *Registry) Expired(now time.Time, retention time.Duration) []Artifact {
	cutoff := now.Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []Artifact
	for _, a := range r.artifacts {
		if a.CreatedAt.Before(cutoff) {
			expired = append(expired, a.clone())
		}
	}
	return expired
}

// SweepStale forgets entries older than retention+margin that survived
// normal cleanup. It only drops local bookkeeping; nothing on the
// platform is touched.
func (r *Registry) SweepStale(now time.Time, retention, margin time.Duration) int {
	cutoff := now.Add(-(retention + margin))

	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	for id, a := range r.artifacts {
		if !a.CreatedAt.Before(cutoff) {
			continue
		}
		delete(r.artifacts, id)
		swept++
		if r.journal != nil {
			if err := r.journal.DeleteArtifact(id); err != nil {
				r.logger.Error("tracking: journal delete failed", "artifact_id", id, "error", err)
			}
		}
	}
	return swept
}

// HasLiveInThread reports whether owner still has a tracked artifact
// referencing threadID, ignoring the ids listed in exclude.
func (r *Registry) HasLiveInThread(owner, threadID string, exclude ...string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.artifacts {
		if a.Owner != owner || a.Placement.ThreadID != threadID {
			continue
		}
		if contains(exclude, id) {
			continue
		}
		return true
	}
	return false
}

// ReferencesThread reports whether any tracked artifact points at threadID.
func (r *Registry) ReferencesThread(threadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.artifacts {
		if a.Placement.ThreadID == threadID {
			return true
		}
	}
	return false
}

// Conversations returns the distinct conversation ids of tracked artifacts.
func (r *Registry) Conversations() []string {
	r.mu.Lock()
	seen := make(map[string]bool)
	for _, a := range r.artifacts {
		if a.Placement.ConversationID != "" {
			seen[a.Placement.ConversationID] = true
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns every tracked artifact, oldest first.
func (r *Registry) Snapshot() []Artifact {
	r.mu.Lock()
	out := make([]Artifact, 0, len(r.artifacts))
	for _, a := range r.artifacts {
		out = append(out, a.clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Stats returns total and per-kind counts.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{Total: len(r.artifacts), ByKind: make(map[Kind]int)}
	for _, a := range r.artifacts {
		stats.ByKind[a.Kind]++
	}
	return stats
}

// Len returns the number of tracked artifacts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.artifacts)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
