// Package threads keeps one side-conversation thread per user.
//
// Every operation that reads or replaces a user's handle runs under that
// user's lock. Callers that must post into a thread and register the
// result before cleanup can observe the thread use WithThread, which
// holds the lock for the whole sequence.
package threads

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/clock"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
)

// maxNameLen is the platform's thread name limit.
const maxNameLen = 100

// Handle is the directory's record of a user's thread.
type Handle struct {
	UserID         string    `json:"user_id"`
	ThreadID       string    `json:"thread_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Context describes where a new thread should be opened.
type Context struct {
	ConversationID string
	UserName       string
}

// Result is returned by GetOrCreate.
type Result struct {
	Handle     Handle
	CreatedNew bool

	// NoticeID is the platform system notice announcing a newly created
	// thread. Empty when the thread was reused or no notice was posted.
	NoticeID string
}

// Config holds directory settings.
type Config struct {
	NamePrefix   string
	ArchiveAfter time.Duration
}

type entry struct {
	handle Handle
	timer  *clock.Timer
}

// userLock serializes work on one user's handle. refs counts holders and
// waiters; the lock leaves the directory when it drops to zero.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// Directory maps user ids to thread handles.
type Directory struct {
	platform platform.Platform
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config

	mu      sync.Mutex
	entries map[string]*entry
	locks   map[string]*userLock
}

// New creates an empty directory.
func New(p platform.Platform, cfg Config, clk clock.Clock, logger *slog.Logger) *Directory {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "Charts"
	}
	if cfg.ArchiveAfter <= 0 {
		cfg.ArchiveAfter = time.Hour
	}
	return &Directory{
		platform: p,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
		entries:  make(map[string]*entry),
		locks:    make(map[string]*userLock),
	}
}

// Prefix returns the thread name prefix this directory creates threads with.
func (d *Directory) Prefix() string { return d.cfg.NamePrefix }

// ThreadName builds the name of a bot thread for userName.
func ThreadName(prefix, userName string) string {
	name := prefix + " - " + strings.TrimSpace(userName)
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

// IsBotThread reports whether name follows the bot thread naming convention.
func IsBotThread(prefix, name string) bool {
	return strings.HasPrefix(name, prefix+" - ")
}

// lockUser takes the user's lock and returns its release.
func (d *Directory) lockUser(userID string) func() {
	d.mu.Lock()
	l, ok := d.locks[userID]
	if !ok {
		l = &userLock{}
		d.locks[userID] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(d.locks, userID)
		}
		d.mu.Unlock()
	}
}

// GetOrCreate returns the user's live thread, creating one when the user
// has none or the existing one no longer answers a fetch.
func (d *Directory) GetOrCreate(ctx context.Context, userID string, tc Context) (Result, error) {
	var res Result
	err := d.WithThread(ctx, userID, tc, func(r Result) error {
		res = r
		return nil
	})
	return res, err
}

// WithThread resolves the user's thread like GetOrCreate and calls fn
// while still holding the user's lock. Removal of the user's handle waits
// until fn returns.
func (d *Directory) WithThread(ctx context.Context, userID string, tc Context, fn func(Result) error) error {
	defer d.lockUser(userID)()

	res, err := d.getOrCreateLocked(ctx, userID, tc)
	if err != nil {
		return err
	}
	return fn(res)
}

func (d *Directory) getOrCreateLocked(ctx context.Context, userID string, tc Context) (Result, error) {
	if h, ok := d.Lookup(userID); ok {
		_, err := d.platform.FetchThread(ctx, h.ThreadID)
		if err == nil {
			return Result{Handle: h}, nil
		}
		d.logger.Info("threads: discarding stale handle",
			"user_id", userID, "thread_id", h.ThreadID, "error", err)
		d.drop(userID, h.ThreadID)
	}

	if tc.ConversationID == "" {
		return Result{}, fmt.Errorf("create thread for %s: no conversation", userID)
	}
	name := ThreadName(d.cfg.NamePrefix, tc.UserName)
	minutes := int(d.cfg.ArchiveAfter / time.Minute)
	th, err := d.platform.CreateThread(ctx, tc.ConversationID, name, minutes)
	if err != nil {
		return Result{}, fmt.Errorf("create thread for %s: %w", userID, err)
	}

	h := Handle{
		UserID:         userID,
		ThreadID:       th.ID,
		ConversationID: tc.ConversationID,
		CreatedAt:      d.clock.Now(),
	}
	d.put(h)
	d.logger.Info("threads: created", "user_id", userID, "thread_id", th.ID, "name", name)
	return Result{Handle: h, CreatedNew: true, NoticeID: th.NoticeID}, nil
}

func (d *Directory) put(h Handle) {
	threadID, userID := h.ThreadID, h.UserID
	timer := d.clock.AfterFunc(d.cfg.ArchiveAfter, func() {
		if d.drop(userID, threadID) {
			d.logger.Debug("threads: handle auto-expired", "user_id", userID, "thread_id", threadID)
		}
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.entries[userID]; ok {
		prev.timer.Stop()
	}
	d.entries[userID] = &entry{handle: h, timer: timer}
}

// drop removes the user's handle when it still points at threadID. An
// empty threadID matches any handle.
func (d *Directory) drop(userID, threadID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[userID]
	if !ok {
		return false
	}
	if threadID != "" && e.handle.ThreadID != threadID {
		return false
	}
	e.timer.Stop()
	delete(d.entries, userID)
	return true
}

// Lookup returns the user's handle without probing the platform.
func (d *Directory) Lookup(userID string) (Handle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[userID]
	if !ok {
		return Handle{}, false
	}
	return e.handle, true
}

// Tracks reports whether any handle points at threadID.
func (d *Directory) Tracks(threadID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.handle.ThreadID == threadID {
			return true
		}
	}
	return false
}

// Remove drops the user's handle unconditionally.
func (d *Directory) Remove(userID string) {
	defer d.lockUser(userID)()
	d.drop(userID, "")
}

// RemoveIfSafe drops the user's handle only when hasLive reports no live
// artifacts for the user. hasLive is evaluated under the user's lock.
func (d *Directory) RemoveIfSafe(userID string, hasLive func(userID string) bool) bool {
	defer d.lockUser(userID)()

	if hasLive(userID) {
		return false
	}
	d.drop(userID, "")
	return true
}

// ReleaseThread is the thread-scoped form of RemoveIfSafe. It reports
// whether threadID is safe to delete: hasLive found nothing for the user
// in that thread. The handle is dropped only if it points at threadID.
func (d *Directory) ReleaseThread(userID, threadID string, hasLive func(userID, threadID string) bool) bool {
	defer d.lockUser(userID)()

	if hasLive(userID, threadID) {
		return false
	}
	d.drop(userID, threadID)
	return true
}

// Len returns the number of handles.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Handles returns a copy of every handle.
func (d *Directory) Handles() []Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Handle, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e.handle)
	}
	return out
}

// Close stops all auto-expiry timers.
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		e.timer.Stop()
	}
}
