package retention

import (
	"context"
	"sort"

	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
	"github.com/greenghost107/TradersMind-chartBot/internal/threads"
)

// activityScan is how many recent thread messages are inspected for
// non-system activity.
const activityScan = 50

// sweepOrphans deletes bot threads nothing refers to any more: threads
// left behind when the process died between creating a thread and
// tracking the first artifact in it.
func (e *Engine) sweepOrphans(ctx context.Context) int {
	if e.threads == nil {
		return 0
	}

	removed := 0
	for _, conv := range e.sweepConversations() {
		candidates, err := e.listThreads(ctx, conv)
		if err != nil {
			e.logger.Warn("retention: orphan sweep could not list threads",
				"conversation_id", conv, "error", err)
			continue
		}
		for _, th := range candidates {
			if !e.isOrphan(ctx, th) {
				continue
			}
			if e.deleteOrphan(ctx, th) {
				removed++
			}
		}
	}
	if removed > 0 {
		e.logger.Info("retention: orphan threads removed", "count", removed)
	}
	return removed
}

// sweepConversations is the configured conversation set plus every
// conversation holding a tracked artifact or a thread handle.
func (e *Engine) sweepConversations() []string {
	seen := make(map[string]bool)
	for _, id := range e.opts.Conversations {
		seen[id] = true
	}
	for _, id := range e.registry.Conversations() {
		seen[id] = true
	}
	for _, h := range e.threads.Handles() {
		seen[h.ConversationID] = true
	}
	delete(seen, "")

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) listThreads(ctx context.Context, conv string) ([]platform.Thread, error) {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	active, err := e.platform.ListActiveThreads(ctx, conv)
	if err != nil {
		return nil, err
	}
	archived, err := e.platform.ListArchivedThreads(ctx, conv)
	if err != nil {
		return nil, err
	}
	return append(active, archived...), nil
}

// isOrphan reports whether th is an archived bot thread with no tracked
// reference, no live handle and no recent human activity. Threads that
// are still active are left for a later sweep.
func (e *Engine) isOrphan(ctx context.Context, th platform.Thread) bool {
	if !th.Archived || !threads.IsBotThread(e.threads.Prefix(), th.Name) {
		return false
	}
	if e.opts.BotUserID != "" && th.OwnerID != e.opts.BotUserID {
		return false
	}
	if e.registry.ReferencesThread(th.ID) || e.threads.Tracks(th.ID) {
		return false
	}
	return !e.recentlyActive(ctx, th.ID)
}

// recentlyActive reports whether a non-system message was posted in the
// thread within the retention window. Errors count as active so an
// unreadable thread is left alone.
func (e *Engine) recentlyActive(ctx context.Context, threadID string) bool {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	msgs, err := e.platform.RecentMessages(ctx, threadID, activityScan)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return false
		}
		e.logger.Debug("retention: orphan activity check failed", "thread_id", threadID, "error", err)
		return true
	}

	cutoff := e.clock.Now().Add(-e.opts.Retention)
	for _, m := range msgs {
		if m.Type.System() {
			continue
		}
		if m.Timestamp.After(cutoff) {
			return true
		}
	}
	return false
}

func (e *Engine) deleteOrphan(ctx context.Context, th platform.Thread) bool {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	step := fromError(StepReleaseThread, e.platform.DeleteThread(ctx, th.ID))
	switch step.Outcome {
	case OK:
		e.logger.Info("retention: deleted orphan thread",
			"thread_id", th.ID, "name", th.Name, "archived", th.Archived)
		return step.Reason == ""
	default:
		e.logger.Warn("retention: orphan thread delete failed",
			"thread_id", th.ID, "outcome", step.Outcome, "reason", step.Reason)
		return false
	}
}
