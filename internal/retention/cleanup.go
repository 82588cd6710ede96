package retention

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

// cleanupArtifact runs every cleanup step for one artifact. Each step is
// attempted whatever the previous one returned, and the artifact is
// untracked last in all cases.
func (e *Engine) cleanupArtifact(ctx context.Context, a tracking.Artifact) (res ArtifactResult) {
	res = ArtifactResult{ArtifactID: a.ID, Kind: a.Kind}
	log := e.logger.With("artifact_id", a.ID, "kind", a.Kind)

	defer func() {
		if r := recover(); r != nil {
			res.add(StepResult{Step: StepRecover, Outcome: Fatal, Reason: fmt.Sprintf("panic: %v", r)})
			log.Error("retention: artifact cleanup panicked", "panic", fmt.Sprint(r))
		}
		e.registry.Untrack(a.ID)
	}()

	if err := a.Validate(); err != nil {
		res.add(StepResult{Step: StepValidate, Outcome: Recoverable, Reason: err.Error()})
		log.Warn("retention: malformed tracked artifact, continuing", "error", err)
	}

	if !a.Ephemeral {
		step, deleted := e.deleteMessage(ctx, a)
		res.add(step)
		res.MessageDeleted = deleted
		e.logStep(log, step)
	}

	e.releaseCache(a, &res)

	if a.Owner != "" && a.Placement.ThreadID != "" {
		step, removed := e.releaseThread(ctx, a)
		res.add(step)
		res.ThreadRemoved = removed
		e.logStep(log, step)
	}
	return res
}

// deleteMessage resolves the channel, fetches the message and deletes it.
// A channel or message that is already gone counts as success.
func (e *Engine) deleteMessage(ctx context.Context, a tracking.Artifact) (StepResult, bool) {
	channel := a.Channel()
	if channel == "" {
		return StepResult{Step: StepDeleteMessage, Outcome: Fatal, Reason: "no channel to delete from"}, false
	}

	ctx, cancel := e.callContext(ctx)
	defer cancel()

	if _, err := e.platform.FetchConversation(ctx, channel); err != nil {
		return fromError(StepDeleteMessage, err), false
	}
	if _, err := e.platform.FetchMessage(ctx, channel, a.ID); err != nil {
		return fromError(StepDeleteMessage, err), false
	}
	err := e.platform.DeleteMessage(ctx, channel, a.ID)
	return fromError(StepDeleteMessage, err), err == nil
}

// releaseCache hands each key to the cache that owns it.
func (e *Engine) releaseCache(a tracking.Artifact, res *ArtifactResult) {
	var unowned []string
	for _, key := range a.CacheKeys {
		routed := false
		for _, c := range e.caches {
			if !c.Owns(key) {
				continue
			}
			routed = true
			res.ReleaseCalls++
			if c.Release(key) {
				res.CacheReleased++
			}
			break
		}
		if !routed {
			unowned = append(unowned, key)
		}
	}

	if len(unowned) > 0 {
		err := errors.NewValidation(fmt.Sprintf("no cache owns keys %v", unowned))
		res.add(StepResult{Step: StepReleaseCache, Outcome: Recoverable, Reason: err.Error()})
		e.logger.Warn("retention: unroutable cache keys", "artifact_id", a.ID, "keys", unowned)
		return
	}
	res.add(ok(StepReleaseCache))
	if res.ReleaseCalls > 0 {
		e.logger.Debug("retention: released cache entries",
			"artifact_id", a.ID, "calls", res.ReleaseCalls, "released", res.CacheReleased)
	}
}

// releaseThread drops the owner's thread handle and deletes the thread
// once no other artifact of that owner references it. The check runs
// under the directory's user lock, so an artifact tracked by a concurrent
// chart request keeps the thread alive.
func (e *Engine) releaseThread(ctx context.Context, a tracking.Artifact) (StepResult, bool) {
	threadID := a.Placement.ThreadID
	if e.threads == nil {
		return ok(StepReleaseThread), false
	}

	safe := e.threads.ReleaseThread(a.Owner, threadID, func(owner, tid string) bool {
		return e.registry.HasLiveInThread(owner, tid, a.ID)
	})
	if !safe {
		return StepResult{Step: StepReleaseThread, Outcome: OK, Reason: "thread still in use"}, false
	}

	ctx, cancel := e.callContext(ctx)
	defer cancel()
	err := e.platform.DeleteThread(ctx, threadID)
	return fromError(StepReleaseThread, err), err == nil
}

func (e *Engine) logStep(log *slog.Logger, s StepResult) {
	switch s.Outcome {
	case Fatal:
		log.Warn("retention: step failed permanently, not retrying", "step", s.Step, "reason", s.Reason)
	case Recoverable:
		log.Warn("retention: step failed", "step", s.Step, "reason", s.Reason)
	}
}
