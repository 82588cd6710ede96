package retention

import (
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

// Outcome classifies how one cleanup step ended.
type Outcome int

const (
	// OK means the step did what it set out to do, including finding the
	// target already gone.
	OK Outcome = iota
	// Recoverable means the step failed in a way a later attempt or the
	// orphan sweep can still fix.
	Recoverable
	// Fatal means the step can never succeed for this artifact, e.g. a
	// permission error. Cleanup still proceeds.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Recoverable:
		return "recoverable"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// MarshalText renders the outcome by name in JSON.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Step names a stage of per-artifact cleanup.
type Step string

const (
	StepDeleteMessage Step = "delete_message"
	StepReleaseCache  Step = "release_cache"
	StepReleaseThread Step = "release_thread"
	StepValidate      Step = "validate"
	StepRecover       Step = "recover"
)

// StepResult is the outcome of one step plus the reason for anything
// other than OK.
type StepResult struct {
	Step    Step    `json:"step"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

func ok(step Step) StepResult { return StepResult{Step: step, Outcome: OK} }

// fromError maps a platform error onto a step outcome. Not-found is
// success, forbidden can never succeed, anything else may.
func fromError(step Step, err error) StepResult {
	switch errors.Classify(err) {
	case "":
		return ok(step)
	case errors.ErrNotFound:
		return StepResult{Step: step, Outcome: OK, Reason: "already gone"}
	case errors.ErrForbidden:
		return StepResult{Step: step, Outcome: Fatal, Reason: err.Error()}
	default:
		return StepResult{Step: step, Outcome: Recoverable, Reason: err.Error()}
	}
}

// ArtifactResult records how cleanup of one artifact went.
type ArtifactResult struct {
	ArtifactID string        `json:"artifact_id"`
	Kind       tracking.Kind `json:"kind"`
	Steps      []StepResult  `json:"steps"`

	MessageDeleted bool `json:"message_deleted"`
	ReleaseCalls   int  `json:"release_calls"`
	CacheReleased  int  `json:"cache_released"`
	ThreadRemoved  bool `json:"thread_removed"`
}

// Failed reports whether any step ended in something other than OK.
func (r ArtifactResult) Failed() bool {
	for _, s := range r.Steps {
		if s.Outcome != OK {
			return true
		}
	}
	return false
}

func (r *ArtifactResult) add(s StepResult) { r.Steps = append(r.Steps, s) }

// TickSummary aggregates one cleanup run.
type TickSummary struct {
	TickID     string        `json:"tick_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Expired    int           `json:"expired"`
	Deleted    int           `json:"deleted"`
	Errors     int           `json:"errors"`
	Fatal      int           `json:"fatal"`
	Skipped    int           `json:"skipped_ephemeral"`
	Untracked  int           `json:"untracked"`
	Swept      int           `json:"tracking_swept"`
	Threads    int           `json:"threads_removed"`
	Orphans    int           `json:"orphans_removed"`
	OrphanRun  bool          `json:"orphan_sweep"`
	Panicked   bool          `json:"panicked,omitempty"`

	Artifacts []ArtifactResult `json:"artifacts,omitempty"`

	// ReleaseCalls counts cache release attempts; CacheReleased counts
	// the ones that found an entry.
	ReleaseCalls  int `json:"release_calls"`
	CacheReleased int `json:"cache_released"`
}

func (s *TickSummary) add(r ArtifactResult) {
	s.Artifacts = append(s.Artifacts, r)
	s.Untracked++
	s.ReleaseCalls += r.ReleaseCalls
	s.CacheReleased += r.CacheReleased
	if r.MessageDeleted {
		s.Deleted++
	}
	if r.ThreadRemoved {
		s.Threads++
	}
	for _, step := range r.Steps {
		switch step.Outcome {
		case Recoverable:
			s.Errors++
		case Fatal:
			s.Errors++
			s.Fatal++
		}
	}
}
