package tracking

import (
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
)

// Kind identifies what sort of bot-emitted message an artifact is.
type Kind string

const (
	KindChartResponse      Kind = "chart_response"
	KindButtonPrompt       Kind = "button_prompt"
	KindThreadSystemNotice Kind = "thread_system_notice"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChartResponse, KindButtonPrompt, KindThreadSystemNotice:
		return true
	}
	return false
}

// Placement is where an artifact lives on the platform.
type Placement struct {
	ConversationID string `json:"conversation_id"`
	ThreadID       string `json:"thread_id,omitempty"`
}

// Artifact is one bot-created side effect that must eventually be deleted.
type Artifact struct {
	// ID is the platform message id and the registry key.
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Placement Placement `json:"placement"`

	// Owner is the user who triggered creation. Empty for prompts.
	Owner string `json:"owner,omitempty"`

	Ticker  string   `json:"ticker,omitempty"`
	Tickers []string `json:"tickers,omitempty"`

	// CacheKeys are released from the caches when the artifact is cleaned up.
	CacheKeys []string `json:"cache_keys,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Ephemeral artifacts expire on the platform by themselves and are
	// never targeted by an explicit delete.
	Ephemeral bool `json:"ephemeral,omitempty"`
}

// Channel returns the id of the channel holding the message. Chart
// responses posted into a thread live in the thread; notices live in the
// parent conversation and only point at the thread.
func (a Artifact) Channel() string {
	if a.Kind == KindChartResponse && a.Placement.ThreadID != "" {
		return a.Placement.ThreadID
	}
	return a.Placement.ConversationID
}

// Validate checks the fields cleanup relies on. Cleanup still proceeds
// with whatever is present when this fails; the error is only logged.
func (a Artifact) Validate() error {
	if a.ID == "" {
		return errors.NewValidation("artifact id is empty")
	}
	if !a.Kind.Valid() {
		return errors.NewValidation("unknown artifact kind: " + string(a.Kind))
	}
	if a.Placement.ConversationID == "" && a.Placement.ThreadID == "" {
		return errors.NewValidation("artifact " + a.ID + " has no placement")
	}
	switch a.Kind {
	case KindChartResponse:
		if len(a.CacheKeys) == 0 {
			return errors.NewValidation("chart response " + a.ID + " has no cache keys")
		}
		if a.Owner == "" {
			return errors.NewValidation("chart response " + a.ID + " has no owner")
		}
	case KindThreadSystemNotice:
		if a.Placement.ThreadID == "" {
			return errors.NewValidation("thread notice " + a.ID + " has no thread id")
		}
	}
	return nil
}

// clone returns a copy whose slices do not alias the original.
func (a Artifact) clone() Artifact {
	if a.Tickers != nil {
		a.Tickers = append([]string(nil), a.Tickers...)
	}
	if a.CacheKeys != nil {
		a.CacheKeys = append([]string(nil), a.CacheKeys...)
	}
	return a
}
