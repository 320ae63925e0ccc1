// Package download fetches the .lua/.manifest payload of an AppID by
// walking an ordered list of source strategies under one shared deadline,
// then hands the payload to placement.
package download

import (
	"context"
	"errors"
	"time"
)

// ErrNoContent means a strategy found nothing for the AppID and the
// cascade should move on.
var ErrNoContent = errors.New("no content from this source")

// Request is the input of one strategy attempt.
type Request struct {
	AppID string
	// WorkDir is a scratch directory owned by the driver and removed after the run.
	WorkDir string
	// Progress, when set, receives streamed byte counts.
	Progress func(source string, read, total int64)
}

// Attempt is the outcome of a strategy. Path is a file or directory ready
// for placement. Available may be set even when the attempt failed.
type Attempt struct {
	Source    string
	Path      string
	Available []string
}

// Strategy is one source in the cascade.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) (*Attempt, error)
}

// Stage outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeNoContent = "no_content"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeSkipped   = "skipped"
)

// StageReport records how one strategy fared.
type StageReport struct {
	Stage      string        `json:"stage"`
	Outcome    string        `json:"outcome"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

func outcomeOf(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, ErrNoContent):
		return OutcomeNoContent
	default:
		return OutcomeFailed
	}
}
