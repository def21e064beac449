package compose

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidJob  = errors.New("invalid composition job")
	ErrNoSlides    = errors.New("no usable image slides")
	ErrNoNarration = errors.New("no usable narration segments")
	ErrEncode      = errors.New("encode failed")
)

// FatalError aborts the current topic. Err wraps one of the sentinels above.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("compose %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(stage string, err error) *FatalError {
	return &FatalError{Stage: stage, Err: err}
}

type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// StageReport records how one stage of a run ended
type StageReport struct {
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
}

type reports []StageReport

func (r *reports) add(name string, outcome Outcome, format string, args ...any) {
	*r = append(*r, StageReport{Name: name, Outcome: outcome, Detail: fmt.Sprintf(format, args...)})
}

// Degraded lists the stages that finished without their full output
func Degraded(stages []StageReport) []string {
	var names []string
	for _, s := range stages {
		if s.Outcome == OutcomeDegraded || s.Outcome == OutcomeSkipped {
			names = append(names, s.Name)
		}
	}
	return names
}
