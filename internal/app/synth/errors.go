package synth

import (
	"errors"
	"fmt"
)

var (
	ErrBudgetQueryFailed       = errors.New("budget query failed")
	ErrLowBudget               = errors.New("external budget below threshold")
	ErrExternalSynthesisFailed = errors.New("external synthesis failed")
	ErrLocalSynthesisFailed    = errors.New("local synthesis failed")
)

// ControlError is a failed start or stop of the local engine. The engine's
// last-known state is left untouched when it is returned.
type ControlError struct {
	Action    string
	Container string
	Err       error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("failed to %s local engine %s: %v", e.Action, e.Container, e.Err)
}

func (e *ControlError) Unwrap() error {
	return e.Err
}

// SynthesisError means neither tier produced audio.
type SynthesisError struct {
	External error
	Local    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed on both tiers: external: %v; local: %v", e.External, e.Local)
}

func (e *SynthesisError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.External != nil {
		errs = append(errs, e.External)
	}
	if e.Local != nil {
		errs = append(errs, e.Local)
	}
	return errs
}
