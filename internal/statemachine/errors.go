package statemachine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyStateName       = errors.New("state name is required")
	ErrDuplicateState       = errors.New("a state with this name already exists")
	ErrStateNotFound        = errors.New("state not found")
	ErrStateInUse           = errors.New("state is referenced by a transition")
	ErrInitialStateDeletion = errors.New("state is the configured initial state")
	ErrInvalidCriticality   = errors.New("criticality must be low, medium or high")
	ErrUnknownFromState     = errors.New("transition source state does not exist")
	ErrUnknownToState       = errors.New("transition target state does not exist")
	ErrDuplicateTransition  = errors.New("an identical transition already exists")
	ErrTransitionNotFound   = errors.New("transition not found")
	ErrMissingInitialState  = errors.New("initial state is required")
	ErrInitialStateUnknown  = errors.New("initial state does not match any state")
	ErrNoStates             = errors.New("configuration must define at least one state")
)

// ValidationError is a single rule violation found in a configuration.
type ValidationError struct {
	Field  string // e.g. "states[2].name", "transitions[0].toState"
	Reason error
	Value  string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %v (%q)", e.Field, e.Reason, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// AggregateError collects every violation found while validating a configuration.
type AggregateError struct {
	Errors []*ValidationError
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, err.Error())
	}
	return b.String()
}

// Unwrap exposes the individual violations to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err
	}
	return out
}

// ReferenceError explains why a state cannot be deleted.
type ReferenceError struct {
	State       string
	Reason      error
	Transitions []int // indexes of transitions that reference State
}

func (e *ReferenceError) Error() string {
	if errors.Is(e.Reason, ErrInitialStateDeletion) {
		return fmt.Sprintf("cannot delete state %q: it is the initial state; choose another initial state first", e.State)
	}
	return fmt.Sprintf("cannot delete state %q: referenced by %d transition(s); remove them first", e.State, len(e.Transitions))
}

func (e *ReferenceError) Unwrap() error { return e.Reason }

// IsValidation reports whether err came from a configuration rule rather than I/O.
func IsValidation(err error) bool {
	var agg *AggregateError
	var ve *ValidationError
	var re *ReferenceError
	return errors.As(err, &agg) || errors.As(err, &ve) || errors.As(err, &re)
}
