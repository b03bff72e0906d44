package workflow

import (
	"errors"
	"fmt"

	"pressroom/internal/model"
)

// ErrNotFound is returned when the referenced email record does not exist.
var ErrNotFound = errors.New("email record not found")

// InvalidTransitionError is returned when an action's precondition stage does
// not match the record's current stage, including the case where a concurrent
// action won the race. Current carries the actual stage so the caller can
// resynchronize.
type InvalidTransitionError struct {
	Action   string
	Current  model.WorkflowStage
	Required string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("action %q requires stage %s, record is in stage %q", e.Action, e.Required, e.Current)
}

type ForbiddenError struct {
	UserID string
	Action string
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %s may not perform %q: %s", e.UserID, e.Action, e.Reason)
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CollaboratorError is a fault from an external adapter (AI generator, CMS).
// The stage transition is never committed when one of these occurs.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// StoreError is a fault from the persistence layer.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
