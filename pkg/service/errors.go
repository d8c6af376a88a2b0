package service

import (
	"fmt"

	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/pkg/errors"
)

// ErrAlreadyInitialized is returned by InitializeWorkflow when the envelope
// already has a workflow state. Callers treat it as benign.
var ErrAlreadyInitialized = errors.New("workflow already initialized")

// InvalidTransitionError reports an operation that is not legal from the
// workflow's current run state.
type InvalidTransitionError struct {
	From models.RunState
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s workflow in state '%s'", e.Op, e.From)
}

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
