package models

import "time"

type RoutingType string

const (
	SequentialRoutingType RoutingType = "sequential"
	ParallelRoutingType   RoutingType = "parallel"
	MixedRoutingType      RoutingType = "mixed"
)

// ValidRoutingType reports whether t is one of the known routing types.
func ValidRoutingType(t RoutingType) bool {
	return t == SequentialRoutingType || t == ParallelRoutingType || t == MixedRoutingType
}

type RunState string

const (
	NotStartedRunState RunState = "not_started"
	RunningRunState    RunState = "running"
	PausedRunState     RunState = "paused"
	CancelledRunState  RunState = "cancelled"
	CompletedRunState  RunState = "completed"
)

// Terminal reports whether the workflow accepts no further transitions.
func (s RunState) Terminal() bool {
	return s == CancelledRunState || s == CompletedRunState
}

// WorkflowState holds the routing configuration and execution state of one
// envelope's signing workflow. One record per envelope, created lazily on the
// first initialize/start call and never deleted.
type WorkflowState struct {
	EnvelopeID          string      `json:"envelope_id" db:"envelope_id"`
	RoutingType         RoutingType `json:"routing_type" db:"routing_type"`
	RunState            RunState    `json:"status" db:"run_state"`
	CurrentRoutingOrder int         `json:"current_routing_order" db:"current_routing_order"` // 0 means not yet started
	ScheduledResumeAt   *time.Time  `json:"scheduled_resume_at,omitempty" db:"scheduled_resume_at"`
	PauseReason         string      `json:"pause_reason,omitempty" db:"pause_reason"`
	CancelReason        string      `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CancelledAt         *time.Time  `json:"cancelled_at,omitempty" db:"cancelled_at"` // Set exactly once, on cancellation
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
}

// DefaultWorkflowState is the status reported for an envelope whose workflow
// was never initialized.
func DefaultWorkflowState(envelopeID string) WorkflowState {
	return WorkflowState{
		EnvelopeID:          envelopeID,
		RoutingType:         SequentialRoutingType,
		RunState:            NotStartedRunState,
		CurrentRoutingOrder: 0,
	}
}
