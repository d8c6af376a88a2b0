package storage

import (
	"time"

	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the storage operations for the envelope workflow service.
type Store interface {
	// Transaction control. Begin returns a Store scoped to one transaction;
	// each workflow transition runs entirely inside one.
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Envelope operations
	SaveEnvelope(e models.Envelope) error
	GetEnvelope(envelopeID string) (models.Envelope, error)
	ListEnvelopes(accountID string) ([]models.Envelope, error)
	UpdateEnvelopeStatus(envelopeID string, status models.EnvelopeStatus) error

	// Recipient operations
	SaveRecipient(r models.Recipient) error
	GetRecipient(envelopeID, recipientID string) (models.Recipient, error)
	ListRecipients(envelopeID string) ([]models.Recipient, error)
	UpdateRecipientStatus(envelopeID, recipientID string, status models.RecipientStatus) error

	// Workflow state operations
	SaveWorkflowState(ws models.WorkflowState) error
	GetWorkflowState(envelopeID string) (models.WorkflowState, error)
	// GetWorkflowStateForUpdate locks the record for the duration of the
	// transaction so concurrent transitions on one envelope serialize.
	GetWorkflowStateForUpdate(envelopeID string) (models.WorkflowState, error)
	UpdateWorkflowState(ws models.WorkflowState) error
	// ListDueWorkflowStates returns states whose scheduled_resume_at has
	// elapsed, for the scheduler loop.
	ListDueWorkflowStates(now time.Time) ([]models.WorkflowState, error)
}
