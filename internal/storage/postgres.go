package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/MasumNishat/signing-sub000/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveEnvelope creates a new envelope (no recipients)
func (s *PostgresStore) SaveEnvelope(e models.Envelope) error {
	_, err := s.db.Exec("INSERT INTO envelopes (id, account_id, name, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)",
		e.ID, e.AccountID, e.Name, e.Status, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save envelope: %w", err)
	}
	return nil
}

// GetEnvelope retrieves an envelope by ID, without its recipients
func (s *PostgresStore) GetEnvelope(envelopeID string) (models.Envelope, error) {
	var e models.Envelope
	err := s.db.Get(&e, "SELECT id, account_id, name, status, created_at, updated_at FROM envelopes WHERE id = $1", envelopeID)
	if err == sql.ErrNoRows {
		return models.Envelope{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Envelope{}, err
	}
	return e, nil
}

func (s *PostgresStore) ListEnvelopes(accountID string) ([]models.Envelope, error) {
	envelopes := []models.Envelope{}
	query := "SELECT id, account_id, name, status, created_at, updated_at FROM envelopes WHERE account_id = $1 ORDER BY created_at DESC"
	err := s.db.Select(&envelopes, query, accountID)
	if err != nil {
		return nil, err
	}
	return envelopes, nil
}

// UpdateEnvelopeStatus updates the status of an envelope
func (s *PostgresStore) UpdateEnvelopeStatus(envelopeID string, status models.EnvelopeStatus) error {
	res, err := s.db.Exec("UPDATE envelopes SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2", status, envelopeID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// SaveRecipient creates a new recipient within an envelope. The position
// column auto-increments and fixes insertion order for tie-breaks.
func (s *PostgresStore) SaveRecipient(r models.Recipient) error {
	_, err := s.db.Exec("INSERT INTO recipients (id, envelope_id, recipient_type, name, email, routing_order, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		r.ID, r.EnvelopeID, r.Type, r.Name, r.Email, r.RoutingOrder, r.Status, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("save recipient: %w", err)
	}
	return nil
}

// GetRecipient retrieves a recipient by ID and envelope ID
func (s *PostgresStore) GetRecipient(envelopeID, recipientID string) (models.Recipient, error) {
	var r models.Recipient
	err := s.db.Get(&r, "SELECT * FROM recipients WHERE id = $1 AND envelope_id = $2", recipientID, envelopeID)
	if err == sql.ErrNoRows {
		return models.Recipient{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Recipient{}, err
	}
	return r, nil
}

// ListRecipients retrieves all recipients for an envelope, tier order first,
// insertion order within a tier
func (s *PostgresStore) ListRecipients(envelopeID string) ([]models.Recipient, error) {
	recipients := []models.Recipient{}
	err := s.db.Select(&recipients, "SELECT * FROM recipients WHERE envelope_id = $1 ORDER BY routing_order, position", envelopeID)
	if err != nil {
		return nil, fmt.Errorf("list recipients for envelope %s: %w", envelopeID, err)
	}
	return recipients, nil
}

// UpdateRecipientStatus updates the status of a recipient
func (s *PostgresStore) UpdateRecipientStatus(envelopeID, recipientID string, status models.RecipientStatus) error {
	res, err := s.db.Exec("UPDATE recipients SET status = $1 WHERE id = $2 AND envelope_id = $3", status, recipientID, envelopeID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// SaveWorkflowState creates the workflow state record for an envelope
func (s *PostgresStore) SaveWorkflowState(ws models.WorkflowState) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_states (envelope_id, routing_type, run_state, current_routing_order, scheduled_resume_at, pause_reason, cancel_reason, cancelled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ws.EnvelopeID, ws.RoutingType, ws.RunState, ws.CurrentRoutingOrder, ws.ScheduledResumeAt,
		ws.PauseReason, ws.CancelReason, ws.CancelledAt, ws.CreatedAt, ws.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save workflow state: %w", err)
	}
	return nil
}

// GetWorkflowState retrieves the workflow state for an envelope
func (s *PostgresStore) GetWorkflowState(envelopeID string) (models.WorkflowState, error) {
	return s.getWorkflowState(envelopeID, "")
}

// GetWorkflowStateForUpdate locks the record for the rest of the enclosing
// transaction, serializing concurrent transitions on one envelope.
func (s *PostgresStore) GetWorkflowStateForUpdate(envelopeID string) (models.WorkflowState, error) {
	return s.getWorkflowState(envelopeID, " FOR UPDATE")
}

func (s *PostgresStore) getWorkflowState(envelopeID, suffix string) (models.WorkflowState, error) {
	var ws models.WorkflowState
	err := s.db.Get(&ws, "SELECT * FROM workflow_states WHERE envelope_id = $1"+suffix, envelopeID)
	if err == sql.ErrNoRows {
		return models.WorkflowState{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowState{}, err
	}
	return ws, nil
}

// UpdateWorkflowState persists every mutable field of the workflow state
func (s *PostgresStore) UpdateWorkflowState(ws models.WorkflowState) error {
	res, err := s.db.Exec(`
		UPDATE workflow_states
		SET routing_type = $1,
		run_state = $2,
		current_routing_order = $3,
		scheduled_resume_at = $4,
		pause_reason = $5,
		cancel_reason = $6,
		cancelled_at = $7,
		updated_at = CURRENT_TIMESTAMP
		WHERE envelope_id = $8`,
		ws.RoutingType, ws.RunState, ws.CurrentRoutingOrder, ws.ScheduledResumeAt,
		ws.PauseReason, ws.CancelReason, ws.CancelledAt, ws.EnvelopeID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// ListDueWorkflowStates retrieves non-terminal states whose scheduled time
// has elapsed
func (s *PostgresStore) ListDueWorkflowStates(now time.Time) ([]models.WorkflowState, error) {
	states := []models.WorkflowState{}
	err := s.db.Select(&states, `
		SELECT * FROM workflow_states
		WHERE scheduled_resume_at IS NOT NULL
		AND scheduled_resume_at <= $1
		AND run_state IN ('not_started', 'paused')
		ORDER BY scheduled_resume_at`, now)
	if err != nil {
		return nil, err
	}
	return states, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
