package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/pkg/errors"
)

// mockData is the shared in-memory state behind a mockStore and all
// transactions handed out by Begin.
type mockData struct {
	envelopes      []models.Envelope
	recipients     []models.Recipient
	workflowStates []models.WorkflowState
	nextPosition   int
}

// mockStore implements Store with in-memory storage. Begin hands out a view
// holding the store mutex, so concurrent transitions serialize the same way
// the row lock serializes them in Postgres.
type mockStore struct {
	mu        *sync.Mutex
	data      *mockData
	tx        bool
	committed bool
}

func NewMockStore() Store {
	return &mockStore{mu: &sync.Mutex{}, data: &mockData{}}
}

func (m *mockStore) Begin() (Store, error) {
	if m.tx {
		return nil, errors.New("transaction already in progress")
	}
	m.mu.Lock()
	return &mockStore{mu: m.mu, data: m.data, tx: true}, nil
}

func (m *mockStore) Commit() error {
	if !m.tx {
		return errors.New("cannot commit: not a transaction")
	}
	if m.committed {
		return errors.New("already committed")
	}
	m.committed = true
	m.mu.Unlock()
	return nil
}

func (m *mockStore) Rollback() error {
	if !m.tx {
		return errors.New("cannot rollback: not a transaction")
	}
	if m.committed {
		return errors.New("cannot rollback committed transaction")
	}
	// No undo: callers validate before mutating, so a rolled-back
	// transaction has nothing to discard.
	m.committed = true
	m.mu.Unlock()
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

// lock acquires the store mutex for a standalone (non-transactional) call.
func (m *mockStore) lock() func() {
	if m.tx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *mockStore) SaveEnvelope(e models.Envelope) error {
	defer m.lock()()
	for _, existing := range m.data.envelopes {
		if existing.ID == e.ID {
			return errors.New("envelope already exists")
		}
	}
	m.data.envelopes = append(m.data.envelopes, e)
	return nil
}

func (m *mockStore) GetEnvelope(envelopeID string) (models.Envelope, error) {
	defer m.lock()()
	for _, e := range m.data.envelopes {
		if e.ID == envelopeID {
			return e, nil
		}
	}
	return models.Envelope{}, ErrNotFound
}

func (m *mockStore) ListEnvelopes(accountID string) ([]models.Envelope, error) {
	defer m.lock()()
	envelopes := []models.Envelope{}
	for _, e := range m.data.envelopes {
		if e.AccountID == accountID {
			envelopes = append(envelopes, e)
		}
	}
	return envelopes, nil
}

func (m *mockStore) UpdateEnvelopeStatus(envelopeID string, status models.EnvelopeStatus) error {
	defer m.lock()()
	for i, e := range m.data.envelopes {
		if e.ID == envelopeID {
			m.data.envelopes[i].Status = status
			m.data.envelopes[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveRecipient(r models.Recipient) error {
	defer m.lock()()
	for _, existing := range m.data.recipients {
		if existing.ID == r.ID && existing.EnvelopeID == r.EnvelopeID {
			return errors.New("recipient already exists")
		}
	}
	m.data.nextPosition++
	r.Position = m.data.nextPosition
	m.data.recipients = append(m.data.recipients, r)
	return nil
}

func (m *mockStore) GetRecipient(envelopeID, recipientID string) (models.Recipient, error) {
	defer m.lock()()
	for _, r := range m.data.recipients {
		if r.ID == recipientID && r.EnvelopeID == envelopeID {
			return r, nil
		}
	}
	return models.Recipient{}, ErrNotFound
}

func (m *mockStore) ListRecipients(envelopeID string) ([]models.Recipient, error) {
	defer m.lock()()
	var recipients []models.Recipient
	for _, r := range m.data.recipients {
		if r.EnvelopeID == envelopeID {
			recipients = append(recipients, r)
		}
	}
	sort.SliceStable(recipients, func(i, j int) bool {
		if recipients[i].RoutingOrder != recipients[j].RoutingOrder {
			return recipients[i].RoutingOrder < recipients[j].RoutingOrder
		}
		return recipients[i].Position < recipients[j].Position
	})
	return recipients, nil
}

func (m *mockStore) UpdateRecipientStatus(envelopeID, recipientID string, status models.RecipientStatus) error {
	defer m.lock()()
	for i, r := range m.data.recipients {
		if r.ID == recipientID && r.EnvelopeID == envelopeID {
			m.data.recipients[i].Status = status
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveWorkflowState(ws models.WorkflowState) error {
	defer m.lock()()
	for _, existing := range m.data.workflowStates {
		if existing.EnvelopeID == ws.EnvelopeID {
			return errors.New("workflow state already exists")
		}
	}
	m.data.workflowStates = append(m.data.workflowStates, ws)
	return nil
}

func (m *mockStore) GetWorkflowState(envelopeID string) (models.WorkflowState, error) {
	defer m.lock()()
	for _, ws := range m.data.workflowStates {
		if ws.EnvelopeID == envelopeID {
			return ws, nil
		}
	}
	return models.WorkflowState{}, ErrNotFound
}

func (m *mockStore) GetWorkflowStateForUpdate(envelopeID string) (models.WorkflowState, error) {
	// The transaction already holds the store mutex.
	return m.GetWorkflowState(envelopeID)
}

func (m *mockStore) UpdateWorkflowState(ws models.WorkflowState) error {
	defer m.lock()()
	for i, existing := range m.data.workflowStates {
		if existing.EnvelopeID == ws.EnvelopeID {
			ws.UpdatedAt = time.Now()
			m.data.workflowStates[i] = ws
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) ListDueWorkflowStates(now time.Time) ([]models.WorkflowState, error) {
	defer m.lock()()
	var due []models.WorkflowState
	for _, ws := range m.data.workflowStates {
		if ws.ScheduledResumeAt != nil && !ws.ScheduledResumeAt.After(now) && !ws.RunState.Terminal() {
			due = append(due, ws)
		}
	}
	return due, nil
}
