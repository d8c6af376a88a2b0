package service

import (
	"time"

	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/MasumNishat/signing-sub000/pkg/storage"
	"github.com/pkg/errors"
)

// Logger defines the logging interface for the services.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// WorkflowService is the envelope routing engine. It owns every workflow
// state transition and the derivation of active/pending recipient tiers.
// Transitions run inside a single store transaction with the workflow state
// row locked, so concurrent requests on one envelope serialize.
type WorkflowService struct {
	store    storage.Store
	logger   Logger
	notifier Notifier
	now      func() time.Time
}

type Option func(*WorkflowService)

// WithNotifier sets the delivery channel invoked when a tier becomes active.
func WithNotifier(n Notifier) Option {
	return func(s *WorkflowService) { s.notifier = n }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *WorkflowService) { s.now = now }
}

func NewWorkflowService(store storage.Store, logger Logger, opts ...Option) *WorkflowService {
	s := &WorkflowService{
		store:    store,
		logger:   logger,
		notifier: nopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// getEnvelope fetches an envelope and verifies it belongs to the acting
// account. A mismatch reads the same as absence.
func getEnvelope(store storage.Store, accountID, envelopeID string) (models.Envelope, error) {
	e, err := store.GetEnvelope(envelopeID)
	if err != nil {
		return models.Envelope{}, errors.Wrapf(err, "envelope %s", envelopeID)
	}
	if e.AccountID != accountID {
		return models.Envelope{}, errors.Wrapf(storage.ErrNotFound, "envelope %s", envelopeID)
	}
	return e, nil
}

// nextTier returns the lowest routing order strictly greater than after that
// still holds a recipient who has not finished, or 0 if none remains.
func nextTier(recipients []models.Recipient, after int) int {
	next := 0
	for _, r := range recipients {
		if r.Status.Terminal() || r.RoutingOrder <= after {
			continue
		}
		if next == 0 || r.RoutingOrder < next {
			next = r.RoutingOrder
		}
	}
	return next
}

// activeAtTier returns the recipients at the given routing order who have
// not yet finished acting.
func activeAtTier(recipients []models.Recipient, order int) []models.Recipient {
	active := []models.Recipient{}
	for _, r := range recipients {
		if r.RoutingOrder == order && !r.Status.Terminal() {
			active = append(active, r)
		}
	}
	return active
}

// InitializeWorkflow creates the workflow state for an envelope. Returns
// ErrAlreadyInitialized if one exists; callers treat that as a no-op.
func (s *WorkflowService) InitializeWorkflow(accountID, envelopeID string, routingType models.RoutingType) (ws models.WorkflowState, err error) {
	if routingType == "" {
		routingType = models.SequentialRoutingType
	}
	if !models.ValidRoutingType(routingType) {
		return models.WorkflowState{}, &ValidationError{Field: "routing_type", Reason: "must be 'sequential', 'parallel' or 'mixed'"}
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return models.WorkflowState{}, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if _, err = getEnvelope(txStore, accountID, envelopeID); err != nil {
		return models.WorkflowState{}, err
	}
	if _, getErr := txStore.GetWorkflowStateForUpdate(envelopeID); getErr == nil {
		return models.WorkflowState{}, ErrAlreadyInitialized
	} else if !errors.Is(getErr, storage.ErrNotFound) {
		return models.WorkflowState{}, getErr
	}

	ws = models.WorkflowState{
		EnvelopeID:          envelopeID,
		RoutingType:         routingType,
		RunState:            models.NotStartedRunState,
		CurrentRoutingOrder: 0,
		CreatedAt:           s.now(),
		UpdatedAt:           s.now(),
	}
	if err = txStore.SaveWorkflowState(ws); err != nil {
		return models.WorkflowState{}, err
	}
	s.logger.Infof("Initialized %s workflow for envelope %s", routingType, envelopeID)
	return ws, nil
}

// StartWorkflow begins routing for an envelope, initializing the workflow
// state if absent. With a future scheduledAt the start is only recorded: the
// state stays not_started until the scheduler (or a later call) starts it
// for real. An immediate start activates the first unfinished tier.
func (s *WorkflowService) StartWorkflow(accountID, envelopeID string, routingType models.RoutingType, scheduledAt *time.Time) (models.WorkflowState, error) {
	if scheduledAt != nil && !scheduledAt.After(s.now()) {
		return models.WorkflowState{}, &ValidationError{Field: "resume_date", Reason: "must be in the future"}
	}
	ws, tier, err := s.startTx(accountID, envelopeID, routingType, scheduledAt)
	if err != nil {
		return models.WorkflowState{}, err
	}
	if len(tier) > 0 {
		s.notifier.NotifyRecipients(envelopeID, tier)
	}
	return ws, nil
}

func (s *WorkflowService) startTx(accountID, envelopeID string, routingType models.RoutingType, scheduledAt *time.Time) (ws models.WorkflowState, tier []models.Recipient, err error) {
	if routingType != "" && !models.ValidRoutingType(routingType) {
		return models.WorkflowState{}, nil, &ValidationError{Field: "routing_type", Reason: "must be 'sequential', 'parallel' or 'mixed'"}
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return models.WorkflowState{}, nil, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	envelope, err := getEnvelope(txStore, accountID, envelopeID)
	if err != nil {
		return models.WorkflowState{}, nil, err
	}

	created := false
	ws, err = txStore.GetWorkflowStateForUpdate(envelopeID)
	if errors.Is(err, storage.ErrNotFound) {
		// Lazy initialize-if-absent: start on a fresh envelope is one call.
		// Nothing is saved until the start itself validates.
		if routingType == "" {
			routingType = models.SequentialRoutingType
		}
		ws = models.WorkflowState{
			EnvelopeID:          envelopeID,
			RoutingType:         routingType,
			RunState:            models.NotStartedRunState,
			CurrentRoutingOrder: 0,
			CreatedAt:           s.now(),
			UpdatedAt:           s.now(),
		}
		created = true
	} else if err != nil {
		return models.WorkflowState{}, nil, err
	}

	if ws.RunState != models.NotStartedRunState {
		err = &InvalidTransitionError{From: ws.RunState, Op: "start"}
		return models.WorkflowState{}, nil, err
	}

	if scheduledAt != nil {
		ws.ScheduledResumeAt = scheduledAt
		if err = s.saveOrUpdate(txStore, ws, created); err != nil {
			return models.WorkflowState{}, nil, err
		}
		s.logger.Infof("Scheduled workflow start for envelope %s at %s", envelopeID, scheduledAt.Format(time.RFC3339))
		return ws, nil, nil
	}

	recipients, err := txStore.ListRecipients(envelopeID)
	if err != nil {
		return models.WorkflowState{}, nil, err
	}
	if len(recipients) == 0 {
		err = &ValidationError{Field: "recipients", Reason: "envelope has no recipients"}
		return models.WorkflowState{}, nil, err
	}

	first := nextTier(recipients, 0)
	if first == 0 {
		// Every recipient already finished before the workflow started.
		ws.RunState = models.CompletedRunState
		ws.ScheduledResumeAt = nil
		if err = s.saveOrUpdate(txStore, ws, created); err != nil {
			return models.WorkflowState{}, nil, err
		}
		s.logger.Infof("Workflow for envelope %s completed on start: no unfinished recipients", envelopeID)
		return ws, nil, nil
	}

	ws.RunState = models.RunningRunState
	ws.CurrentRoutingOrder = first
	ws.ScheduledResumeAt = nil
	if err = s.saveOrUpdate(txStore, ws, created); err != nil {
		return models.WorkflowState{}, nil, err
	}
	if tier, err = s.dispatchTier(txStore, envelopeID, recipients, first); err != nil {
		return models.WorkflowState{}, nil, err
	}
	if envelope.Status == models.DraftEnvelopeStatus {
		if err = txStore.UpdateEnvelopeStatus(envelopeID, models.SentEnvelopeStatus); err != nil {
			return models.WorkflowState{}, nil, err
		}
	}
	s.logger.Infof("Started workflow for envelope %s at routing order %d (%d active recipients)", envelopeID, first, len(tier))
	return ws, tier, nil
}

// saveOrUpdate writes a workflow state built lazily inside the same
// transaction (insert) or loaded from it (update).
func (s *WorkflowService) saveOrUpdate(txStore storage.Store, ws models.WorkflowState, created bool) error {
	if created {
		return txStore.SaveWorkflowState(ws)
	}
	return txStore.UpdateWorkflowState(ws)
}

// dispatchTier marks the unfinished recipients of the newly active tier as
// sent and returns them for notification.
func (s *WorkflowService) dispatchTier(txStore storage.Store, envelopeID string, recipients []models.Recipient, order int) ([]models.Recipient, error) {
	tier := activeAtTier(recipients, order)
	for i, r := range tier {
		if r.Status != models.CreatedRecipientStatus {
			continue
		}
		if err := txStore.UpdateRecipientStatus(envelopeID, r.ID, models.SentRecipientStatus); err != nil {
			return nil, err
		}
		tier[i].Status = models.SentRecipientStatus
	}
	return tier, nil
}

// PauseWorkflow suspends a running workflow, optionally recording when the
// scheduler should resume it. The current routing order is untouched.
func (s *WorkflowService) PauseWorkflow(accountID, envelopeID, reason string, resumeAt *time.Time) (ws models.WorkflowState, err error) {
	if resumeAt != nil && !resumeAt.After(s.now()) {
		return models.WorkflowState{}, &ValidationError{Field: "resume_date", Reason: "must be in the future"}
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return models.WorkflowState{}, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if _, err = getEnvelope(txStore, accountID, envelopeID); err != nil {
		return models.WorkflowState{}, err
	}
	ws, err = txStore.GetWorkflowStateForUpdate(envelopeID)
	if errors.Is(err, storage.ErrNotFound) {
		err = &InvalidTransitionError{From: models.NotStartedRunState, Op: "pause"}
		return models.WorkflowState{}, err
	} else if err != nil {
		return models.WorkflowState{}, err
	}
	if ws.RunState != models.RunningRunState {
		err = &InvalidTransitionError{From: ws.RunState, Op: "pause"}
		return models.WorkflowState{}, err
	}

	ws.RunState = models.PausedRunState
	ws.PauseReason = reason
	ws.ScheduledResumeAt = resumeAt
	if err = txStore.UpdateWorkflowState(ws); err != nil {
		return models.WorkflowState{}, err
	}
	s.logger.Infof("Paused workflow for envelope %s", envelopeID)
	return ws, nil
}

// ResumeWorkflow puts a paused workflow back in motion and clears any
// scheduled resume time.
func (s *WorkflowService) ResumeWorkflow(accountID, envelopeID string) (ws models.WorkflowState, err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return models.WorkflowState{}, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if _, err = getEnvelope(txStore, accountID, envelopeID); err != nil {
		return models.WorkflowState{}, err
	}
	ws, err = txStore.GetWorkflowStateForUpdate(envelopeID)
	if errors.Is(err, storage.ErrNotFound) {
		err = &InvalidTransitionError{From: models.NotStartedRunState, Op: "resume"}
		return models.WorkflowState{}, err
	} else if err != nil {
		return models.WorkflowState{}, err
	}
	if ws.RunState != models.PausedRunState {
		err = &InvalidTransitionError{From: ws.RunState, Op: "resume"}
		return models.WorkflowState{}, err
	}

	ws.RunState = models.RunningRunState
	ws.ScheduledResumeAt = nil
	if err = txStore.UpdateWorkflowState(ws); err != nil {
		return models.WorkflowState{}, err
	}
	s.logger.Infof("Resumed workflow for envelope %s at routing order %d", envelopeID, ws.CurrentRoutingOrder)
	return ws, nil
}

// CancelWorkflow terminates a workflow permanently. Legal from not_started,
// running and paused; the record stays around for audit.
func (s *WorkflowService) CancelWorkflow(accountID, envelopeID, reason string) (ws models.WorkflowState, err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return models.WorkflowState{}, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if _, err = getEnvelope(txStore, accountID, envelopeID); err != nil {
		return models.WorkflowState{}, err
	}

	created := false
	ws, err = txStore.GetWorkflowStateForUpdate(envelopeID)
	if errors.Is(err, storage.ErrNotFound) {
		// Cancelling an envelope that never started still leaves an audit
		// record behind.
		ws = models.WorkflowState{
			EnvelopeID:          envelopeID,
			RoutingType:         models.SequentialRoutingType,
			RunState:            models.NotStartedRunState,
			CurrentRoutingOrder: 0,
			CreatedAt:           s.now(),
			UpdatedAt:           s.now(),
		}
		created = true
	} else if err != nil {
		return models.WorkflowState{}, err
	}
	if ws.RunState.Terminal() {
		err = &InvalidTransitionError{From: ws.RunState, Op: "cancel"}
		return models.WorkflowState{}, err
	}

	cancelledAt := s.now()
	ws.RunState = models.CancelledRunState
	ws.CancelReason = reason
	ws.CancelledAt = &cancelledAt
	ws.ScheduledResumeAt = nil
	if err = s.saveOrUpdate(txStore, ws, created); err != nil {
		return models.WorkflowState{}, err
	}
	s.logger.Infof("Cancelled workflow for envelope %s: %s", envelopeID, reason)
	return ws, nil
}

// GetWorkflowStatus returns the workflow state of an envelope. An envelope
// whose workflow was never initialized reports the not_started default
// rather than an error.
func (s *WorkflowService) GetWorkflowStatus(accountID, envelopeID string) (models.WorkflowState, error) {
	if _, err := getEnvelope(s.store, accountID, envelopeID); err != nil {
		return models.WorkflowState{}, err
	}
	ws, err := s.store.GetWorkflowState(envelopeID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.DefaultWorkflowState(envelopeID), nil
	}
	if err != nil {
		return models.WorkflowState{}, err
	}
	return ws, nil
}

// GetCurrentActiveRecipients returns the unfinished recipients at the
// current routing order, plus the order itself. Empty until the workflow
// starts.
func (s *WorkflowService) GetCurrentActiveRecipients(accountID, envelopeID string) (int, []models.Recipient, error) {
	ws, err := s.GetWorkflowStatus(accountID, envelopeID)
	if err != nil {
		return 0, nil, err
	}
	if ws.CurrentRoutingOrder == 0 {
		return 0, []models.Recipient{}, nil
	}
	recipients, err := s.store.ListRecipients(envelopeID)
	if err != nil {
		return 0, nil, err
	}
	return ws.CurrentRoutingOrder, activeAtTier(recipients, ws.CurrentRoutingOrder), nil
}

// GetPendingRecipients returns recipients at routing orders strictly greater
// than the current one, ordered by routing order then insertion order.
// Recipients at or below the current order are current or done, not pending.
func (s *WorkflowService) GetPendingRecipients(accountID, envelopeID string) (int, []models.Recipient, error) {
	ws, err := s.GetWorkflowStatus(accountID, envelopeID)
	if err != nil {
		return 0, nil, err
	}
	recipients, err := s.store.ListRecipients(envelopeID)
	if err != nil {
		return 0, nil, err
	}
	pending := []models.Recipient{}
	for _, r := range recipients {
		if r.RoutingOrder > ws.CurrentRoutingOrder {
			pending = append(pending, r)
		}
	}
	return ws.CurrentRoutingOrder, pending, nil
}

// CompleteRecipient records a terminal status for a recipient. When that
// drains the current tier of a running workflow, the routing order advances
// to the next unfinished tier, or the workflow completes when none remains.
func (s *WorkflowService) CompleteRecipient(accountID, envelopeID, recipientID string, status models.RecipientStatus) (models.Recipient, error) {
	if !models.ValidRecipientStatus(status) || !status.Terminal() {
		return models.Recipient{}, &ValidationError{Field: "status", Reason: "must be 'signed', 'declined' or 'completed'"}
	}
	recipient, tier, err := s.completeTx(accountID, envelopeID, recipientID, status)
	if err != nil {
		return models.Recipient{}, err
	}
	if len(tier) > 0 {
		s.notifier.NotifyRecipients(envelopeID, tier)
	}
	return recipient, nil
}

func (s *WorkflowService) completeTx(accountID, envelopeID, recipientID string, status models.RecipientStatus) (recipient models.Recipient, tier []models.Recipient, err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return models.Recipient{}, nil, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if _, err = getEnvelope(txStore, accountID, envelopeID); err != nil {
		return models.Recipient{}, nil, err
	}
	recipient, err = txStore.GetRecipient(envelopeID, recipientID)
	if err != nil {
		return models.Recipient{}, nil, errors.Wrapf(err, "recipient %s", recipientID)
	}
	if err = txStore.UpdateRecipientStatus(envelopeID, recipientID, status); err != nil {
		return models.Recipient{}, nil, err
	}
	recipient.Status = status

	ws, wsErr := txStore.GetWorkflowStateForUpdate(envelopeID)
	if errors.Is(wsErr, storage.ErrNotFound) {
		// No workflow yet: the status is recorded, nothing to advance.
		return recipient, nil, nil
	} else if wsErr != nil {
		err = wsErr
		return models.Recipient{}, nil, err
	}
	if ws.RunState != models.RunningRunState || recipient.RoutingOrder != ws.CurrentRoutingOrder {
		return recipient, nil, nil
	}

	recipients, err := txStore.ListRecipients(envelopeID)
	if err != nil {
		return models.Recipient{}, nil, err
	}
	if len(activeAtTier(recipients, ws.CurrentRoutingOrder)) > 0 {
		// Tier not drained yet.
		return recipient, nil, nil
	}

	next := nextTier(recipients, ws.CurrentRoutingOrder)
	if next == 0 {
		ws.RunState = models.CompletedRunState
		if err = txStore.UpdateWorkflowState(ws); err != nil {
			return models.Recipient{}, nil, err
		}
		if err = txStore.UpdateEnvelopeStatus(envelopeID, models.CompletedEnvelopeStatus); err != nil {
			return models.Recipient{}, nil, err
		}
		s.logger.Infof("Workflow for envelope %s completed: all routing tiers finished", envelopeID)
		return recipient, nil, nil
	}

	ws.CurrentRoutingOrder = next
	if err = txStore.UpdateWorkflowState(ws); err != nil {
		return models.Recipient{}, nil, err
	}
	if tier, err = s.dispatchTier(txStore, envelopeID, recipients, next); err != nil {
		return models.Recipient{}, nil, err
	}
	s.logger.Infof("Advanced workflow for envelope %s to routing order %d (%d active recipients)", envelopeID, next, len(tier))
	return recipient, tier, nil
}
