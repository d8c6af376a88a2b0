package service

import (
	"strings"
	"time"

	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/MasumNishat/signing-sub000/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RecipientInput is the caller-facing shape for adding a recipient.
type RecipientInput struct {
	Type         models.RecipientType `json:"recipient_type"`
	Name         string               `json:"name"`
	Email        string               `json:"email"`
	RoutingOrder int                  `json:"routing_order"`
}

// EnvelopeService is the conventional CRUD collaborator the workflow engine
// reads from: envelope identity/status and the recipient roster.
type EnvelopeService struct {
	store  storage.Store
	logger Logger
}

func NewEnvelopeService(store storage.Store, logger Logger) *EnvelopeService {
	return &EnvelopeService{store: store, logger: logger}
}

func validateRecipientInput(in RecipientInput) error {
	if in.Type == "" {
		in.Type = models.SignerRecipientType
	}
	if !models.ValidRecipientType(in.Type) {
		return &ValidationError{Field: "recipient_type", Reason: "unknown recipient type '" + string(in.Type) + "'"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(in.Email) == "" || !strings.Contains(in.Email, "@") {
		return &ValidationError{Field: "email", Reason: "must be a valid email address"}
	}
	if in.RoutingOrder < 1 {
		return &ValidationError{Field: "routing_order", Reason: "must be a positive integer"}
	}
	return nil
}

// CreateEnvelope creates a draft envelope, optionally with its initial
// recipient roster.
func (s *EnvelopeService) CreateEnvelope(accountID, name string, recipients []RecipientInput) (e models.Envelope, err error) {
	if strings.TrimSpace(name) == "" {
		return models.Envelope{}, &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if len(name) > 200 {
		return models.Envelope{}, &ValidationError{Field: "name", Reason: "too long (max 200 characters)"}
	}
	for _, in := range recipients {
		if err := validateRecipientInput(in); err != nil {
			return models.Envelope{}, err
		}
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return models.Envelope{}, err
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

	e = models.Envelope{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Name:      name,
		Status:    models.DraftEnvelopeStatus,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err = txStore.SaveEnvelope(e); err != nil {
		return models.Envelope{}, err
	}
	for _, in := range recipients {
		r := newRecipient(e.ID, in)
		if err = txStore.SaveRecipient(r); err != nil {
			return models.Envelope{}, err
		}
		e.Recipients = append(e.Recipients, r)
	}
	s.logger.Infof("Created envelope '%s' with ID %s (%d recipients)", name, e.ID, len(recipients))
	return e, nil
}

func newRecipient(envelopeID string, in RecipientInput) models.Recipient {
	rType := in.Type
	if rType == "" {
		rType = models.SignerRecipientType
	}
	return models.Recipient{
		ID:           uuid.NewString(),
		EnvelopeID:   envelopeID,
		Type:         rType,
		Name:         in.Name,
		Email:        in.Email,
		RoutingOrder: in.RoutingOrder,
		Status:       models.CreatedRecipientStatus,
		CreatedAt:    time.Now(),
	}
}

// GetEnvelope fetches an envelope with its recipient roster.
func (s *EnvelopeService) GetEnvelope(accountID, envelopeID string) (models.Envelope, error) {
	e, err := getEnvelope(s.store, accountID, envelopeID)
	if err != nil {
		return models.Envelope{}, err
	}
	recipients, err := s.store.ListRecipients(envelopeID)
	if err != nil {
		return models.Envelope{}, errors.Wrapf(err, "list recipients for envelope %s", envelopeID)
	}
	e.Recipients = recipients
	return e, nil
}

// ListEnvelopes returns the account's envelopes without recipient rosters.
func (s *EnvelopeService) ListEnvelopes(accountID string) ([]models.Envelope, error) {
	return s.store.ListEnvelopes(accountID)
}

// AddRecipient appends a recipient to an envelope's roster.
func (s *EnvelopeService) AddRecipient(accountID, envelopeID string, in RecipientInput) (r models.Recipient, err error) {
	if err := validateRecipientInput(in); err != nil {
		return models.Recipient{}, err
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return models.Recipient{}, err
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
		return models.Recipient{}, err
	}
	r = newRecipient(envelopeID, in)
	if err = txStore.SaveRecipient(r); err != nil {
		return models.Recipient{}, err
	}
	s.logger.Infof("Added %s recipient '%s' to envelope %s at routing order %d", r.Type, r.Name, envelopeID, r.RoutingOrder)
	return r, nil
}

// UpdateEnvelopeStatus records an envelope status raised by an external
// event (void, decline).
func (s *EnvelopeService) UpdateEnvelopeStatus(accountID, envelopeID string, status models.EnvelopeStatus) error {
	switch status {
	case models.DraftEnvelopeStatus, models.SentEnvelopeStatus, models.DeliveredEnvelopeStatus,
		models.CompletedEnvelopeStatus, models.DeclinedEnvelopeStatus, models.VoidedEnvelopeStatus:
	default:
		return &ValidationError{Field: "status", Reason: "unknown envelope status '" + string(status) + "'"}
	}
	if _, err := getEnvelope(s.store, accountID, envelopeID); err != nil {
		return err
	}
	if err := s.store.UpdateEnvelopeStatus(envelopeID, status); err != nil {
		return err
	}
	s.logger.Infof("Updated envelope %s to status '%s'", envelopeID, status)
	return nil
}
