package models

import "time"

type EnvelopeStatus string

const (
	DraftEnvelopeStatus     EnvelopeStatus = "draft"
	SentEnvelopeStatus      EnvelopeStatus = "sent"
	DeliveredEnvelopeStatus EnvelopeStatus = "delivered"
	CompletedEnvelopeStatus EnvelopeStatus = "completed"
	DeclinedEnvelopeStatus  EnvelopeStatus = "declined"
	VoidedEnvelopeStatus    EnvelopeStatus = "voided"
)

// Envelope represents a signing transaction: documents, recipients and routing rules.
type Envelope struct {
	ID         string         `json:"envelope_id" db:"id"`        // UUID
	AccountID  string         `json:"account_id" db:"account_id"` // Owning account
	Name       string         `json:"name" db:"name"`             // Subject/title shown to recipients
	Status     EnvelopeStatus `json:"status" db:"status"`         // "draft", "sent", "delivered", "completed", "declined", "voided"
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
	Recipients []Recipient    `json:"recipients,omitempty"` // Populated at read time
}
