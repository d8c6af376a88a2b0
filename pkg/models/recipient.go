package models

import "time"

type RecipientType string

const (
	SignerRecipientType            RecipientType = "signer"
	ViewerRecipientType            RecipientType = "viewer"
	ApproverRecipientType          RecipientType = "approver"
	CertifiedDeliveryRecipientType RecipientType = "certified_delivery"
	InPersonSignerRecipientType    RecipientType = "in_person_signer"
	AgentRecipientType             RecipientType = "agent"
	EditorRecipientType            RecipientType = "editor"
	IntermediaryRecipientType      RecipientType = "intermediary"
)

// ValidRecipientType reports whether t is one of the known recipient types.
func ValidRecipientType(t RecipientType) bool {
	switch t {
	case SignerRecipientType, ViewerRecipientType, ApproverRecipientType,
		CertifiedDeliveryRecipientType, InPersonSignerRecipientType,
		AgentRecipientType, EditorRecipientType, IntermediaryRecipientType:
		return true
	}
	return false
}

type RecipientStatus string

const (
	CreatedRecipientStatus   RecipientStatus = "created"
	SentRecipientStatus      RecipientStatus = "sent"
	DeliveredRecipientStatus RecipientStatus = "delivered"
	SignedRecipientStatus    RecipientStatus = "signed"
	DeclinedRecipientStatus  RecipientStatus = "declined"
	CompletedRecipientStatus RecipientStatus = "completed"
)

// Terminal reports whether the recipient has finished acting on the envelope.
// Terminal recipients never become active again.
func (s RecipientStatus) Terminal() bool {
	return s == SignedRecipientStatus || s == DeclinedRecipientStatus || s == CompletedRecipientStatus
}

// ValidRecipientStatus reports whether s is one of the known recipient statuses.
func ValidRecipientStatus(s RecipientStatus) bool {
	switch s {
	case CreatedRecipientStatus, SentRecipientStatus, DeliveredRecipientStatus,
		SignedRecipientStatus, DeclinedRecipientStatus, CompletedRecipientStatus:
		return true
	}
	return false
}

// Recipient is a party acting on an envelope. Recipients sharing a routing
// order form a tier and act concurrently.
type Recipient struct {
	ID           string          `json:"recipient_id" db:"id"`         // UUID
	EnvelopeID   string          `json:"envelope_id" db:"envelope_id"` // Foreign key to Envelope
	Type         RecipientType   `json:"recipient_type" db:"recipient_type"`
	Name         string          `json:"name" db:"name"`
	Email        string          `json:"email" db:"email"`
	RoutingOrder int             `json:"routing_order" db:"routing_order"` // Positive; duplicates allowed (parallel tier)
	Status       RecipientStatus `json:"status" db:"status"`
	Position     int             `json:"-" db:"position"` // Insertion order, tie-break within a tier
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
