package payloads

import (
	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/pkg/enums"
)

// GenerationCompletedEvent is emitted once a generation reaches completed with output.
type GenerationCompletedEvent struct {
	GenerationID uuid.UUID              `json:"generation_id"`
	UserID       uuid.UUID              `json:"user_id"`
	Type         string                 `json:"type"`
	Backend      string                 `json:"backend"`
	Model        string                 `json:"model"`
	Status       enums.GenerationStatus `json:"status"`
	CreditsUsed  int                    `json:"credits_used"`
	OutputURL    string                 `json:"output_url"`
}

// GenerationFailedEvent is emitted when a generation reaches failed.
type GenerationFailedEvent struct {
	GenerationID    uuid.UUID              `json:"generation_id"`
	UserID          uuid.UUID              `json:"user_id"`
	Type            string                 `json:"type"`
	Backend         string                 `json:"backend"`
	Status          enums.GenerationStatus `json:"status"`
	CreditsUsed     int                    `json:"credits_used"`
	ErrorMessage    string                 `json:"error_message"`
	CreditsRefunded int                    `json:"credits_refunded"`
}

// CreditsPurchasedEvent is emitted for every newly granted checkout session.
type CreditsPurchasedEvent struct {
	UserID        uuid.UUID      `json:"user_id"`
	TransactionID uuid.UUID      `json:"transaction_id"`
	SessionID     string         `json:"session_id"`
	PackageID     string         `json:"package_id"`
	Credits       int            `json:"credits"`
	AmountMinor   int64          `json:"amount_minor"`
	Currency      enums.Currency `json:"currency"`
	Balance       int            `json:"balance"`
}

// CreditsRefundedEvent is emitted when reserved credits are returned.
type CreditsRefundedEvent struct {
	UserID        uuid.UUID  `json:"user_id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	GenerationID  *uuid.UUID `json:"generation_id,omitempty"`
	Credits       int        `json:"credits"`
	Reason        string     `json:"reason"`
	Balance       int        `json:"balance"`
}
