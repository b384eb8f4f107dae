package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/pkg/enums"
)

// CreditTransaction is an append-only ledger entry. Amount is signed: usage is negative.
type CreditTransaction struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	Amount          int                         `gorm:"column:amount;not null"`
	Type            enums.CreditTransactionType `gorm:"column:type;type:text;not null"`
	Description     *string                     `gorm:"column:description"`
	StripePaymentID *string                     `gorm:"column:stripe_payment_id;uniqueIndex:ux_credit_transactions_stripe_payment_id"`
	GenerationID    *uuid.UUID                  `gorm:"column:generation_id;type:uuid"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
