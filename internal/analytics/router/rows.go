package router

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/internal/analytics/types"
	"github.com/slye-labs/slye-backend/pkg/outbox/payloads"
)

func buildGenerationCompleted(row *types.LedgerEventRow, payload any) error {
	event, ok := payload.(*payloads.GenerationCompletedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for generation_completed")
	}
	row.UserID = event.UserID.String()
	row.GenerationID = uuidPtr(event.GenerationID)
	row.GenType = stringPtr(event.Type)
	row.Backend = stringPtr(event.Backend)
	row.Status = stringPtr(string(event.Status))
	row.CreditsDelta = -int64(event.CreditsUsed)
	return nil
}

func buildGenerationFailed(row *types.LedgerEventRow, payload any) error {
	event, ok := payload.(*payloads.GenerationFailedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for generation_failed")
	}
	row.UserID = event.UserID.String()
	row.GenerationID = uuidPtr(event.GenerationID)
	row.GenType = stringPtr(event.Type)
	row.Backend = stringPtr(event.Backend)
	row.Status = stringPtr(string(event.Status))
	// the refund, if any, arrives as its own credits_refunded row
	row.CreditsDelta = -int64(event.CreditsUsed)
	return nil
}

func buildCreditsPurchased(row *types.LedgerEventRow, payload any) error {
	event, ok := payload.(*payloads.CreditsPurchasedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for credits_purchased")
	}
	row.UserID = event.UserID.String()
	row.TransactionID = uuidPtr(event.TransactionID)
	row.SessionID = stringPtr(event.SessionID)
	row.PackageID = stringPtr(event.PackageID)
	row.CreditsDelta = int64(event.Credits)
	row.AmountMinor = int64Ptr(event.AmountMinor)
	row.Currency = stringPtr(string(event.Currency))
	row.BalanceAfter = int64Ptr(int64(event.Balance))
	return nil
}

func buildCreditsRefunded(row *types.LedgerEventRow, payload any) error {
	event, ok := payload.(*payloads.CreditsRefundedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for credits_refunded")
	}
	row.UserID = event.UserID.String()
	row.TransactionID = uuidPtr(event.TransactionID)
	if event.GenerationID != nil {
		row.GenerationID = uuidPtr(*event.GenerationID)
	}
	row.CreditsDelta = int64(event.Credits)
	row.BalanceAfter = int64Ptr(int64(event.Balance))
	return nil
}

func stringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func uuidPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return stringPtr(id.String())
}

func int64Ptr(value int64) *int64 {
	return &value
}
