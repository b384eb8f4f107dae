package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// LedgerEventRow mirrors the ledger_events BigQuery schema. One row per event;
// columns that do not apply to the event type stay NULL.
type LedgerEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	UserID        string             `bigquery:"user_id"`
	GenerationID  *string            `bigquery:"generation_id"`
	TransactionID *string            `bigquery:"transaction_id"`
	SessionID     *string            `bigquery:"session_id"`
	PackageID     *string            `bigquery:"package_id"`
	GenType       *string            `bigquery:"gen_type"`
	Backend       *string            `bigquery:"backend"`
	Status        *string            `bigquery:"status"`
	CreditsDelta  int64              `bigquery:"credits_delta"`
	AmountMinor   *int64             `bigquery:"amount_minor"`
	Currency      *string            `bigquery:"currency"`
	BalanceAfter  *int64             `bigquery:"balance_after"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}
