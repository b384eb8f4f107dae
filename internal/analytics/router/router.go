package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/slye-labs/slye-backend/internal/analytics/types"
	"github.com/slye-labs/slye-backend/internal/analytics/writer"
	"github.com/slye-labs/slye-backend/pkg/enums"
	"github.com/slye-labs/slye-backend/pkg/logger"
)

var ErrUnsupportedEventType = errors.New("unsupported ledger event type")

// Writer delivers BigQuery rows produced by the router.
type Writer interface {
	InsertLedger(ctx context.Context, row types.LedgerEventRow) error
}

// Decoder turns a versioned payload into its typed event struct.
type Decoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

// rowBuilder fills the event specific columns of a ledger row.
type rowBuilder func(row *types.LedgerEventRow, payload any) error

// Router maps ledger envelopes onto ledger_events rows.
type Router struct {
	writer   Writer
	decoder  Decoder
	builders map[enums.OutboxEventType]rowBuilder
	logg     *logger.Logger
}

func NewRouter(w Writer, decoder Decoder, logg *logger.Logger) (*Router, error) {
	if w == nil {
		return nil, errors.New("writer is required")
	}
	if decoder == nil {
		return nil, errors.New("decoder is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{
		writer:  w,
		decoder: decoder,
		builders: map[enums.OutboxEventType]rowBuilder{
			enums.EventGenerationCompleted: buildGenerationCompleted,
			enums.EventGenerationFailed:    buildGenerationFailed,
			enums.EventCreditsPurchased:    buildCreditsPurchased,
			enums.EventCreditsRefunded:     buildCreditsRefunded,
		},
		logg: logg,
	}, nil
}

// Handle decodes the envelope payload and writes exactly one ledger row.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	build, ok := r.builders[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if !envelope.HasPayload() {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	version := envelope.Version
	if version <= 0 {
		version = 1
	}
	payload, err := r.decoder.Decode(envelope.EventType, version, envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}

	row := types.LedgerEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt.UTC(),
	}
	if err := build(&row, payload); err != nil {
		return err
	}
	raw, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return err
	}
	row.Payload = raw

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"event_type":    envelope.EventType,
		"user_id":       row.UserID,
		"credits_delta": row.CreditsDelta,
	})
	if err := r.writer.InsertLedger(logCtx, row); err != nil {
		r.logg.Error(logCtx, "failed to insert ledger row", err)
		return err
	}
	r.logg.Debug(logCtx, "ledger row inserted")
	return nil
}
