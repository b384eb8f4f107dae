package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slye-labs/slye-backend/internal/analytics/types"
	"github.com/slye-labs/slye-backend/pkg/enums"
	"github.com/slye-labs/slye-backend/pkg/logger"
	"github.com/slye-labs/slye-backend/pkg/outbox/payloads"
	"github.com/slye-labs/slye-backend/pkg/outbox/registry"
)

func TestRouterUnsupportedEvent(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	env := types.Envelope{
		EventType: enums.OutboxEventType("unsupported"),
		Payload:   []byte(`{"foo":"bar"}`),
	}
	err := router.Handle(context.Background(), env)
	require.True(t, errors.Is(err, ErrUnsupportedEventType), "got %v", err)
}

func TestRouterRejectsEmptyPayload(t *testing.T) {
	router, w := newTestRouter(t, nil)
	env := types.Envelope{EventType: enums.EventCreditsPurchased, Payload: []byte("null")}
	require.Error(t, router.Handle(context.Background(), env))
	assert.Empty(t, w.rows)
}

func TestRouterUnknownVersion(t *testing.T) {
	router, w := newTestRouter(t, nil)
	env := types.Envelope{EventType: enums.EventCreditsPurchased, Version: 9, Payload: []byte(`{}`)}
	require.Error(t, router.Handle(context.Background(), env))
	assert.Empty(t, w.rows)
}

func TestRouterCreditsPurchased(t *testing.T) {
	router, w := newTestRouter(t, nil)
	userID := uuid.New()
	txnID := uuid.New()
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := envelopeFor(t, enums.EventCreditsPurchased, occurred, payloads.CreditsPurchasedEvent{
		UserID:        userID,
		TransactionID: txnID,
		SessionID:     "cs_test_1",
		PackageID:     "pro",
		Credits:       500,
		AmountMinor:   3900,
		Currency:      enums.CurrencyUSD,
		Balance:       510,
	})

	require.NoError(t, router.Handle(context.Background(), env))
	require.Len(t, w.rows, 1)
	row := w.rows[0]
	assert.Equal(t, env.EventID, row.EventID)
	assert.Equal(t, "credits_purchased", row.EventType)
	assert.Equal(t, occurred, row.OccurredAt)
	assert.Equal(t, userID.String(), row.UserID)
	assert.Equal(t, txnID.String(), *row.TransactionID)
	assert.Equal(t, "cs_test_1", *row.SessionID)
	assert.Equal(t, "pro", *row.PackageID)
	assert.Equal(t, int64(500), row.CreditsDelta)
	assert.Equal(t, int64(3900), *row.AmountMinor)
	assert.Equal(t, int64(510), *row.BalanceAfter)
	assert.Nil(t, row.GenerationID)
	assert.True(t, row.Payload.Valid)
}

func TestRouterGenerationEvents(t *testing.T) {
	userID := uuid.New()
	genID := uuid.New()
	now := time.Now().UTC()

	cases := []struct {
		name      string
		eventType enums.OutboxEventType
		payload   any
		delta     int64
		status    string
	}{
		{
			name:      "completed",
			eventType: enums.EventGenerationCompleted,
			payload: payloads.GenerationCompletedEvent{
				GenerationID: genID, UserID: userID, Type: "explainer", Backend: "kie",
				Status: enums.GenerationStatusCompleted, CreditsUsed: 10, OutputURL: "https://cdn/x.mp4",
			},
			delta:  -10,
			status: "completed",
		},
		{
			name:      "failed",
			eventType: enums.EventGenerationFailed,
			payload: payloads.GenerationFailedEvent{
				GenerationID: genID, UserID: userID, Type: "explainer", Backend: "kie",
				Status: enums.GenerationStatusFailed, CreditsUsed: 10, CreditsRefunded: 10,
			},
			delta:  -10,
			status: "failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, w := newTestRouter(t, nil)
			require.NoError(t, router.Handle(context.Background(), envelopeFor(t, tc.eventType, now, tc.payload)))
			require.Len(t, w.rows, 1)
			row := w.rows[0]
			assert.Equal(t, genID.String(), *row.GenerationID)
			assert.Equal(t, "explainer", *row.GenType)
			assert.Equal(t, "kie", *row.Backend)
			assert.Equal(t, tc.status, *row.Status)
			assert.Equal(t, tc.delta, row.CreditsDelta)
		})
	}
}

func TestRouterCreditsRefunded(t *testing.T) {
	router, w := newTestRouter(t, nil)
	genID := uuid.New()
	env := envelopeFor(t, enums.EventCreditsRefunded, time.Now(), payloads.CreditsRefundedEvent{
		UserID:        uuid.New(),
		TransactionID: uuid.New(),
		GenerationID:  &genID,
		Credits:       10,
		Reason:        "backend submission failed",
		Balance:       10,
	})

	require.NoError(t, router.Handle(context.Background(), env))
	require.Len(t, w.rows, 1)
	assert.Equal(t, int64(10), w.rows[0].CreditsDelta)
	assert.Equal(t, genID.String(), *w.rows[0].GenerationID)
}

func TestRouterWriterError(t *testing.T) {
	boom := errors.New("bigquery down")
	router, _ := newTestRouter(t, boom)
	env := envelopeFor(t, enums.EventCreditsRefunded, time.Now(), payloads.CreditsRefundedEvent{UserID: uuid.New(), Credits: 1})
	require.ErrorIs(t, router.Handle(context.Background(), env), boom)
}

func newTestRouter(t *testing.T, writeErr error) (*Router, *recordingWriter) {
	t.Helper()
	w := &recordingWriter{err: writeErr}
	router, err := NewRouter(w, registry.NewLedgerDecoderRegistry(), logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}))
	require.NoError(t, err)
	return router, w
}

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, occurred time.Time, payload any) types.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return types.Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		Version:    1,
		OccurredAt: occurred,
		Payload:    data,
	}
}

type recordingWriter struct {
	rows []types.LedgerEventRow
	err  error
}

func (w *recordingWriter) InsertLedger(_ context.Context, row types.LedgerEventRow) error {
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, row)
	return nil
}
