package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/slye-labs/slye-backend/internal/credits"
	"github.com/slye-labs/slye-backend/internal/payments"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
)

type stubReconciler struct {
	calls []string
	err   error
}

func (s *stubReconciler) ReconcileSession(_ context.Context, sessionID string) (credits.GrantResult, error) {
	s.calls = append(s.calls, sessionID)
	return credits.GrantResult{}, s.err
}

func newTestService(t *testing.T, rec *stubReconciler) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Payments: rec,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func sessionEvent(t *testing.T, eventType stripe.EventType, status stripe.CheckoutSessionPaymentStatus) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(&stripe.CheckoutSession{ID: "cs_test_1", PaymentStatus: status, Mode: stripe.CheckoutSessionModePayment})
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{ID: "evt_1", Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestHandleEvent_PaidSessionReconciles(t *testing.T) {
	for _, eventType := range []stripe.EventType{
		stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
	} {
		rec := &stubReconciler{}
		svc := newTestService(t, rec)
		if err := svc.HandleEvent(context.Background(), sessionEvent(t, eventType, stripe.CheckoutSessionPaymentStatusPaid)); err != nil {
			t.Fatalf("%s: handle event: %v", eventType, err)
		}
		if len(rec.calls) != 1 || rec.calls[0] != "cs_test_1" {
			t.Fatalf("%s: expected one reconcile of cs_test_1, got %v", eventType, rec.calls)
		}
	}
}

func TestHandleEvent_UnpaidSessionAcknowledged(t *testing.T) {
	rec := &stubReconciler{}
	svc := newTestService(t, rec)
	if err := svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, stripe.CheckoutSessionPaymentStatusUnpaid)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("expected no reconcile for unpaid session")
	}
}

func TestHandleEvent_UnpaidOnRefetchAcknowledged(t *testing.T) {
	rec := &stubReconciler{err: pkgerrors.Wrap(pkgerrors.CodeValidation, payments.ErrSessionUnpaid, "Payment not completed.")}
	svc := newTestService(t, rec)
	if err := svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, stripe.CheckoutSessionPaymentStatusPaid)); err != nil {
		t.Fatalf("expected unpaid refetch to be acknowledged, got %v", err)
	}
}

func TestHandleEvent_GrantFailurePropagates(t *testing.T) {
	rec := &stubReconciler{err: pkgerrors.Wrap(pkgerrors.CodePersistence, errors.New("db down"), "Failed to record credit purchase.")}
	svc := newTestService(t, rec)
	err := svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, stripe.CheckoutSessionPaymentStatusPaid))
	if err == nil {
		t.Fatal("expected error")
	}
	if status := pkgerrors.As(err).Status(); status != 500 {
		t.Fatalf("expected 500 so Stripe retries, got %d", status)
	}
}

func TestHandleEvent_IntegrityFailureKeepsCode(t *testing.T) {
	rec := &stubReconciler{err: pkgerrors.New(pkgerrors.CodeIntegrity, "Currency mismatch.")}
	svc := newTestService(t, rec)
	err := svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, stripe.CheckoutSessionPaymentStatusPaid))
	if !pkgerrors.Is(err, pkgerrors.CodeIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if status := pkgerrors.As(err).Status(); status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestHandleEvent_IgnoresOtherEvents(t *testing.T) {
	rec := &stubReconciler{}
	svc := newTestService(t, rec)
	event := &stripe.Event{ID: "evt_2", Type: stripe.EventTypeInvoicePaid, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("expected no reconcile")
	}
}
