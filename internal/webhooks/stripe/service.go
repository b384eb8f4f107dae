package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/stripe/stripe-go/v84"

	"github.com/slye-labs/slye-backend/internal/credits"
	"github.com/slye-labs/slye-backend/internal/payments"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
)

type sessionReconciler interface {
	ReconcileSession(ctx context.Context, sessionID string) (credits.GrantResult, error)
}

type ServiceParams struct {
	Payments sessionReconciler
	Logger   *logger.Logger
}

type Service struct {
	payments sessionReconciler
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

// HandleEvent applies checkout events. Unpaid sessions and unhandled event
// types are acknowledged without a grant. Verification errors come back with
// their own code; everything else is a failed grant that Stripe should retry.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
		}
		ctx = s.logg.WithSessionID(ctx, sess.ID)
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			s.logg.Info(ctx, "checkout session not paid, skipping")
			return nil
		}
		result, err := s.payments.ReconcileSession(ctx, sess.ID)
		if err != nil {
			if errors.Is(err, payments.ErrSessionUnpaid) {
				return nil
			}
			return err
		}
		if result.AlreadyProcessed {
			s.logg.Info(ctx, "checkout session already processed")
		}
		return nil
	case stripe.EventTypeCheckoutSessionExpired:
		s.logg.Info(ctx, "checkout session expired")
		return nil
	default:
		s.logg.Debug(ctx, "unhandled stripe event type")
		return nil
	}
}
