// Package payments sells credit packages through Stripe Checkout and converges
// the confirmation redirect and the webhook on one verified, idempotent grant.
package payments

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/slye-labs/slye-backend/internal/credits"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
	"github.com/slye-labs/slye-backend/pkg/metrics"
)

// Grant sources used for logs and metrics.
const (
	SourceConfirm = "confirm"
	SourceWebhook = "webhook"
)

type sessionGranter interface {
	GrantForSession(ctx context.Context, cmd credits.SessionGrant) (credits.GrantResult, error)
}

type Service struct {
	gateway Gateway
	catalog *Catalog
	ledger  sessionGranter
	metrics *metrics.DomainMetrics
	logg    *logger.Logger
	origin  string
}

type ServiceParams struct {
	Gateway Gateway
	Catalog *Catalog
	Ledger  sessionGranter
	Metrics *metrics.DomainMetrics
	Logger  *logger.Logger
	// Origin is the public app origin used for checkout redirect URLs.
	Origin string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe gateway required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credit ledger required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	catalog := params.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Service{
		gateway: params.Gateway,
		catalog: catalog,
		ledger:  params.Ledger,
		metrics: params.Metrics,
		logg:    params.Logger,
		origin:  strings.TrimRight(params.Origin, "/"),
	}, nil
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// CreateCheckout opens a payment-mode Checkout Session for one package and returns its URL.
func (s *Service) CreateCheckout(ctx context.Context, userID uuid.UUID, packageID string) (string, error) {
	if strings.TrimSpace(packageID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "Missing package selection.")
	}
	pkg, err := s.catalog.Get(packageID)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "Invalid credit package.")
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(pkg.Currency)),
				UnitAmount: stripe.Int64(pkg.PriceMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(pkg.Name + " Credits"),
				},
			},
		}},
		SuccessURL:        stripe.String(s.origin + "/api/v1/credits/confirm?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.origin + "/dashboard/credits?canceled=1"),
		ClientReferenceID: stripe.String(userID.String()),
	}
	params.AddMetadata(metaPackageID, pkg.ID)
	params.AddMetadata(metaCredits, strconv.Itoa(pkg.Credits))
	params.AddMetadata(metaUserID, userID.String())

	sess, err := s.gateway.CreateSession(ctx, params)
	if err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, userID.String()), "stripe checkout session create failed", err)
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Stripe session could not be created.")
	}
	if sess == nil || sess.URL == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "Stripe session could not be created.")
	}
	return sess.URL, nil
}

// Confirm runs the verification chain for a user returning from checkout.
// The session must belong to callerID.
func (s *Service) Confirm(ctx context.Context, sessionID string, callerID uuid.UUID) (credits.GrantResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return credits.GrantResult{}, pkgerrors.New(pkgerrors.CodeValidation, "Missing checkout session.")
	}
	return s.reconcile(ctx, sessionID, &callerID, SourceConfirm)
}

// ReconcileSession runs the verification chain for a webhook-delivered session.
// An unpaid session returns an error wrapping ErrSessionUnpaid.
func (s *Service) ReconcileSession(ctx context.Context, sessionID string) (credits.GrantResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return credits.GrantResult{}, integrity("Missing checkout session.")
	}
	return s.reconcile(ctx, strings.TrimSpace(sessionID), nil, SourceWebhook)
}

func (s *Service) reconcile(ctx context.Context, sessionID string, callerID *uuid.UUID, source string) (credits.GrantResult, error) {
	ctx = s.logg.WithSessionID(ctx, sessionID)

	sess, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		s.metrics.CreditGrant(source, metrics.OutcomeFailure)
		s.logg.Error(ctx, "stripe checkout session lookup failed", err)
		return credits.GrantResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Unable to load checkout session.")
	}

	userID, err := checkSession(sess)
	if err != nil {
		return credits.GrantResult{}, s.reject(ctx, source, err)
	}
	if callerID != nil && *callerID != userID {
		return credits.GrantResult{}, s.reject(ctx, source, pkgerrors.New(pkgerrors.CodeForbidden, "Account mismatch detected."))
	}

	items, err := s.gateway.ListLineItems(ctx, sess.ID)
	if err != nil {
		s.metrics.CreditGrant(source, metrics.OutcomeFailure)
		s.logg.Error(ctx, "stripe line item lookup failed", err)
		return credits.GrantResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Unable to load checkout line items.")
	}

	cmd, err := buildGrant(sess, userID, items, s.catalog)
	if err != nil {
		return credits.GrantResult{}, s.reject(ctx, source, err)
	}

	result, err := s.ledger.GrantForSession(ctx, cmd)
	if err != nil {
		s.metrics.CreditGrant(source, metrics.OutcomeFailure)
		s.logg.Error(ctx, "credit grant failed", err)
		return credits.GrantResult{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "Failed to record credit purchase.")
	}
	if result.AlreadyProcessed {
		s.metrics.CreditGrant(source, metrics.OutcomeDuplicate)
	} else {
		s.metrics.CreditGrant(source, metrics.OutcomeSuccess)
	}
	return result, nil
}

// reject records a verification failure. Unpaid sessions are routine; every
// other failure is logged as an integrity error.
func (s *Service) reject(ctx context.Context, source string, err error) error {
	if errors.Is(err, ErrSessionUnpaid) {
		s.logg.Info(ctx, "checkout session not paid")
		s.metrics.CreditGrant(source, metrics.OutcomeRejected)
		return err
	}
	s.metrics.CreditGrant(source, metrics.OutcomeRejected)
	s.logg.Error(s.logg.WithField(ctx, "source", source), "checkout session failed verification", err)
	return err
}
