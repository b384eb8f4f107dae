package payments

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/slye-labs/slye-backend/internal/credits"
	"github.com/slye-labs/slye-backend/pkg/enums"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
)

// ErrSessionUnpaid marks a session that is valid but not paid yet. The webhook
// acknowledges it; the confirmation redirect reports it to the user.
var ErrSessionUnpaid = errors.New("checkout session not paid")

const (
	metaPackageID = "packageId"
	metaCredits   = "credits"
	metaUserID    = "userId"
)

func integrity(msg string) error {
	return pkgerrors.New(pkgerrors.CodeIntegrity, msg)
}

// checkSession covers the session-level checks: paid, payment mode, and the
// purchasing user. It returns the resolved user id.
func checkSession(sess *stripe.CheckoutSession) (uuid.UUID, error) {
	if sess == nil {
		return uuid.Nil, integrity("Missing checkout session.")
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrSessionUnpaid, "Payment not completed.")
	}
	if sess.Mode != stripe.CheckoutSessionModePayment {
		return uuid.Nil, integrity("Unexpected checkout session mode.")
	}
	return sessionUserID(sess)
}

// sessionUserID reads the purchaser from client_reference_id and metadata.userId.
// Both may be present; they must then agree.
func sessionUserID(sess *stripe.CheckoutSession) (uuid.UUID, error) {
	reference := strings.TrimSpace(sess.ClientReferenceID)
	fromMeta := strings.TrimSpace(sess.Metadata[metaUserID])
	if reference == "" && fromMeta == "" {
		return uuid.Nil, integrity("Missing session user reference.")
	}
	if reference != "" && fromMeta != "" && reference != fromMeta {
		return uuid.Nil, integrity("Session user mismatch detected.")
	}
	raw := reference
	if raw == "" {
		raw = fromMeta
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, integrity("Invalid session user reference.")
	}
	return id, nil
}

// buildGrant checks the package and the single line item against the catalog
// and produces the grant command.
func buildGrant(sess *stripe.CheckoutSession, userID uuid.UUID, items []*stripe.LineItem, catalog *Catalog) (credits.SessionGrant, error) {
	packageID := strings.TrimSpace(sess.Metadata[metaPackageID])
	if packageID == "" {
		return credits.SessionGrant{}, integrity("Missing package metadata.")
	}
	pkg, err := catalog.Get(packageID)
	if err != nil {
		return credits.SessionGrant{}, integrity("Invalid credit package.")
	}

	switch {
	case len(items) > 1:
		return credits.SessionGrant{}, integrity("Unexpected multiple line items.")
	case len(items) == 0 || items[0] == nil:
		return credits.SessionGrant{}, integrity("Missing checkout line item.")
	}
	item := items[0]
	if item.Price == nil {
		return credits.SessionGrant{}, integrity("Missing line item amount.")
	}
	currency := enums.Currency(strings.ToLower(string(item.Price.Currency)))
	if currency == "" {
		return credits.SessionGrant{}, integrity("Missing line item currency.")
	}
	if item.Quantity != 1 {
		return credits.SessionGrant{}, integrity("Invalid line item quantity.")
	}
	if currency != pkg.Currency {
		return credits.SessionGrant{}, integrity("Currency mismatch.")
	}
	if item.Price.UnitAmount != pkg.PriceMinor {
		return credits.SessionGrant{}, integrity("Price mismatch.")
	}

	granted := pkg.Credits * int(item.Quantity)
	if granted <= 0 {
		return credits.SessionGrant{}, integrity("Invalid credit amount.")
	}
	return credits.SessionGrant{
		UserID:      userID,
		SessionID:   sess.ID,
		PackageID:   pkg.ID,
		Credits:     granted,
		AmountMinor: item.Price.UnitAmount * item.Quantity,
		Currency:    currency,
	}, nil
}
