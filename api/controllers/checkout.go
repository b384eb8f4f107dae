package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/api/middleware"
	"github.com/slye-labs/slye-backend/internal/credits"
	"github.com/slye-labs/slye-backend/pkg/config"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
)

const (
	creditsPagePath = "/dashboard/credits"
	loginPagePath   = "/login"

	msgLoginToPurchase = "Please log in to purchase credits."
	msgLoginToConfirm  = "Please log in to finish checkout."
	msgCreditsAdded    = "Credits added successfully."
	msgCreditsExisting = "Credits were already added for this purchase."
	msgGenericFailure  = "Something went wrong. Please try again."
)

type checkoutCreator interface {
	CreateCheckout(ctx context.Context, userID uuid.UUID, packageID string) (string, error)
}

type checkoutConfirmer interface {
	Confirm(ctx context.Context, sessionID string, callerID uuid.UUID) (credits.GrantResult, error)
}

// CreditCheckout opens a Stripe Checkout Session and sends the browser to it.
// Both outcomes are redirects; failures land on the credits page with ?error=.
func CreditCheckout(svc checkoutCreator, authCfg config.AuthConfig, origin string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, err := middleware.Authenticate(authCfg, r)
		if err != nil {
			redirectWithMessage(w, r, origin, loginPagePath, "error", msgLoginToPurchase)
			return
		}
		ctx = logg.WithUserID(ctx, userID.String())

		sessionURL, err := svc.CreateCheckout(ctx, userID, strings.TrimSpace(r.URL.Query().Get("package")))
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "checkout.create_failed")
			redirectWithMessage(w, r, origin, creditsPagePath, "error", redirectMessage(err))
			return
		}
		http.Redirect(w, r, sessionURL, http.StatusSeeOther)
	}
}

// ConfirmCheckout verifies the session the browser returned with and grants
// its credits through the same idempotent path as the webhook.
func ConfirmCheckout(svc checkoutConfirmer, authCfg config.AuthConfig, origin string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if sessionID == "" {
			redirectWithMessage(w, r, origin, creditsPagePath, "error", "Missing checkout session.")
			return
		}

		userID, err := middleware.Authenticate(authCfg, r)
		if err != nil {
			redirectWithMessage(w, r, origin, loginPagePath, "error", msgLoginToConfirm)
			return
		}
		ctx = logg.WithSessionID(logg.WithUserID(ctx, userID.String()), sessionID)

		result, err := svc.Confirm(ctx, sessionID, userID)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "checkout.confirm_failed")
			redirectWithMessage(w, r, origin, creditsPagePath, "error", redirectMessage(err))
			return
		}
		if result.AlreadyProcessed {
			redirectWithMessage(w, r, origin, creditsPagePath, "success", msgCreditsExisting)
			return
		}
		logg.Info(logg.WithField(ctx, "balance", result.Balance), "checkout.confirmed")
		redirectWithMessage(w, r, origin, creditsPagePath, "success", msgCreditsAdded)
	}
}

// redirectMessage picks the user-facing text for a failed redirect flow.
func redirectMessage(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() == pkgerrors.CodeInternal || typed.Message() == "" {
		return msgGenericFailure
	}
	return typed.Message()
}

func redirectWithMessage(w http.ResponseWriter, r *http.Request, origin, path, key, message string) {
	q := url.Values{}
	q.Set(key, message)
	http.Redirect(w, r, strings.TrimRight(origin, "/")+path+"?"+q.Encode(), http.StatusSeeOther)
}
