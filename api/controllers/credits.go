package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/api/middleware"
	"github.com/slye-labs/slye-backend/api/responses"
	"github.com/slye-labs/slye-backend/internal/credits"
	"github.com/slye-labs/slye-backend/internal/payments"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
	"github.com/slye-labs/slye-backend/pkg/pagination"
)

type creditReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (credits.TransactionPage, error)
}

type packageLister interface {
	List() []payments.Package
}

func CreditBalance(svc creditReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized"))
			return
		}
		balance, err := svc.GetBalance(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{Credits: balance})
	}
}

// ListCreditTransactions returns the caller's ledger entries, newest first.
func ListCreditTransactions(svc creditReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized"))
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := svc.ListTransactions(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		resp := transactionListResponse{
			Transactions: make([]transactionResponse, 0, len(page.Transactions)),
			NextCursor:   page.NextCursor,
		}
		for _, txn := range page.Transactions {
			resp.Transactions = append(resp.Transactions, newTransactionResponse(txn))
		}
		responses.WriteSuccess(w, resp)
	}
}

func ListCreditPackages(catalog packageLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pkgs := catalog.List()
		resp := make([]packageResponse, 0, len(pkgs))
		for _, pkg := range pkgs {
			resp = append(resp, packageResponse{Package: pkg, DisplayPrice: pkg.DisplayPrice()})
		}
		responses.WriteSuccess(w, map[string]any{"packages": resp})
	}
}
