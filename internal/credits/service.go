// Package credits implements the credit ledger: balances plus the append-only transaction log.
package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/enums"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
	"github.com/slye-labs/slye-backend/pkg/outbox"
	"github.com/slye-labs/slye-backend/pkg/outbox/payloads"
	"github.com/slye-labs/slye-backend/pkg/pagination"
)

const insufficientCreditsMessage = "Insufficient credits."

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the ledger API used by the orchestrator and payment reconciliation.
type Service struct {
	db     txRunner
	repo   Repository
	events eventEmitter
	logg   *logger.Logger
}

type ServiceParams struct {
	DB         txRunner
	Repository Repository
	Outbox     eventEmitter
	Logger     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("credits db is required")
	}
	if params.Repository == nil {
		return nil, errors.New("credits repository is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox service is required")
	}
	return &Service{db: params.DB, repo: params.Repository, events: params.Outbox, logg: params.Logger}, nil
}

// ReserveInput debits credits for a generation.
type ReserveInput struct {
	UserID       uuid.UUID
	Amount       int
	Description  string
	GenerationID *uuid.UUID
}

// RefundInput returns previously reserved credits.
type RefundInput struct {
	UserID       uuid.UUID
	Amount       int
	Description  string
	GenerationID *uuid.UUID
}

// GrantInput credits a user outside the payment flow (bonus, manual adjustment).
type GrantInput struct {
	UserID      uuid.UUID
	Amount      int
	Type        enums.CreditTransactionType
	Description string
	ExternalRef string
}

// SessionGrant is the single command both payment entry points submit once a
// checkout session passes verification.
type SessionGrant struct {
	UserID      uuid.UUID
	SessionID   string
	PackageID   string
	Credits     int
	AmountMinor int64
	Currency    enums.Currency
}

type GrantResult struct {
	AlreadyProcessed bool
	Balance          int
	TransactionID    uuid.UUID
}

type TransactionPage struct {
	Transactions []models.CreditTransaction
	NextCursor   string
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "Profile not found.")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to load balance")
	}
	return profile.Credits, nil
}

// Reserve debits amount inside tx with a conditional decrement and appends a usage row.
func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, input ReserveInput) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if input.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reserve amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	ok, err := repo.DecrementIfSufficient(ctx, input.UserID, input.Amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "Credit update failed.")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInsufficientCredits, insufficientCreditsMessage)
	}
	row := &models.CreditTransaction{
		UserID:       input.UserID,
		Amount:       -input.Amount,
		Type:         enums.CreditTransactionUsage,
		Description:  optionalString(input.Description),
		GenerationID: input.GenerationID,
	}
	if err := repo.InsertTransaction(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "Credit update failed.")
	}
	return nil
}

// Refund credits amount back inside tx and queues a credits_refunded event.
func (s *Service) Refund(ctx context.Context, tx *gorm.DB, input RefundInput) (int, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	if input.Amount <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	balance, err := repo.Increment(ctx, input.UserID, input.Amount)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to refund credits")
	}
	row := &models.CreditTransaction{
		UserID:       input.UserID,
		Amount:       input.Amount,
		Type:         enums.CreditTransactionRefund,
		Description:  optionalString(input.Description),
		GenerationID: input.GenerationID,
	}
	if err := repo.InsertTransaction(ctx, row); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to record refund")
	}
	if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCreditsRefunded,
		AggregateType: enums.AggregateProfile,
		AggregateID:   input.UserID,
		Data: payloads.CreditsRefundedEvent{
			UserID:        input.UserID,
			TransactionID: row.ID,
			GenerationID:  input.GenerationID,
			Credits:       input.Amount,
			Reason:        input.Description,
			Balance:       balance,
		},
	}); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to queue refund event")
	}
	return balance, nil
}

// Grant credits a user in its own transaction. When ExternalRef is set the
// grant happens at most once per reference.
func (s *Service) Grant(ctx context.Context, input GrantInput) (GrantResult, error) {
	if input.Amount <= 0 {
		return GrantResult{}, pkgerrors.New(pkgerrors.CodeValidation, "grant amount must be positive")
	}
	if input.Type.IsDebit() || !input.Type.IsValid() {
		return GrantResult{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid grant type %q", input.Type))
	}
	var result GrantResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row := &models.CreditTransaction{
			UserID:          input.UserID,
			Amount:          input.Amount,
			Type:            input.Type,
			Description:     optionalString(input.Description),
			StripePaymentID: optionalString(input.ExternalRef),
		}
		if row.StripePaymentID != nil {
			inserted, err := repo.InsertTransactionIfAbsent(ctx, row)
			if err != nil {
				return err
			}
			if !inserted {
				result.AlreadyProcessed = true
				return nil
			}
		} else if err := repo.InsertTransaction(ctx, row); err != nil {
			return err
		}
		balance, err := repo.Increment(ctx, input.UserID, input.Amount)
		if err != nil {
			return err
		}
		result.Balance = balance
		result.TransactionID = row.ID
		return nil
	})
	if err != nil {
		return GrantResult{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to grant credits")
	}
	return result, nil
}

// GrantForSession applies a verified checkout session exactly once. The purchase
// row insert is conditional on the session id; only the winner increments the
// balance and emits credits_purchased.
func (s *Service) GrantForSession(ctx context.Context, cmd SessionGrant) (GrantResult, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return GrantResult{}, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if cmd.UserID == uuid.Nil {
		return GrantResult{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if cmd.Credits <= 0 {
		return GrantResult{}, pkgerrors.New(pkgerrors.CodeIntegrity, "credit amount must be positive")
	}

	var result GrantResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row := &models.CreditTransaction{
			UserID:          cmd.UserID,
			Amount:          cmd.Credits,
			Type:            enums.CreditTransactionPurchase,
			Description:     optionalString(fmt.Sprintf("Purchased %s package", cmd.PackageID)),
			StripePaymentID: &sessionID,
		}
		inserted, err := repo.InsertTransactionIfAbsent(ctx, row)
		if err != nil {
			return err
		}
		if !inserted {
			result.AlreadyProcessed = true
			profile, err := repo.GetProfile(ctx, cmd.UserID)
			if err == nil {
				result.Balance = profile.Credits
			}
			return nil
		}

		balance, err := repo.Increment(ctx, cmd.UserID, cmd.Credits)
		if err != nil {
			return err
		}
		result.Balance = balance
		result.TransactionID = row.ID

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditsPurchased,
			AggregateType: enums.AggregateProfile,
			AggregateID:   cmd.UserID,
			Actor:         &outbox.ActorRef{UserID: cmd.UserID, Source: "stripe"},
			Data: payloads.CreditsPurchasedEvent{
				UserID:        cmd.UserID,
				TransactionID: row.ID,
				SessionID:     sessionID,
				PackageID:     cmd.PackageID,
				Credits:       cmd.Credits,
				AmountMinor:   cmd.AmountMinor,
				Currency:      cmd.Currency,
				Balance:       balance,
			},
		})
	})
	if err != nil {
		return GrantResult{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to grant credits")
	}

	if s.logg != nil {
		logCtx := s.logg.WithSessionID(ctx, sessionID)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"user_id":           cmd.UserID.String(),
			"package_id":        cmd.PackageID,
			"credits":           cmd.Credits,
			"already_processed": result.AlreadyProcessed,
		})
		s.logg.Info(logCtx, "checkout session grant applied")
	}
	return result, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (TransactionPage, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return TransactionPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListTransactions(ctx, userID, params)
	if err != nil {
		return TransactionPage{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "failed to list transactions")
	}
	return TransactionPage{Transactions: rows, NextCursor: next}, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
