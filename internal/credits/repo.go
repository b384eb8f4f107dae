package credits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/pagination"
)

// Repository persists balances and ledger rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	DecrementIfSufficient(ctx context.Context, userID uuid.UUID, amount int) (bool, error)
	Increment(ctx context.Context, userID uuid.UUID, amount int) (int, error)
	InsertTransaction(ctx context.Context, txn *models.CreditTransaction) error
	InsertTransactionIfAbsent(ctx context.Context, txn *models.CreditTransaction) (bool, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.CreditTransaction, string, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// DecrementIfSufficient subtracts amount only when the balance covers it.
// It reports false, without error, when the balance is too low or the profile is missing.
func (r *repository) DecrementIfSufficient(ctx context.Context, userID uuid.UUID, amount int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ? AND credits >= ?", userID, amount).
		Updates(map[string]any{
			"credits":    gorm.Expr("credits - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Increment adds amount to the balance, creating the profile if needed, and returns the new balance.
func (r *repository) Increment(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	now := time.Now().UTC()
	var balance int
	err := r.db.WithContext(ctx).Raw(`
INSERT INTO profiles (id, credits, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET credits = profiles.credits + excluded.credits, updated_at = excluded.updated_at
RETURNING credits`, userID, amount, now, now).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.CreditTransaction) error {
	if txn == nil {
		return errors.New("transaction row required")
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

// InsertTransactionIfAbsent inserts txn unless its stripe_payment_id already exists.
// The unique index makes this the single conditional write that decides a grant.
func (r *repository) InsertTransactionIfAbsent(ctx context.Context, txn *models.CreditTransaction) (bool, error) {
	if txn == nil || txn.StripePaymentID == nil {
		return false, errors.New("payment reference required")
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_payment_id"}},
			DoNothing: true,
		}).
		Create(txn)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.CreditTransaction, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	var rows []models.CreditTransaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Scopes(pagination.After(cursor, params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Split(rows, params.Limit, func(row models.CreditTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}
