package generations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/enums"
	"github.com/slye-labs/slye-backend/pkg/pagination"
)

var activeStatuses = []enums.GenerationStatus{enums.GenerationStatusPending, enums.GenerationStatusProcessing}

// Repository persists generations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, gen *models.Generation) error
	Get(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Generation, error)
	FindByTaskID(ctx context.Context, taskID string) (*models.Generation, error)
	UpdateIfActive(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	Touch(ctx context.Context, id uuid.UUID) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Generation, string, error)
	ListByStatus(ctx context.Context, status enums.GenerationStatus, updatedBefore time.Time, limit int) ([]models.Generation, error)
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

func (r *repository) Create(ctx context.Context, gen *models.Generation) error {
	if gen == nil {
		return errors.New("generation required")
	}
	if gen.ID == uuid.Nil {
		gen.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(gen).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	var gen models.Generation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&gen).Error; err != nil {
		return nil, err
	}
	return &gen, nil
}

// GetForUser scopes the lookup to the owner; another user's id behaves like a missing row.
func (r *repository) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Generation, error) {
	var gen models.Generation
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&gen).Error; err != nil {
		return nil, err
	}
	return &gen, nil
}

// FindByTaskID matches the current taskId key and the legacy kieTaskId key.
func (r *repository) FindByTaskID(ctx context.Context, taskID string) (*models.Generation, error) {
	current, legacy := "json_extract(metadata, '$.taskId')", "json_extract(metadata, '$.kieTaskId')"
	if r.db.Dialector.Name() == "postgres" {
		current, legacy = "metadata->>'taskId'", "metadata->>'kieTaskId'"
	}
	var gen models.Generation
	err := r.db.WithContext(ctx).
		Where(current+" = ? OR "+legacy+" = ?", taskID, taskID).
		Order("created_at DESC").
		First(&gen).Error
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

// UpdateIfActive applies updates only while the row is pending or processing.
// It reports false when another writer already moved the row to a terminal state.
func (r *repository) UpdateIfActive(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Generation{}).
		Where("id = ? AND status IN ?", id, activeStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Touch bumps updated_at on an active row without changing anything else.
func (r *repository) Touch(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.UpdateIfActive(ctx, id, map[string]any{})
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Generation, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	var rows []models.Generation
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Scopes(pagination.After(cursor, params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Split(rows, params.Limit, func(row models.Generation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}

func (r *repository) ListByStatus(ctx context.Context, status enums.GenerationStatus, updatedBefore time.Time, limit int) ([]models.Generation, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Generation
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
