package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/slye-labs/slye-backend/pkg/db/models"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
	"github.com/slye-labs/slye-backend/pkg/logger"
)

const defaultSyncBatchSize = 50

type generationSyncer interface {
	ListProcessing(ctx context.Context, cutoff time.Time, limit int) ([]models.Generation, error)
	SyncRecord(ctx context.Context, gen *models.Generation) (*models.Generation, error)
}

type GenerationSyncJobParams struct {
	Logger      *logger.Logger
	Generations generationSyncer
	// MinAge skips rows touched more recently than one poll interval.
	MinAge    time.Duration
	BatchSize int
}

// NewGenerationSyncJob reconciles processing generations whose client stopped polling.
func NewGenerationSyncJob(params GenerationSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Generations == nil {
		return nil, fmt.Errorf("generations service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSyncBatchSize
	}
	return &generationSyncJob{
		logg:   params.Logger,
		gens:   params.Generations,
		minAge: params.MinAge,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type generationSyncJob struct {
	logg   *logger.Logger
	gens   generationSyncer
	minAge time.Duration
	batch  int
	now    func() time.Time
}

func (j *generationSyncJob) Name() string { return "generation-sync" }

// Run stops at the first rate-limited row and leaves the rest for the next tick.
func (j *generationSyncJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.minAge)
	rows, err := j.gens.ListProcessing(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list processing generations: %w", err)
	}

	var errs error
	synced, terminal := 0, 0
	for i := range rows {
		gen, err := j.gens.SyncRecord(ctx, &rows[i])
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeRateLimit) {
				j.logg.Warn(j.logg.WithField(ctx, "remaining", len(rows)-i), "backend rate limited; deferring remaining generations")
				break
			}
			errs = multierr.Append(errs, fmt.Errorf("generation %s: %w", rows[i].ID, err))
			continue
		}
		synced++
		if gen.Status.IsTerminal() {
			terminal++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(rows),
		"synced":     synced,
		"terminal":   terminal,
		"failed":     len(multierr.Errors(errs)),
	}), "generation sync complete")
	return errs
}
