package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/slye-labs/slye-backend/pkg/logger"
)

const defaultStaleAfter = 10 * time.Minute

type stalePendingFailer interface {
	FailStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type StalePendingJobParams struct {
	Logger      *logger.Logger
	Generations stalePendingFailer
	StaleAfter  time.Duration
	BatchSize   int
}

// NewStalePendingJob fails and refunds generations that were reserved but never submitted.
func NewStalePendingJob(params StalePendingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Generations == nil {
		return nil, fmt.Errorf("generations service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSyncBatchSize
	}
	return &stalePendingJob{logg: params.Logger, gens: params.Generations, staleAfter: staleAfter, batch: batch}, nil
}

type stalePendingJob struct {
	logg       *logger.Logger
	gens       stalePendingFailer
	staleAfter time.Duration
	batch      int
}

func (j *stalePendingJob) Name() string { return "stale-pending" }

func (j *stalePendingJob) Run(ctx context.Context) error {
	failed, err := j.gens.FailStalePending(ctx, j.staleAfter, j.batch)
	if failed > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"refunded":    failed,
			"stale_after": j.staleAfter.String(),
		}), "refunded generations that never reached the backend")
	}
	if err != nil {
		return fmt.Errorf("fail stale pending: %w", err)
	}
	return nil
}
