package generations

import (
	"context"
	"time"

	"github.com/slye-labs/slye-backend/pkg/db/models"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
)

const maxPollInterval = time.Minute

// SyncFunc fetches the latest state of one generation.
type SyncFunc func(ctx context.Context) (*models.Generation, error)

// PollUntilTerminal calls sync every interval until the generation completes or fails.
// A rate-limited sync doubles the interval (capped at one minute); any other
// error stops polling.
func PollUntilTerminal(ctx context.Context, sync SyncFunc, interval time.Duration) (*models.Generation, error) {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	wait := interval
	for {
		gen, err := sync(ctx)
		switch {
		case err == nil && gen.Status.IsTerminal():
			return gen, nil
		case err == nil:
			wait = interval
		case pkgerrors.Is(err, pkgerrors.CodeRateLimit):
			wait *= 2
			if wait > maxPollInterval {
				wait = maxPollInterval
			}
		default:
			return nil, err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
