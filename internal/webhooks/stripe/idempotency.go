package stripewebhook

import (
	"context"
	"errors"

	"github.com/slye-labs/slye-backend/pkg/outbox/idempotency"
)

// Consumer namespaces webhook event ids in the idempotency store.
const Consumer = "stripe-webhook"

// IdempotencyGuard dedupes Stripe event ids so redeliveries do not reprocess.
type IdempotencyGuard struct {
	manager *idempotency.Manager
}

func NewIdempotencyGuard(manager *idempotency.Manager) (*IdempotencyGuard, error) {
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	return &IdempotencyGuard{manager: manager}, nil
}

// CheckAndMark claims eventID and reports whether it was already claimed.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	first, err := g.manager.Claim(ctx, Consumer, eventID)
	if err != nil {
		return false, err
	}
	return !first, nil
}

// Delete releases the claim after a failed attempt so Stripe's retry is processed.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	return g.manager.Release(ctx, Consumer, eventID)
}
