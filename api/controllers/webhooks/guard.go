package webhooks

import (
	"context"
	"time"

	pkgerrors "github.com/tecnoshop/storefront-backend/pkg/errors"
	pkgredis "github.com/tecnoshop/storefront-backend/pkg/redis"
)

const guardScope = "square_webhook"

// RedisEventGuard deduplicates webhook deliveries with a SetNX marker per
// event id. A delivery is marked before processing and unmarked on failure.
type RedisEventGuard struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
}

func NewRedisEventGuard(store pkgredis.IdempotencyStore, ttl time.Duration) (*RedisEventGuard, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency store required")
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisEventGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark returns true when the event was already seen, otherwise marks
// it and returns false.
func (g *RedisEventGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(guardScope, eventID), "1", g.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

func (g *RedisEventGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(guardScope, eventID))
}
