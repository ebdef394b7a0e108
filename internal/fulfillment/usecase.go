package fulfillment

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/dto"
)

type UseCase interface {
	FulfillExternalOrder(ctx context.Context, input *dto.FulfillInput) (*dto.FulfillResult, error)
	ValidateOrderFulfillment(ctx context.Context, orderID string, locationID *int64) (*dto.ValidationResult, error)
}

// Locker serializes work on one order across instances. *cache.RedisClient satisfies it.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}
