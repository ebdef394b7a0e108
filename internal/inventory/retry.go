package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage"
)

const retryBackoff = 15 * time.Millisecond

// RetryOnConflict re-runs fn while it fails with a lock conflict the caller did not pin to a
// version. Inside an outer transaction fn runs once: the outer owner decides whether to retry.
func RetryOnConflict(ctx context.Context, retries int, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if storage.InTransaction(ctx) {
		return err
	}
	for attempt := 1; attempt <= retries && apperr.IsRetryableConflict(err); attempt++ {
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
		err = fn(ctx)
	}
	return err
}
