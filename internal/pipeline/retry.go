package pipeline

import (
	"context"
	"time"

	"go-reconcile-pipeline/internal/model"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// newBackOff builds the exponential schedule described by cfg.
func newBackOff(cfg model.RetryConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		b.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		b.MaxInterval = cfg.MaxDelay
	}
	if cfg.BackoffMultiplier >= 1 {
		b.Multiplier = cfg.BackoffMultiplier
	}
	if !cfg.Jitter {
		b.RandomizationFactor = 0
	}
	return b
}

// withRetry runs op until it succeeds, returns a permanent error, the
// context ends or cfg.MaxAttempts is reached. The last error is returned.
func withRetry[T any](ctx context.Context, cfg model.RetryConfig, logger *zap.Logger, opName string, op func() (T, error)) (T, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return backoff.Retry(ctx, backoff.Operation[T](op),
		backoff.WithBackOff(newBackOff(cfg)),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("retrying",
				zap.String("operation", opName),
				zap.Error(err),
				zap.Duration("next_attempt_in", next),
			)
		}),
	)
}
