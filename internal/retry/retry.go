package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config holds the parameters for the retry strategy.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *zap.Logger
}

// Do executes fn with exponential back-off. It stops early when ctx is done.
func (c Config) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	delay := c.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		logger.Warn("operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}
