package service

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/mmeshcher/circulation-system/internal/model"
)

const (
	defaultRetryAttempts = 5
	defaultRetryDelay    = 10 * time.Millisecond
	retryJitterFactor    = 0.3
)

// RetryOnConflict повторяет fn с экспоненциальной задержкой, пока она возвращает
// model.ErrConflict. Остальные ошибки возвращаются сразу.
// Задержки по умолчанию: 10, 20, 40, 80 мс плюс до 30% случайной добавки.
func RetryOnConflict(ctx context.Context, fn func(ctx context.Context) error) error {
	return retryOnConflict(ctx, defaultRetryAttempts, defaultRetryDelay, fn)
}

func retryOnConflict(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := base * time.Duration(1<<(attempt-1))
			delay += time.Duration(rand.Float64() * float64(delay) * retryJitterFactor)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if !model.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
