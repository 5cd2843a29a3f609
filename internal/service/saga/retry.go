package saga

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

// RetryConfig — параметры повторов компенсации при инфраструктурных ошибках.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = def.BackoffFactor
	}
	return c
}

// retryWithBackoff повторяет fn с экспоненциальной задержкой, пока ошибка
// временная и попытки не исчерпаны. Отмена ctx прерывает ожидание.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger *log.Entry, operation string, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("operation succeeded after retry")
			}
			return nil
		}

		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.WithError(lastErr).WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).Warn("operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	logger.WithError(lastErr).WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": cfg.MaxAttempts,
	}).Error("operation failed after all retry attempts")
	return lastErr
}

// isRetryable: бизнес-ошибки не исправятся повтором, остальные считаются временными.
func isRetryable(err error) bool {
	return !domain.IsInvalidInput(err) &&
		!domain.IsNotFound(err) &&
		!domain.IsConflict(err)
}
