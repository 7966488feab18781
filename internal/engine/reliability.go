package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/spaceai-roles-modifier/internal/connectors"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
	"github.com/xela07ax/spaceai-roles-modifier/internal/infra"
)

var (
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrCircuitOpen = errors.New("avatar circuit open")
)

const breakerName = "avatar"

type ReliabilityWrapper struct {
	next    ExecutionProvider
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	attempts uint
	delay    time.Duration
	timeout  time.Duration
}

func NewReliabilityWrapper(next ExecutionProvider, cfg infra.EngineConfig, metrics *Metrics, logger *zap.Logger) *ReliabilityWrapper {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// отмена со стороны клиента не считается отказом avatar
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &ReliabilityWrapper{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(limit, burst),
		attempts: attempts,
		delay:    cfg.RetryDelay,
		timeout:  10 * time.Second,
	}
}

// Execute: rate limiter -> circuit breaker -> retry (только транспорт и ThrottleError).
// Ответ avatar с success=false валиден, его не ретраим.
func (w *ReliabilityWrapper) Execute(ctx context.Context, call domain.Call) (domain.ExecutionResult, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	var result domain.ExecutionResult

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		opts := []retry.Option{
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.LastErrorOnly(true),
			retry.RetryIf(isRetryable),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// avatar сам сказал, когда повторить
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				// В остальных случаях — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		}
		if w.delay > 0 {
			opts = append(opts, retry.Delay(w.delay))
		}

		retryErr := retry.New(opts...).Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()

			res, callErr := w.next.Execute(tCtx, call)
			if callErr != nil {
				return callErr
			}
			result = res
			return nil
		})
		return nil, retryErr
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.ExecutionResult{}, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	return result, nil
}

// isRetryable: ошибку исполнения avatar (ErrExecutionFailed) повторять бессмысленно.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var tErr *connectors.ThrottleError
	if errors.As(err, &tErr) {
		return true
	}
	return !errors.Is(err, connectors.ErrExecutionFailed)
}
