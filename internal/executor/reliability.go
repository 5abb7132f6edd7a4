package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ReliableProvider оборачивает MailProvider в Rate Limiter + Circuit Breaker
// + Retry. Ядро ретраи бизнес-действий не специфицирует — это защита
// транспорта к провайдеру, живущая на стороне исполнителя.
type ReliableProvider struct {
	next    MailProvider
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewReliableProvider(next MailProvider) *ReliableProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mail-provider",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	// Graph-подобные API душат бурсты; держим скромный лимит
	limiter := rate.NewLimiter(rate.Limit(20), 5)

	return &ReliableProvider{
		next:    next,
		cb:      cb,
		limiter: limiter,
	}
}

func (w *ReliableProvider) Do(ctx context.Context, op MailOp, messageID string, payload map[string]any) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если провайдер вернул ThrottleError (считал Retry-After заголовок)
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return w.next.Do(tCtx, op, messageID, payload)
		})

		return nil, retryErr
	})

	return err
}
