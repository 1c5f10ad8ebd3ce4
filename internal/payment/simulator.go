package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultDelay       = 2 * time.Second
	DefaultSuccessRate = 0.8
	DefaultCurrency    = "USD"
)

// 一定時間待ってから確率で成功/失敗を返す
type Simulator struct {
	delay       time.Duration
	successRate float64
	randFloat   func() float64
	now         func() time.Time
}

type Option func(*Simulator)

func WithDelay(d time.Duration) Option {
	return func(s *Simulator) {
		if d >= 0 {
			s.delay = d
		}
	}
}

func WithSuccessRate(rate float64) Option {
	return func(s *Simulator) {
		if rate >= 0 && rate <= 1 {
			s.successRate = rate
		}
	}
}

// [0,1)の乱数源
func WithRand(f func() float64) Option {
	return func(s *Simulator) { s.randFloat = f }
}

func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		delay:       DefaultDelay,
		successRate: DefaultSuccessRate,
		randFloat:   rand.Float64,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Simulate(ctx context.Context, req Request) (Receipt, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return Receipt{}, &DeclinedError{
				Code:    "PAYMENT_CANCELLED",
				Message: "Payment was cancelled before completion",
				Cause:   ctx.Err(),
			}
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Receipt{}, &DeclinedError{
			Code:    "PAYMENT_CANCELLED",
			Message: "Payment was cancelled before completion",
			Cause:   err,
		}
	}

	if s.randFloat() >= s.successRate {
		return Receipt{}, &DeclinedError{
			Code:    "PAYMENT_FAILED",
			Message: "Payment could not be processed. Please try again.",
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	now := s.now()
	return Receipt{
		TransactionID: NewTransactionID(now),
		Amount:        req.Amount,
		Currency:      currency,
		Message:       "Payment processed successfully",
		Timestamp:     now.UTC(),
	}, nil
}

// TXN_<unix ms>_<英数字9桁>
func NewTransactionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("TXN_%d_%s", now.UnixMilli(), suffix)
}
