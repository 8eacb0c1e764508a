// Package resilience wraps outbound adapter calls in circuit breakers.
package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// NewBreaker trips after more than five consecutive failures, or a 60%
// failure rate over at least ten requests, and probes again after 30s.
func NewBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var pass *passThrough
			return err == nil || errors.As(err, &pass)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// passThrough carries an error that says nothing about the remote side's
// health, such as a lookup miss, so it does not count toward tripping.
type passThrough struct{ err error }

func (p *passThrough) Error() string { return p.err.Error() }
func (p *passThrough) Unwrap() error { return p.err }

// Healthy marks err as a normal answer from a healthy backend.
func Healthy(err error) error {
	if err == nil {
		return nil
	}
	return &passThrough{err: err}
}

// Do runs fn through cb. Open-breaker rejections and failures are wrapped
// with domain.ErrAdapter; errors marked Healthy come back unwrapped.
func Do[T any](cb *gobreaker.CircuitBreaker, op string, fn func() (T, error)) (T, error) {
	var zero T
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var pass *passThrough
		if errors.As(err, &pass) {
			return zero, pass.err
		}
		if errors.Is(err, domain.ErrAdapter) {
			return zero, fmt.Errorf("%s: %w", op, err)
		}
		return zero, fmt.Errorf("%s: %w: %w", op, domain.ErrAdapter, err)
	}
	out, _ := res.(T)
	return out, nil
}
