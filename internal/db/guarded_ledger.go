package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"heliogate/internal/intake"
	"heliogate/internal/types"
)

// BreakerSettings configures the ledger circuit breaker.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// Interval clears closed-state counts. Zero never clears them.
	Interval time.Duration
}

// GuardedLedger wraps an intake.Ledger in a circuit breaker so a failing
// database is answered quickly with a retryable error instead of holding
// deliveries on connection timeouts.
type GuardedLedger struct {
	next    intake.Ledger
	breaker *gobreaker.CircuitBreaker[any]
}

// NewGuardedLedger wraps next.
func NewGuardedLedger(next intake.Ledger, settings BreakerSettings, logger *slog.Logger) *GuardedLedger {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := settings.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "ledger",
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isLedgerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &GuardedLedger{next: next, breaker: cb}
}

// isLedgerSuccess treats the ledger's business answers as healthy calls;
// only infrastructure errors count towards tripping.
func isLedgerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, intake.ErrInvoiceNotFound) ||
		errors.Is(err, intake.ErrTransactionRecorded)
}

// State exposes the breaker state for health reporting.
func (g *GuardedLedger) State() gobreaker.State {
	return g.breaker.State()
}

func (g *GuardedLedger) ResolveInvoice(ctx context.Context, ref string, gateway string) (string, error) {
	v, err := g.breaker.Execute(func() (any, error) {
		return g.next.ResolveInvoice(ctx, ref, gateway)
	})
	if err != nil {
		return "", mapBreakerError(err)
	}
	return v.(string), nil
}

func (g *GuardedLedger) IsTransactionRecorded(ctx context.Context, txID string) (bool, error) {
	v, err := g.breaker.Execute(func() (any, error) {
		return g.next.IsTransactionRecorded(ctx, txID)
	})
	if err != nil {
		return false, mapBreakerError(err)
	}
	return v.(bool), nil
}

func (g *GuardedLedger) RecordInvoicePayment(ctx context.Context, rec types.PaymentRecord) error {
	_, err := g.breaker.Execute(func() (any, error) {
		return nil, g.next.RecordInvoicePayment(ctx, rec)
	})
	if err != nil {
		return mapBreakerError(err)
	}
	return nil
}

func mapBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUnavailableLedger, "ledger temporarily unavailable", err)
	}
	return err
}

var _ intake.Ledger = (*GuardedLedger)(nil)
