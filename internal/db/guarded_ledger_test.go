package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heliogate/internal/intake"
	"heliogate/internal/types"
)

type stubLedger struct {
	err   error
	calls int
}

func (s *stubLedger) ResolveInvoice(context.Context, string, string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "INV1", nil
}

func (s *stubLedger) IsTransactionRecorded(context.Context, string) (bool, error) {
	s.calls++
	return s.err == nil, s.err
}

func (s *stubLedger) RecordInvoicePayment(context.Context, types.PaymentRecord) error {
	s.calls++
	return s.err
}

func TestGuardedLedger_PassesThrough(t *testing.T) {
	next := &stubLedger{}
	g := NewGuardedLedger(next, BreakerSettings{ConsecutiveFailures: 2, Timeout: time.Minute}, nil)

	id, err := g.ResolveInvoice(context.Background(), "INV1", "helio")
	require.NoError(t, err)
	assert.Equal(t, "INV1", id)

	recorded, err := g.IsTransactionRecorded(context.Background(), "tx1")
	require.NoError(t, err)
	assert.True(t, recorded)

	require.NoError(t, g.RecordInvoicePayment(context.Background(), types.PaymentRecord{}))
	assert.Equal(t, 3, next.calls)
}

func TestGuardedLedger_OpensAfterFailures(t *testing.T) {
	next := &stubLedger{err: errors.New("connection refused")}
	g := NewGuardedLedger(next, BreakerSettings{ConsecutiveFailures: 2, Timeout: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		_, err := g.IsTransactionRecorded(context.Background(), "tx1")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	err := g.RecordInvoicePayment(context.Background(), types.PaymentRecord{})
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUnavailableLedger, appErr.Code)
	assert.Equal(t, 2, next.calls, "open breaker must not reach the ledger")
}

func TestGuardedLedger_BusinessErrorsDoNotTrip(t *testing.T) {
	for _, sentinel := range []error{intake.ErrInvoiceNotFound, intake.ErrTransactionRecorded} {
		next := &stubLedger{err: sentinel}
		g := NewGuardedLedger(next, BreakerSettings{ConsecutiveFailures: 1, Timeout: time.Minute}, nil)

		for i := 0; i < 3; i++ {
			err := g.RecordInvoicePayment(context.Background(), types.PaymentRecord{})
			assert.ErrorIs(t, err, sentinel)
		}
		assert.Equal(t, gobreaker.StateClosed, g.State())
		assert.Equal(t, 3, next.calls)
	}
}
