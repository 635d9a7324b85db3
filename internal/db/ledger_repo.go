package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"heliogate/internal/intake"
	"heliogate/internal/types"
)

// LedgerRepository is the PostgreSQL implementation of intake.Ledger, backed
// by the invoices and invoice_payments tables.
type LedgerRepository struct {
	db    DBTX
	newID func() string
}

// NewLedgerRepository creates a ledger over db.
func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{
		db:    db,
		newID: func() string { return uuid.New().String() },
	}
}

// ResolveInvoice returns the canonical id of the invoice named by ref if it
// exists and is payable through gateway.
func (r *LedgerRepository) ResolveInvoice(ctx context.Context, ref string, gateway string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM invoices
		 WHERE id = $1 AND (gateway IS NULL OR gateway = $2)`,
		ref,
		gateway,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", intake.ErrInvoiceNotFound
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to resolve invoice", err)
	}
	return id, nil
}

// IsTransactionRecorded reports whether any gateway has recorded txID.
func (r *LedgerRepository) IsTransactionRecorded(ctx context.Context, txID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoice_payments WHERE transaction_id = $1)`,
		txID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check transaction", err)
	}
	return exists, nil
}

// recordPaymentSQL inserts the payment and credits the invoice in one
// statement. When the transaction id already exists the insert yields no row,
// so the update touches nothing and zero rows are reported.
const recordPaymentSQL = `WITH inserted AS (
	INSERT INTO invoice_payments (id, invoice_id, transaction_id, amount, fee, currency, gateway)
	VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)
	ON CONFLICT (transaction_id) DO NOTHING
	RETURNING invoice_id, amount
)
UPDATE invoices AS i
SET amount_paid = i.amount_paid + ins.amount,
    status      = CASE WHEN i.amount_paid + ins.amount >= i.total THEN 'paid' ELSE i.status END,
    paid_at     = CASE WHEN i.amount_paid + ins.amount >= i.total THEN COALESCE(i.paid_at, NOW()) ELSE i.paid_at END,
    updated_at  = NOW()
FROM inserted AS ins
WHERE i.id = ins.invoice_id`

// RecordInvoicePayment applies rec atomically. A transaction id that is
// already present yields intake.ErrTransactionRecorded and changes nothing.
func (r *LedgerRepository) RecordInvoicePayment(ctx context.Context, rec types.PaymentRecord) error {
	tag, err := r.db.Exec(ctx, recordPaymentSQL,
		r.newID(),
		rec.InvoiceID,
		rec.TransactionID,
		rec.Amount.String(),
		rec.Fee.String(),
		rec.Currency,
		rec.Gateway,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return intake.ErrTransactionRecorded
		case isForeignKeyViolation(err):
			return types.NewAppError(types.ErrCodeInternalPaymentProcessing, "invoice no longer exists", err)
		default:
			return types.NewAppError(types.ErrCodeInternalDB, "failed to add payment to invoice", err)
		}
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	recorded, err := r.IsTransactionRecorded(ctx, rec.TransactionID)
	if err != nil {
		return err
	}
	if recorded {
		return intake.ErrTransactionRecorded
	}
	return types.NewAppError(types.ErrCodeInternalPaymentProcessing, "payment was not applied", nil)
}

var _ intake.Ledger = (*LedgerRepository)(nil)
