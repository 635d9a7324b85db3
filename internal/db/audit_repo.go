package db

import (
	"context"
	"encoding/json"
	"log/slog"

	"heliogate/internal/intake"
	"heliogate/internal/types"
)

// AuditRepository writes audit entries to the gateway_log table. A failed
// write is logged and swallowed; the audit trail never fails a delivery.
type AuditRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db DBTX, logger *slog.Logger) *AuditRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRepository{db: db, logger: logger}
}

// Record implements intake.AuditRecorder.
func (r *AuditRepository) Record(ctx context.Context, entry intake.AuditEntry) {
	if err := r.Insert(ctx, entry); err != nil {
		r.logger.ErrorContext(ctx, "failed to write gateway log entry",
			"audit_id", entry.ID,
			"event", entry.Event,
			"error", err,
		)
	}
}

// Insert persists one entry and reports failures to the caller.
func (r *AuditRepository) Insert(ctx context.Context, entry intake.AuditEntry) error {
	fields, err := json.Marshal(entry.Fields)
	if err != nil {
		// Values come from decoded JSON and plain scalars; fall back to an
		// empty object rather than dropping the entry.
		fields = []byte("{}")
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO gateway_log (id, gateway, event, level, outcome, request_id, fields, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		entry.ID,
		entry.Gateway,
		entry.Event,
		string(entry.Level),
		entry.Outcome,
		nilIfEmpty(entry.RequestID),
		fields,
		nilIfZeroTime(entry.RecordedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write gateway log", err)
	}
	return nil
}

var _ intake.AuditRecorder = (*AuditRepository)(nil)
