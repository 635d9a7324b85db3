package intake

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"heliogate/internal/types"
)

// Audit outcome labels. "Webhook *" labels track pipeline activity; the
// Successful/Failed labels are the transaction log the billing operators
// reconcile against.
const (
	AuditWebhookInfo  = "Webhook Info"
	AuditWebhookError = "Webhook Error"
	AuditSuccessful   = "Successful"
	AuditFailed       = "Failed"
)

// AuditLevel is the severity of an audit entry.
type AuditLevel string

const (
	AuditLevelInfo  AuditLevel = "info"
	AuditLevelError AuditLevel = "error"
)

// AuditEntry is one structured audit record.
type AuditEntry struct {
	ID         string
	Gateway    string
	Event      string
	Level      AuditLevel
	Outcome    string
	Fields     map[string]any
	RequestID  string
	RecordedAt time.Time
}

// AuditRecorder persists or emits audit entries. Implementations must not
// fail the request: errors are theirs to log.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// newAuditEntry stamps an entry with an id, request id, delivery source and
// timestamp.
func newAuditEntry(ctx context.Context, gateway, event string, level AuditLevel, outcome string, fields map[string]any, now time.Time) AuditEntry {
	if fields == nil {
		fields = map[string]any{}
	}
	if src := types.GetDeliverySource(ctx); src != "" {
		fields["delivery_source"] = src
	}
	return AuditEntry{
		ID:         uuid.New().String(),
		Gateway:    gateway,
		Event:      event,
		Level:      level,
		Outcome:    outcome,
		Fields:     fields,
		RequestID:  types.GetRequestID(ctx),
		RecordedAt: now,
	}
}

// ---------------------------------------------------------------------------
// Implementations
// ---------------------------------------------------------------------------

// LogAuditRecorder writes audit entries to a structured logger.
type LogAuditRecorder struct {
	logger *slog.Logger
}

// NewLogAuditRecorder creates a recorder that logs through logger.
func NewLogAuditRecorder(logger *slog.Logger) *LogAuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAuditRecorder{logger: logger}
}

// Record logs the entry at a level matching entry.Level.
func (r *LogAuditRecorder) Record(ctx context.Context, entry AuditEntry) {
	args := []any{
		"audit_id", entry.ID,
		"gateway", entry.Gateway,
		"outcome", entry.Outcome,
	}
	if entry.RequestID != "" {
		args = append(args, "request_id", entry.RequestID)
	}
	if len(entry.Fields) > 0 {
		fieldAttrs := make([]any, 0, len(entry.Fields)*2)
		for k, v := range entry.Fields {
			fieldAttrs = append(fieldAttrs, k, v)
		}
		args = append(args, slog.Group("data", fieldAttrs...))
	}

	if entry.Level == AuditLevelError {
		r.logger.ErrorContext(ctx, entry.Event, args...)
		return
	}
	r.logger.InfoContext(ctx, entry.Event, args...)
}

// MultiRecorder fans an entry out to several recorders in order.
type MultiRecorder []AuditRecorder

// Record forwards entry to every non-nil recorder.
func (m MultiRecorder) Record(ctx context.Context, entry AuditEntry) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, entry)
		}
	}
}

// Compile-time assertions.
var (
	_ AuditRecorder = (*LogAuditRecorder)(nil)
	_ AuditRecorder = MultiRecorder(nil)
)
