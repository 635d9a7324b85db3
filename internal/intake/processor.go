// Package intake implements the Hel.io payment-confirmation pipeline.
//
// A delivery is authenticated (HMAC-SHA256 over the raw body), parsed into a
// PaymentEvent, filtered, validated, checked against the ledger and applied at
// most once per provider transaction id. Every path ends in an Outcome that
// maps to exactly one HTTP status and body; nothing is retried here, the
// provider redelivers on any non-2xx response.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"heliogate/internal/types"
)

// Response bodies returned to the provider.
const (
	MsgApplied             = "Payment processed successfully"
	MsgIgnored             = "Event ignored"
	MsgDuplicate           = "Transaction already processed"
	MsgEmptyBody           = "No data received"
	MsgMissingSignature    = "Missing signature header"
	MsgInvalidJSON         = "Invalid JSON"
	MsgMissingData         = "Missing required data"
	MsgInvalidInvoice      = "Invalid invoice ID"
	MsgNotCompleted        = "Payment not completed"
	MsgInvalidSignature    = "Invalid signature"
	MsgSecretNotConfigured = "Webhook secret not configured"
	MsgGatewayInactive     = "Module Not Activated"
	msgProcessingFailed    = "Payment processing failed: "
)

// payloadExcerptLimit bounds how much of a malformed body is written to the
// audit log.
const payloadExcerptLimit = 500

// notApplicable fills transaction-log fields the provider did not send.
const notApplicable = "N/A"

// ---------------------------------------------------------------------------
// Collaborator contracts
// ---------------------------------------------------------------------------

var (
	// ErrInvoiceNotFound is returned by InvoiceResolver when the reference
	// does not name an invoice payable through this gateway.
	ErrInvoiceNotFound = errors.New("intake: invoice not found")

	// ErrTransactionRecorded is returned by RecordInvoicePayment when the
	// transaction id already has a recorded payment. Ledgers must return it
	// instead of applying a second payment; it closes the window between
	// IsTransactionRecorded and RecordInvoicePayment.
	ErrTransactionRecorded = errors.New("intake: transaction already recorded")
)

// InvoiceResolver maps a provider-supplied invoice reference to the billing
// system's canonical invoice id.
type InvoiceResolver interface {
	ResolveInvoice(ctx context.Context, ref string, gateway string) (string, error)
}

// TransactionLedger is the system of record for applied payments.
type TransactionLedger interface {
	// IsTransactionRecorded reports whether txID has been recorded by any gateway.
	IsTransactionRecorded(ctx context.Context, txID string) (bool, error)

	// RecordInvoicePayment atomically applies a payment. It returns
	// ErrTransactionRecorded if the transaction id is already present.
	RecordInvoicePayment(ctx context.Context, rec types.PaymentRecord) error
}

// Ledger is the full collaborator surface used by the Processor.
type Ledger interface {
	InvoiceResolver
	TransactionLedger
}

// OutcomeMetrics receives one observation per processed delivery.
type OutcomeMetrics interface {
	RecordOutcome(ctx context.Context, outcome Outcome, duration time.Duration)
}

// PaymentNotifier is told about every applied payment. Failures are logged
// and never change the outcome.
type PaymentNotifier interface {
	PaymentApplied(ctx context.Context, msg types.PaymentAppliedMessage) error
}

// ---------------------------------------------------------------------------
// Envelope and Outcome
// ---------------------------------------------------------------------------

// Envelope is a received delivery: the raw body and the signature header.
type Envelope struct {
	Body      []byte
	Signature string
}

// OutcomeKind classifies a finished delivery.
type OutcomeKind string

const (
	OutcomeApplied   OutcomeKind = "applied"
	OutcomeIgnored   OutcomeKind = "ignored"
	OutcomeDuplicate OutcomeKind = "duplicate"
	OutcomeRejected  OutcomeKind = "rejected"
)

// Outcome is the terminal result of Handle.
type Outcome struct {
	Kind          OutcomeKind
	Code          types.ErrorCode // empty unless Kind == OutcomeRejected
	StatusCode    int
	Message       string
	TransactionID string
	InvoiceID     string
	Err           error
}

// Success reports whether the outcome stops provider redelivery.
func (o Outcome) Success() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// Label is a short metric-friendly name: the kind for successes, the error
// code for rejections.
func (o Outcome) Label() string {
	if o.Kind == OutcomeRejected && o.Code != "" {
		return string(o.Code)
	}
	return string(o.Kind)
}

func succeeded(kind OutcomeKind, message string) Outcome {
	return Outcome{Kind: kind, StatusCode: http.StatusOK, Message: message}
}

func rejected(code types.ErrorCode, message string, err error) Outcome {
	return Outcome{
		Kind:       OutcomeRejected,
		Code:       code,
		StatusCode: code.HTTPStatus(),
		Message:    message,
		Err:        err,
	}
}

// ---------------------------------------------------------------------------
// Processor
// ---------------------------------------------------------------------------

// Config holds the per-gateway settings supplied by the host.
type Config struct {
	// GatewayName identifies this gateway to the ledger and the audit log.
	GatewayName string
	// WebhookSecret keys the HMAC. Empty means misconfigured.
	WebhookSecret types.SecretString
	// Enabled is false when the operator has deactivated the gateway.
	Enabled bool
}

// Option configures optional Processor dependencies.
type Option func(*Processor)

// WithMetrics sets the outcome metrics sink.
func WithMetrics(m OutcomeMetrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithNotifier sets the sink for applied-payment messages.
func WithNotifier(n PaymentNotifier) Option {
	return func(p *Processor) { p.notifier = n }
}

// WithLogger sets the operational logger (distinct from the audit trail).
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// Processor runs the intake pipeline. It holds no per-delivery state and is
// safe for concurrent use.
type Processor struct {
	cfg      Config
	ledger   Ledger
	audit    AuditRecorder
	metrics  OutcomeMetrics
	notifier PaymentNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor creates a Processor. audit may be nil, in which case entries
// go to the logger.
func NewProcessor(cfg Config, ledger Ledger, audit AuditRecorder, opts ...Option) *Processor {
	p := &Processor{
		cfg:    cfg,
		ledger: ledger,
		audit:  audit,
		logger: slog.Default(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.audit == nil {
		p.audit = NewLogAuditRecorder(p.logger)
	}
	return p
}

// GatewayName returns the configured gateway identity.
func (p *Processor) GatewayName() string {
	return p.cfg.GatewayName
}

// Handle processes one delivery and returns its outcome. It never panics on
// malformed input and never returns a partially applied payment.
func (p *Processor) Handle(ctx context.Context, env Envelope) Outcome {
	start := p.now()
	out := p.handle(ctx, env)
	if p.metrics != nil {
		p.metrics.RecordOutcome(ctx, out, p.now().Sub(start))
	}
	return out
}

func (p *Processor) handle(ctx context.Context, env Envelope) Outcome {
	// Step 0: gateway activation.
	if !p.cfg.Enabled {
		return p.reject(ctx, "Gateway module not activated", nil, types.ErrCodeUnavailableGateway, MsgGatewayInactive, nil)
	}

	// Step 1: preconditions. No ledger access before authentication.
	if p.cfg.WebhookSecret.IsEmpty() {
		return p.reject(ctx, "Webhook secret not configured", nil, types.ErrCodeConfigSecretMissing, MsgSecretNotConfigured, nil)
	}
	if len(env.Body) == 0 {
		return p.reject(ctx, "Empty webhook payload received", nil, types.ErrCodeValidationEmptyBody, MsgEmptyBody, nil)
	}
	if env.Signature == "" {
		return p.reject(ctx, "Missing signature header", nil, types.ErrCodeValidationMissingSignature, MsgMissingSignature, nil)
	}

	// Step 2: signature. Only the header and the body length are logged.
	if !VerifySignature(env.Body, env.Signature, p.cfg.WebhookSecret.Unmask()) {
		return p.reject(ctx, "Invalid webhook signature", map[string]any{
			"received_signature": env.Signature,
			"payload_length":     len(env.Body),
		}, types.ErrCodeAuthSignatureInvalid, MsgInvalidSignature, nil)
	}

	// Step 3: parse.
	event, err := ParseEvent(env.Body)
	if err != nil {
		return p.reject(ctx, "Invalid JSON payload", map[string]any{
			"json_error": err.Error(),
			"payload":    excerpt(env.Body, payloadExcerptLimit),
		}, types.ErrCodeValidationInvalidJSON, MsgInvalidJSON, err)
	}

	p.activity(ctx, AuditLevelInfo, "Webhook received", map[string]any{
		"event_type":     event.EventType,
		"transaction_id": valueOr(event.TransactionID, "unknown"),
	})

	// Step 4: event filter. Not an error; stops redelivery.
	if !IsSuccessEvent(event.EventType) {
		p.activity(ctx, AuditLevelInfo, "Ignoring non-payment event", map[string]any{
			"event_type": event.EventType,
		})
		return succeeded(OutcomeIgnored, MsgIgnored)
	}

	// Step 5: required fields.
	if event.TransactionID == "" || event.InvoiceRef == "" || !event.Amount.IsPositive() {
		out := p.reject(ctx, "Missing required transaction data", map[string]any{
			"transaction_id": event.TransactionID,
			"invoice_id":     event.InvoiceRef,
			"amount":         event.Amount.String(),
		}, types.ErrCodeValidationMissingData, MsgMissingData, nil)
		out.TransactionID = event.TransactionID
		return out
	}

	// Step 6: invoice resolution.
	invoiceID, err := p.ledger.ResolveInvoice(ctx, event.InvoiceRef, p.cfg.GatewayName)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			out := p.reject(ctx, "Invalid invoice ID", map[string]any{
				"provided_invoice_id": event.InvoiceRef,
				"transaction_id":      event.TransactionID,
			}, types.ErrCodeValidationInvalidInvoice, MsgInvalidInvoice, err)
			out.TransactionID = event.TransactionID
			return out
		}
		return p.collaboratorFailure(ctx, event, "", "resolve invoice", err)
	}

	// Step 7: duplicate check.
	recorded, err := p.ledger.IsTransactionRecorded(ctx, event.TransactionID)
	if err != nil {
		return p.collaboratorFailure(ctx, event, invoiceID, "check transaction", err)
	}
	if recorded {
		return p.duplicate(ctx, event, invoiceID, false)
	}

	// Step 8: status filter.
	if !IsCompletedStatus(event.Status) {
		out := p.reject(ctx, "Payment not completed", map[string]any{
			"transaction_id": event.TransactionID,
			"status":         event.Status,
			"invoice_id":     invoiceID,
		}, types.ErrCodeBusinessPaymentNotCompleted, MsgNotCompleted, nil)
		out.TransactionID = event.TransactionID
		out.InvoiceID = invoiceID
		return out
	}

	// Step 9: apply.
	rec := types.PaymentRecord{
		InvoiceID:     invoiceID,
		TransactionID: event.TransactionID,
		Amount:        event.Amount,
		Fee:           decimal.Zero,
		Currency:      event.Currency,
		Gateway:       p.cfg.GatewayName,
	}
	if err := p.ledger.RecordInvoicePayment(ctx, rec); err != nil {
		if errors.Is(err, ErrTransactionRecorded) {
			// Lost the race against a concurrent delivery of the same id.
			return p.duplicate(ctx, event, invoiceID, true)
		}
		return p.applyFailure(ctx, env, event, invoiceID, err)
	}

	p.transactionLog(ctx, AuditSuccessful, successFields(event, invoiceID))
	p.activity(ctx, AuditLevelInfo, "Payment processed successfully", map[string]any{
		"transaction_id": event.TransactionID,
		"invoice_id":     invoiceID,
		"amount":         event.Amount.String(),
	})
	p.notify(ctx, event, invoiceID)

	out := succeeded(OutcomeApplied, MsgApplied)
	out.TransactionID = event.TransactionID
	out.InvoiceID = invoiceID
	return out
}

func (p *Processor) duplicate(ctx context.Context, event *types.PaymentEvent, invoiceID string, raced bool) Outcome {
	fields := map[string]any{
		"transaction_id": event.TransactionID,
		"invoice_id":     invoiceID,
	}
	if raced {
		fields["concurrent_delivery"] = true
	}
	p.activity(ctx, AuditLevelInfo, "Transaction already processed", fields)

	out := succeeded(OutcomeDuplicate, MsgDuplicate)
	out.TransactionID = event.TransactionID
	out.InvoiceID = invoiceID
	return out
}

// collaboratorFailure handles infrastructure errors before the apply step.
// The delivery is rejected with a 500 so the provider retries it.
func (p *Processor) collaboratorFailure(ctx context.Context, event *types.PaymentEvent, invoiceID, step string, err error) Outcome {
	reason := failureReason(err)
	out := p.reject(ctx, "Payment processing failed", map[string]any{
		"transaction_id": event.TransactionID,
		"invoice_id":     valueOr(invoiceID, event.InvoiceRef),
		"step":           step,
		"error":          err.Error(),
	}, codeFor(err), msgProcessingFailed+reason, err)
	out.TransactionID = event.TransactionID
	out.InvoiceID = invoiceID
	return out
}

// applyFailure is the only path that writes the raw payload to the audit
// log, so the payment can be reconciled by hand.
func (p *Processor) applyFailure(ctx context.Context, env Envelope, event *types.PaymentEvent, invoiceID string, err error) Outcome {
	reason := failureReason(err)
	p.transactionLog(ctx, AuditFailed, map[string]any{
		"transaction_id": event.TransactionID,
		"invoice_id":     invoiceID,
		"error":          reason,
		"error_category": codeFor(err).Category(),
		"raw_data":       string(env.Body),
	})
	out := p.reject(ctx, "Payment processing failed", map[string]any{
		"transaction_id": event.TransactionID,
		"invoice_id":     invoiceID,
		"error":          reason,
	}, codeFor(err), msgProcessingFailed+reason, err)
	out.TransactionID = event.TransactionID
	out.InvoiceID = invoiceID
	return out
}

func (p *Processor) notify(ctx context.Context, event *types.PaymentEvent, invoiceID string) {
	if p.notifier == nil {
		return
	}
	msg := types.PaymentAppliedMessage{
		Gateway:       p.cfg.GatewayName,
		InvoiceID:     invoiceID,
		TransactionID: event.TransactionID,
		Amount:        event.Amount.String(),
		Currency:      event.Currency,
		Status:        event.Status,
		Metadata:      event.Metadata,
		AppliedAt:     p.now(),
		RequestID:     types.GetRequestID(ctx),
	}
	if err := p.notifier.PaymentApplied(ctx, msg); err != nil {
		p.logger.WarnContext(ctx, "failed to publish payment applied message",
			"transaction_id", event.TransactionID,
			"invoice_id", invoiceID,
			"error", err,
		)
	}
}

// reject records an error activity entry tagged with the code's category and
// returns the matching outcome.
func (p *Processor) reject(ctx context.Context, event string, fields map[string]any, code types.ErrorCode, message string, err error) Outcome {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["error_category"] = code.Category()
	p.activity(ctx, AuditLevelError, event, fields)
	return rejected(code, message, err)
}

func (p *Processor) activity(ctx context.Context, level AuditLevel, event string, fields map[string]any) {
	outcome := AuditWebhookInfo
	if level == AuditLevelError {
		outcome = AuditWebhookError
	}
	p.audit.Record(ctx, newAuditEntry(ctx, p.cfg.GatewayName, event, level, outcome, fields, p.now()))
}

func (p *Processor) transactionLog(ctx context.Context, outcome string, fields map[string]any) {
	level := AuditLevelInfo
	if outcome == AuditFailed {
		level = AuditLevelError
	}
	p.audit.Record(ctx, newAuditEntry(ctx, p.cfg.GatewayName, "Transaction "+outcome, level, outcome, fields, p.now()))
}

// successFields is the transaction-log record for an applied payment,
// including every informational metadata field.
func successFields(event *types.PaymentEvent, invoiceID string) map[string]any {
	fields := map[string]any{
		"transaction_id": event.TransactionID,
		"invoice_id":     invoiceID,
		"amount":         event.Amount.String(),
		"currency":       event.Currency,
		"status":         event.Status,
	}
	for _, key := range types.MetadataKeys {
		fields[key] = valueOr(event.Metadata[key], notApplicable)
	}
	return fields
}

// failureReason is the text placed after "Payment processing failed: ".
// Application errors expose their message; anything else gets a generic one.
func failureReason(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "failed to add payment to invoice"
}

// codeFor keeps the availability code when the ledger breaker is open and
// reports everything else as a processing failure.
func codeFor(err error) types.ErrorCode {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUnavailableLedger {
		return appErr.Code
	}
	return types.ErrCodeInternalPaymentProcessing
}

func excerpt(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit])
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// String renders an outcome for logs.
func (o Outcome) String() string {
	return fmt.Sprintf("%d %s", o.StatusCode, o.Message)
}
