package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"heliogate/internal/types"
)

// Event types that confirm a completed payment. Anything else is acknowledged
// and ignored.
var successEvents = map[string]struct{}{
	"payment.success":       {},
	"payment.completed":     {},
	"transaction.success":   {},
	"transaction.completed": {},
}

// Payment statuses (lower-cased) that allow the payment to be applied.
var completedStatuses = map[string]struct{}{
	"completed": {},
	"confirmed": {},
	"success":   {},
	"paid":      {},
}

// defaultStatus is assumed when the notification carries no status at all.
const defaultStatus = "completed"

// errPayloadNotObject is returned when the body is valid JSON but not an object.
var errPayloadNotObject = errors.New("payload is not a JSON object")

// ---------------------------------------------------------------------------
// Extraction rules
// ---------------------------------------------------------------------------

// ruleScope selects which JSON object an extraction rule reads from.
type ruleScope int

const (
	// scopeRoot is the top-level payload object.
	scopeRoot ruleScope = iota
	// scopeTransaction is the "transaction" object, or the root when the
	// payload is flat.
	scopeTransaction
	// scopeMetadata is the "metadata" object inside the transaction scope.
	scopeMetadata
)

// extractionRule names one place a field may appear.
type extractionRule struct {
	scope ruleScope
	key   string
}

// Rules are evaluated in order; the first present (non-null) value wins.
var (
	eventTypeRules = []extractionRule{
		{scopeRoot, "event"},
		{scopeRoot, "type"},
	}
	transactionIDRules = []extractionRule{
		{scopeTransaction, "id"},
		{scopeTransaction, "transactionId"},
	}
	amountRules = []extractionRule{
		{scopeTransaction, "amount"},
		{scopeTransaction, "paidAmount"},
	}
	currencyRules = []extractionRule{
		{scopeTransaction, "currency"},
		{scopeTransaction, "paidCurrency"},
	}
	statusRules = []extractionRule{
		{scopeTransaction, "status"},
	}
	invoiceRefRules = []extractionRule{
		{scopeMetadata, "invoice_id"},
		{scopeTransaction, "invoice_id"},
	}
)

// jsonObject is one decoded level of the payload.
type jsonObject map[string]json.RawMessage

// payloadScopes holds the three objects rules can read from.
type payloadScopes struct {
	root        jsonObject
	transaction jsonObject
	metadata    jsonObject
}

func (s payloadScopes) object(scope ruleScope) jsonObject {
	switch scope {
	case scopeTransaction:
		return s.transaction
	case scopeMetadata:
		return s.metadata
	default:
		return s.root
	}
}

// lookup applies rules in order and returns the first present value.
func (s payloadScopes) lookup(rules []extractionRule) (json.RawMessage, bool) {
	for _, rule := range rules {
		obj := s.object(rule.scope)
		if obj == nil {
			continue
		}
		raw, ok := obj[rule.key]
		if !ok || isJSONNull(raw) {
			continue
		}
		return raw, true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Typed intermediate form
// ---------------------------------------------------------------------------

// optionalString is a field that may be absent from the payload.
type optionalString struct {
	Value   string
	Present bool
}

func (o optionalString) or(fallback string) string {
	if o.Present {
		return o.Value
	}
	return fallback
}

// notification is the typed intermediate structure produced by the
// extraction rules. Downstream code reads only this, never raw JSON.
type notification struct {
	EventType     optionalString
	TransactionID optionalString
	InvoiceRef    optionalString
	Amount        optionalString
	Currency      optionalString
	Status        optionalString
	Metadata      map[string]string
}

// ParseEvent decodes a webhook body and normalizes it into a PaymentEvent.
// It fails only when the body is not a JSON object; missing fields are
// left empty for validation to report.
func ParseEvent(body []byte) (*types.PaymentEvent, error) {
	n, err := decodeNotification(body)
	if err != nil {
		return nil, err
	}
	return n.toEvent(), nil
}

func decodeNotification(body []byte) (*notification, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			// Report the decoder's own message for malformed input.
			var probe any
			return nil, json.Unmarshal(trimmed, &probe)
		}
		return nil, errPayloadNotObject
	}

	var root jsonObject
	if err := json.Unmarshal(trimmed, &root); err != nil {
		return nil, err
	}

	scopes := payloadScopes{root: root, transaction: root}
	if raw, ok := root["transaction"]; ok {
		if obj, ok := decodeObject(raw); ok {
			scopes.transaction = obj
		}
	}
	if raw, ok := scopes.transaction["metadata"]; ok {
		if obj, ok := decodeObject(raw); ok {
			scopes.metadata = obj
		}
	}

	n := &notification{
		EventType:     scopes.stringField(eventTypeRules),
		TransactionID: scopes.stringField(transactionIDRules),
		InvoiceRef:    scopes.stringField(invoiceRefRules),
		Amount:        scopes.stringField(amountRules),
		Currency:      scopes.stringField(currencyRules),
		Status:        scopes.stringField(statusRules),
		Metadata:      make(map[string]string, len(types.MetadataKeys)),
	}
	for _, key := range types.MetadataKeys {
		if v := scopes.stringField([]extractionRule{{scopeTransaction, key}}); v.Present {
			n.Metadata[key] = v.Value
		}
	}
	return n, nil
}

func (s payloadScopes) stringField(rules []extractionRule) optionalString {
	raw, ok := s.lookup(rules)
	if !ok {
		return optionalString{}
	}
	return optionalString{Value: rawToString(raw), Present: true}
}

func (n *notification) toEvent() *types.PaymentEvent {
	return &types.PaymentEvent{
		EventType:     n.EventType.or("unknown"),
		TransactionID: strings.TrimSpace(n.TransactionID.Value),
		InvoiceRef:    strings.TrimSpace(n.InvoiceRef.Value),
		Amount:        parseAmount(n.Amount.Value),
		Currency:      n.Currency.Value,
		Status:        n.Status.or(defaultStatus),
		Metadata:      n.Metadata,
	}
}

// IsSuccessEvent reports whether eventType confirms a completed payment.
func IsSuccessEvent(eventType string) bool {
	_, ok := successEvents[eventType]
	return ok
}

// IsCompletedStatus reports whether status (any case) allows the payment to
// be applied.
func IsCompletedStatus(status string) bool {
	_, ok := completedStatuses[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func decodeObject(raw json.RawMessage) (jsonObject, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj jsonObject
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// rawToString renders a JSON scalar as text: strings are unquoted, numbers
// keep their literal form, anything else is returned as compact JSON.
func rawToString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// Ledger amounts are NUMERIC(20,8).
const (
	maxAmountIntegerDigits  = 12
	maxAmountFractionDigits = 8

	// maxAmountExponentSpan rejects scientific forms like 1e-2000000 before
	// any rescaling work is done on them.
	maxAmountExponentSpan = 64
)

// parseAmount converts the amount text to a decimal. Unparseable input, and
// any value the ledger cannot store exactly, is zero so it fails the
// amount > 0 validation.
func parseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if !storableAmount(d) {
		return decimal.Zero
	}
	return d
}

// storableAmount reports whether d fits the ledger column without rounding.
// Only the exponent and coefficient length are inspected before the final
// truncation check, so huge exponents cost nothing.
func storableAmount(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp > maxAmountIntegerDigits || exp < -maxAmountExponentSpan {
		return false
	}
	if int64(d.NumDigits())+int64(exp) > maxAmountIntegerDigits {
		return false
	}
	if exp < -maxAmountFractionDigits && !d.Equal(d.Truncate(maxAmountFractionDigits)) {
		return false
	}
	return true
}
