package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metadata keys carried on a PaymentEvent. They are informational only and
// never influence whether a payment is applied.
const (
	MetaCryptoAddress  = "crypto_address"
	MetaCryptoAmount   = "crypto_amount"
	MetaCryptoCurrency = "crypto_currency"
	MetaNetwork        = "network"
	MetaBlockHash      = "block_hash"
	MetaConfirmations  = "confirmations"
)

// MetadataKeys lists the informational keys in the order they are audited.
var MetadataKeys = []string{
	MetaCryptoAddress,
	MetaCryptoAmount,
	MetaCryptoCurrency,
	MetaNetwork,
	MetaBlockHash,
	MetaConfirmations,
}

// PaymentEvent is the normalized form of a provider notification.
// It is built once per delivery and never persisted as-is.
type PaymentEvent struct {
	EventType     string            `json:"event_type"`
	TransactionID string            `json:"transaction_id"`
	InvoiceRef    string            `json:"invoice_ref"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// PaymentRecord is the argument set handed to the ledger when a payment is
// applied to an invoice.
type PaymentRecord struct {
	InvoiceID     string
	TransactionID string
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	Currency      string
	Gateway       string
}

// PaymentAppliedMessage is published after a payment has been recorded.
type PaymentAppliedMessage struct {
	MessageID     string            `json:"message_id"`
	Gateway       string            `json:"gateway"`
	InvoiceID     string            `json:"invoice_id"`
	TransactionID string            `json:"transaction_id"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	AppliedAt     time.Time         `json:"applied_at"`
	RequestID     string            `json:"request_id,omitempty"`
}
