// Package queue publishes payment events to SQS for downstream consumers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"heliogate/internal/types"
)

// EventTypePaymentApplied is set as the event_type message attribute.
const EventTypePaymentApplied = "payment.applied"

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// PaymentPublisher announces applied payments on a queue. On a FIFO queue
// messages are grouped by invoice and deduplicated by transaction id, so a
// redelivered notification can never produce two messages.
type PaymentPublisher struct {
	client   SQSSender
	queueURL string
	fifo     bool
	logger   *slog.Logger
}

// NewPaymentPublisher creates a publisher for queueURL.
func NewPaymentPublisher(client SQSSender, queueURL string, logger *slog.Logger) *PaymentPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentPublisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		logger:   logger,
	}
}

// PaymentApplied implements intake.PaymentNotifier.
func (p *PaymentPublisher) PaymentApplied(ctx context.Context, msg types.PaymentAppliedMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.New().String()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal PaymentAppliedMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"gateway": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Gateway),
			},
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(EventTypePaymentApplied),
			},
		},
	}
	if p.fifo {
		input.MessageGroupId = aws.String(msg.InvoiceID)
		input.MessageDeduplicationId = aws.String(msg.TransactionID)
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("queue: failed to send PaymentAppliedMessage to %s: %w", p.queueURL, err)
	}

	attrs := []any{
		"queue_url", p.queueURL,
		"message_id", msg.MessageID,
		"transaction_id", msg.TransactionID,
		"invoice_id", msg.InvoiceID,
	}
	if out != nil && out.MessageId != nil {
		attrs = append(attrs, "sqs_message_id", *out.MessageId)
	}
	p.logger.InfoContext(ctx, "payment applied message sent", attrs...)
	return nil
}
