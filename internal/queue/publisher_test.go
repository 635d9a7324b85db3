package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"heliogate/internal/types"
)

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

const (
	testStandardURL = "https://sqs.us-east-1.amazonaws.com/123456789/payment-events"
	testFIFOURL     = "https://sqs.us-east-1.amazonaws.com/123456789/payment-events.fifo"
)

func testMessage() types.PaymentAppliedMessage {
	return types.PaymentAppliedMessage{
		Gateway:       "helio",
		InvoiceID:     "INV1",
		TransactionID: "tx_abc",
		Amount:        "49.99",
		Currency:      "USD",
		Status:        "completed",
		AppliedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPaymentApplied_StandardQueue(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewPaymentPublisher(mock, testStandardURL, nil)

	if err := pub.PaymentApplied(context.Background(), testMessage()); err != nil {
		t.Fatalf("PaymentApplied returned unexpected error: %v", err)
	}
	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SendMessage call, got %d", len(mock.calls))
	}

	call := mock.calls[0]
	if *call.QueueUrl != testStandardURL {
		t.Errorf("queue url = %q", *call.QueueUrl)
	}
	if call.MessageGroupId != nil || call.MessageDeduplicationId != nil {
		t.Error("standard queue must not set FIFO fields")
	}
	if got := *call.MessageAttributes["event_type"].StringValue; got != EventTypePaymentApplied {
		t.Errorf("event_type = %q", got)
	}
	if got := *call.MessageAttributes["gateway"].StringValue; got != "helio" {
		t.Errorf("gateway = %q", got)
	}

	var decoded types.PaymentAppliedMessage
	if err := json.Unmarshal([]byte(*call.MessageBody), &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if decoded.MessageID == "" {
		t.Error("expected a generated message id")
	}
	if decoded.TransactionID != "tx_abc" || decoded.Amount != "49.99" {
		t.Errorf("unexpected body: %+v", decoded)
	}
}

func TestPaymentApplied_FIFOQueue(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewPaymentPublisher(mock, testFIFOURL, nil)

	msg := testMessage()
	msg.MessageID = "fixed"
	if err := pub.PaymentApplied(context.Background(), msg); err != nil {
		t.Fatalf("PaymentApplied returned unexpected error: %v", err)
	}

	call := mock.calls[0]
	if call.MessageGroupId == nil || *call.MessageGroupId != "INV1" {
		t.Errorf("group id = %v", call.MessageGroupId)
	}
	if call.MessageDeduplicationId == nil || *call.MessageDeduplicationId != "tx_abc" {
		t.Errorf("dedup id = %v", call.MessageDeduplicationId)
	}
	if !strings.Contains(*call.MessageBody, `"message_id":"fixed"`) {
		t.Errorf("message id was replaced: %s", *call.MessageBody)
	}
}

func TestPaymentApplied_SendError(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("access denied")}
	pub := NewPaymentPublisher(mock, testStandardURL, nil)

	err := pub.PaymentApplied(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "access denied") {
		t.Errorf("error should wrap the cause: %v", err)
	}
}
