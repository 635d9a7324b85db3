package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"heliogate/internal/intake"
	"heliogate/internal/types"
)

type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func dims(d []cwtypes.Dimension) map[string]string {
	out := make(map[string]string, len(d))
	for _, x := range d {
		out[*x.Name] = *x.Value
	}
	return out
}

func TestRecordOutcome(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "HelioGate", "helio", nil)

	rec.RecordOutcome(context.Background(), intake.Outcome{
		Kind: intake.OutcomeRejected,
		Code: types.ErrCodeAuthSignatureInvalid,
	}, 42*time.Millisecond)

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(cw.calls))
	}
	in := cw.calls[0]
	if *in.Namespace != "HelioGate" {
		t.Errorf("namespace = %q", *in.Namespace)
	}
	if len(in.MetricData) != 2 {
		t.Fatalf("expected 2 datums, got %d", len(in.MetricData))
	}

	count := in.MetricData[0]
	if *count.MetricName != MetricWebhookOutcome || count.Unit != cwtypes.StandardUnitCount {
		t.Errorf("unexpected count datum: %s %s", *count.MetricName, count.Unit)
	}
	d := dims(count.Dimensions)
	if d[DimGateway] != "helio" || d[DimOutcome] != "auth_signature_invalid" {
		t.Errorf("dimensions = %v", d)
	}

	latency := in.MetricData[1]
	if *latency.Value != 42 || latency.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("latency = %v %s", *latency.Value, latency.Unit)
	}
}

func TestRecordRequest(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "HelioGate", "helio", nil)

	rec.RecordRequest(context.Background(), "POST", "/webhooks/helio", "200", time.Second)

	d := dims(cw.calls[0].MetricData[0].Dimensions)
	if d[DimMethod] != "POST" || d[DimEndpoint] != "/webhooks/helio" || d[DimStatus] != "200" {
		t.Errorf("dimensions = %v", d)
	}
	if len(cw.calls[0].MetricData[1].Dimensions) != 2 {
		t.Error("latency should not carry the status dimension")
	}
}

func TestRecordOutcome_ClientErrorIsSwallowed(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	rec := NewCloudWatchRecorder(cw, "HelioGate", "helio", nil)

	rec.RecordOutcome(context.Background(), intake.Outcome{Kind: intake.OutcomeApplied}, time.Millisecond)
	if len(cw.calls) != 1 {
		t.Errorf("expected the call to be attempted")
	}
}
