// Package handlers contains the transport adapters for the payment webhook:
// an HTTP handler mounted on the chi router and an API Gateway proxy handler
// for Lambda. Both feed the same intake.Processor.
//
// The endpoint is unauthenticated; the provider signature over the raw body
// is the only credential.
package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"

	"heliogate/internal/core"
	"heliogate/internal/intake"
	"heliogate/internal/types"
)

// DefaultSignatureHeader is used when no header name is configured.
const DefaultSignatureHeader = "X-Helio-Signature"

// defaultMaxBodyBytes caps webhook bodies when no limit is configured.
const defaultMaxBodyBytes = 1 << 20

// Delivery sources recorded on audit entries.
const (
	sourceHTTP   = "http"
	sourceLambda = "lambda"
)

// WebhookProcessor is the subset of intake.Processor used by the handler.
type WebhookProcessor interface {
	Handle(ctx context.Context, env intake.Envelope) intake.Outcome
	GatewayName() string
}

// HelioWebhookHandler adapts inbound deliveries to the intake processor.
type HelioWebhookHandler struct {
	processor       WebhookProcessor
	signatureHeader string
	maxBodyBytes    int64
	logger          *slog.Logger
}

// NewHelioWebhookHandler creates the handler. An empty signatureHeader uses
// DefaultSignatureHeader; a non-positive maxBodyBytes uses 1 MiB.
func NewHelioWebhookHandler(processor WebhookProcessor, signatureHeader string, maxBodyBytes int64, logger *slog.Logger) *HelioWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if signatureHeader == "" {
		signatureHeader = DefaultSignatureHeader
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &HelioWebhookHandler{
		processor:       processor,
		signatureHeader: signatureHeader,
		maxBodyBytes:    maxBodyBytes,
		logger:          logger,
	}
}

// RegisterRoutes mounts POST /webhooks/{gateway name}.
func (h *HelioWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/"+h.processor.GatewayName(), h.Handle)
}

// Handle serves one HTTP delivery. The body is read raw and never re-encoded
// before signature verification.
func (h *HelioWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := types.WithDeliverySource(r.Context(), sourceHTTP)

	body, err := core.ReadBody(w, r, h.maxBodyBytes)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		core.Error(w, err)
		return
	}

	out := h.processor.Handle(ctx, intake.Envelope{
		Body:      body,
		Signature: r.Header.Get(h.signatureHeader),
	})
	h.logOutcome(ctx, out)
	core.Text(w, out.StatusCode, out.Message)
}

// HandleAPIGateway serves one API Gateway proxy event.
func (h *HelioWebhookHandler) HandleAPIGateway(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx = types.WithDeliverySource(ctx, sourceLambda)
	if req.RequestContext.RequestID != "" {
		ctx = types.WithRequestID(ctx, req.RequestContext.RequestID)
	}

	if req.HTTPMethod != "" && !strings.EqualFold(req.HTTPMethod, http.MethodPost) {
		return textResponse(http.StatusMethodNotAllowed, "Method not allowed"), nil
	}

	body, err := decodeProxyBody(req, h.maxBodyBytes)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to decode proxy body", "error", err)
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return textResponse(appErr.HTTPStatus(), appErr.Message), nil
		}
		return textResponse(http.StatusBadRequest, intake.MsgInvalidJSON), nil
	}

	out := h.processor.Handle(ctx, intake.Envelope{
		Body:      body,
		Signature: headerValue(req, h.signatureHeader),
	})
	h.logOutcome(ctx, out)
	return textResponse(out.StatusCode, out.Message), nil
}

func (h *HelioWebhookHandler) logOutcome(ctx context.Context, out intake.Outcome) {
	attrs := []any{
		"status", out.StatusCode,
		"outcome", out.Label(),
	}
	if out.TransactionID != "" {
		attrs = append(attrs, "transaction_id", out.TransactionID)
	}
	if out.Err != nil {
		attrs = append(attrs, "error", out.Err)
	}
	switch {
	case out.StatusCode >= 500:
		h.logger.ErrorContext(ctx, "webhook rejected", attrs...)
	case !out.Success():
		h.logger.WarnContext(ctx, "webhook rejected", attrs...)
	default:
		h.logger.InfoContext(ctx, "webhook handled", attrs...)
	}
}

// decodeProxyBody returns the raw bytes of a proxy event body.
func decodeProxyBody(req events.APIGatewayProxyRequest, maxBytes int64) ([]byte, error) {
	var body []byte
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, intake.MsgInvalidJSON, err)
		}
		body = decoded
	} else {
		body = []byte(req.Body)
	}
	if int64(len(body)) > maxBytes {
		return nil, types.NewAppError(types.ErrCodeValidationBodyTooLarge, "Payload too large", nil)
	}
	return body, nil
}

// headerValue finds a header regardless of case. API Gateway preserves the
// client's casing in Headers and in MultiValueHeaders.
func headerValue(req events.APIGatewayProxyRequest, name string) string {
	if v, ok := req.Headers[name]; ok {
		return v
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, vs := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

func textResponse(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       body,
	}
}
