package types

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	deliveryKey  contextKey = "delivery_source"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithDeliverySource records how a webhook reached the service
// ("http" or "lambda"). Used only for audit enrichment.
func WithDeliverySource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, deliveryKey, source)
}

// GetDeliverySource returns the delivery source stored by WithDeliverySource.
func GetDeliverySource(ctx context.Context) string {
	s, _ := ctx.Value(deliveryKey).(string)
	return s
}
