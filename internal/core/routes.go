package core

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"heliogate/internal/types"
)

// defaultRequestTimeout applies when the config leaves RequestTimeout unset.
const defaultRequestTimeout = 29 * time.Second

// defaultMaxBodyBytes applies when the config leaves MaxBodyBytes unset.
const defaultMaxBodyBytes = 1 << 20

// requestIDHeader carries the correlation id in and out.
const requestIDHeader = "X-Request-Id"

// baseRedactedHeaders are always masked in request logs. The configured
// signature header is added by redactedHeaders.
var baseRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes registers the middleware chain, the health endpoint and every
// registered handler group.
//
// Order:
//  1. Recoverer       - outermost, catches panics from everything below.
//  2. ContextTimeout  - soft deadline ahead of the host's hard timeout.
//  3. RequestID       - correlation id for logs and audit entries.
//  4. SecurityHeaders
//  5. RequestLogger   - structured, signature header redacted.
//  6. Metrics
//  7. Decompress      - gzip/zstd bodies decoded before signature checks.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, s.redactedHeaders()))
	s.router.Use(s.MetricsMiddleware)
	s.router.Use(DecompressMiddleware(s.maxBodyBytes()))

	s.router.Get("/health", s.HandleHealth)

	for _, register := range s.RouteRegistrars {
		register(s.router)
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Text(w, http.StatusNotFound, "Not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		Text(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Server) maxBodyBytes() int64 {
	if s.Config != nil && s.Config.Server.MaxBodyBytes > 0 {
		return s.Config.Server.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}

func (s *Server) redactedHeaders() []string {
	headers := append([]string(nil), baseRedactedHeaders...)
	if s.Config != nil && s.Config.Gateway.SignatureHeader != "" {
		headers = append(headers, s.Config.Gateway.SignatureHeader)
	}
	return headers
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses an inbound X-Request-Id or generates one, stores
// it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}
