package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"heliogate/internal/types"
)

// Text writes a plain-text response. Webhook providers read the body
// verbatim, so no envelope is added.
func Text(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// JSON writes a JSON response with the given status code. A marshalling
// failure becomes a plain 500.
func JSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		Text(w, http.StatusInternalServerError, "failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes err as plain text. Application errors expose their message
// and status; anything else is a generic 500 so driver details never leak.
func Error(w http.ResponseWriter, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		Text(w, appErr.HTTPStatus(), appErr.Message)
		return
	}
	Text(w, http.StatusInternalServerError, "an unexpected error occurred")
}

// ReadBody reads the whole request body, up to maxBytes. An oversized body
// is reported as validation_body_too_large (HTTP 400).
func ReadBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, types.NewAppError(types.ErrCodeValidationBodyTooLarge, "Payload too large", err)
		}
		return nil, types.NewAppError(types.ErrCodeValidationEmptyBody, "Failed to read request body", err)
	}
	return body, nil
}
