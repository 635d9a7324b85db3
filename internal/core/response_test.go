package core

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"heliogate/internal/types"
)

func TestText(t *testing.T) {
	rec := httptest.NewRecorder()
	Text(rec, http.StatusBadRequest, "Invalid JSON")

	if rec.Code != http.StatusBadRequest || rec.Body.String() != "Invalid JSON" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, types.NewAppError(types.ErrCodeAuthSignatureInvalid, "Invalid signature", nil))
	if rec.Code != http.StatusUnauthorized || rec.Body.String() != "Invalid signature" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	Error(rec, errors.New("pq: relation does not exist"))
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "relation") {
		t.Errorf("generic error leaked: %d %q", rec.Code, rec.Body.String())
	}
}

func TestReadBody(t *testing.T) {
	rec := httptest.NewRecorder()
	body, err := ReadBody(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello")), 10)
	if err != nil || string(body) != "hello" {
		t.Fatalf("got %q, %v", body, err)
	}

	_, err = ReadBody(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(make([]byte, 11))), 10)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationBodyTooLarge {
		t.Fatalf("expected body too large, got %v", err)
	}

	body, err = ReadBody(rec, httptest.NewRequest(http.MethodPost, "/", nil), 10)
	if err != nil || len(body) != 0 {
		t.Fatalf("empty body: got %q, %v", body, err)
	}
}
