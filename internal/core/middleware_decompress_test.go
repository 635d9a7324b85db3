package core

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const samplePayload = `{"event":"payment.success","transaction":{"id":"tx1"}}`

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zstdBytes(t *testing.T, s string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll([]byte(s), nil)
}

// echoHandler writes back the body it received.
var echoHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	if r.Header.Get("Content-Encoding") != "" {
		w.Header().Set("X-Still-Encoded", "1")
	}
	_, _ = w.Write(b)
})

func TestDecompressMiddleware_Decodes(t *testing.T) {
	tests := []struct {
		encoding string
		body     []byte
	}{
		{"gzip", gzipBytes(t, samplePayload)},
		{"zstd", zstdBytes(t, samplePayload)},
		{"", []byte(samplePayload)},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(tt.body))
		if tt.encoding != "" {
			req.Header.Set("Content-Encoding", tt.encoding)
		}
		rec := httptest.NewRecorder()
		DecompressMiddleware(1024)(echoHandler).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%q: status = %d", tt.encoding, rec.Code)
		}
		if rec.Body.String() != samplePayload {
			t.Errorf("%q: body = %q", tt.encoding, rec.Body.String())
		}
		if rec.Header().Get("X-Still-Encoded") != "" {
			t.Errorf("%q: Content-Encoding not removed", tt.encoding)
		}
	}
}

func TestDecompressMiddleware_Rejects(t *testing.T) {
	big := strings.Repeat("a", 4096)
	tests := []struct {
		name       string
		encoding   string
		body       []byte
		wantStatus int
	}{
		{"unsupported", "br", []byte("xx"), http.StatusUnsupportedMediaType},
		{"corrupt gzip", "gzip", []byte("not gzip"), http.StatusBadRequest},
		{"gzip bomb", "gzip", gzipBytes(t, big), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(tt.body))
			req.Header.Set("Content-Encoding", tt.encoding)
			rec := httptest.NewRecorder()
			DecompressMiddleware(1024)(echoHandler).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
