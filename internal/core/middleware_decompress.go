package core

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// errBodyTooLarge is returned when a decoded body exceeds the limit.
var errBodyTooLarge = errors.New("decoded body exceeds limit")

// DecompressMiddleware replaces a gzip or zstd encoded request body with its
// decoded bytes, so signatures are always checked against the payload the
// provider signed. Unknown encodings get 415; bodies that decode past
// maxBytes get 413.
func DecompressMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoding := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
			if encoding == "" || encoding == "identity" || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			decoded, err := decodeBody(r.Body, encoding, maxBytes)
			_ = r.Body.Close()
			switch {
			case errors.Is(err, errUnsupportedEncoding):
				Text(w, http.StatusUnsupportedMediaType, "Unsupported content encoding")
				return
			case errors.Is(err, errBodyTooLarge):
				Text(w, http.StatusRequestEntityTooLarge, "Payload too large")
				return
			case err != nil:
				Text(w, http.StatusBadRequest, "Invalid request body encoding")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(decoded))
			r.ContentLength = int64(len(decoded))
			r.Header.Set("Content-Length", strconv.Itoa(len(decoded)))
			r.Header.Del("Content-Encoding")
			next.ServeHTTP(w, r)
		})
	}
}

var errUnsupportedEncoding = errors.New("unsupported content encoding")

func decodeBody(body io.Reader, encoding string, maxBytes int64) ([]byte, error) {
	var src io.Reader
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		src = zr
	case "zstd":
		zr, err := zstd.NewReader(body, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(uint64(maxBytes)))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		src = zr
	default:
		return nil, errUnsupportedEncoding
	}

	decoded, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	if int64(len(decoded)) > maxBytes {
		return nil, errBodyTooLarge
	}
	return decoded, nil
}
