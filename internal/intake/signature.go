package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the optional scheme marker on the signature header.
// Header format: X-Helio-Signature: sha256=<hex> or a bare <hex>.
const SignaturePrefix = "sha256="

// ComputeSignature returns the lowercase hex HMAC-SHA256 of body keyed by secret.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header carries the HMAC-SHA256 of body under
// secret. The comparison is constant time over the expected length; an empty
// secret or header never verifies.
func VerifySignature(body []byte, header, secret string) bool {
	if secret == "" {
		return false
	}
	provided := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(header)), SignaturePrefix)
	if provided == "" {
		return false
	}
	expected := ComputeSignature(body, secret)
	return hmac.Equal([]byte(expected), []byte(provided))
}
