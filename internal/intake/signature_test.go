package intake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature_RoundTrip(t *testing.T) {
	body := []byte(successBody)
	sig := ComputeSignature(body, testSecret)

	assert.Len(t, sig, 64)
	assert.True(t, VerifySignature(body, "sha256="+sig, testSecret))
	assert.True(t, VerifySignature(body, sig, testSecret), "bare hex")
	assert.True(t, VerifySignature(body, "  SHA256="+strings.ToUpper(sig)+" ", testSecret), "case and whitespace")
}

func TestVerifySignature_AnyByteFlipFails(t *testing.T) {
	body := []byte(successBody)
	header := "sha256=" + ComputeSignature(body, testSecret)

	for i := range body {
		tampered := append([]byte(nil), body...)
		tampered[i] ^= 0x01
		if VerifySignature(tampered, header, testSecret) {
			t.Fatalf("signature still verified after flipping byte %d", i)
		}
	}
}

func TestVerifySignature_Rejects(t *testing.T) {
	body := []byte(`{"event":"payment.success"}`)
	good := ComputeSignature(body, testSecret)

	tests := []struct {
		name   string
		header string
		secret string
	}{
		{"empty header", "", testSecret},
		{"prefix only", "sha256=", testSecret},
		{"empty secret", "sha256=" + good, ""},
		{"wrong secret", "sha256=" + good, "other"},
		{"truncated", "sha256=" + good[:32], testSecret},
		{"not hex", "sha256=zzzz", testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, VerifySignature(body, tt.header, tt.secret))
		})
	}
}

func TestComputeSignature_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := ComputeSignature([]byte("what do ya want for nothing?"), "Jefe")
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}
