package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

const testSecret = "whsec_helio_test_secret"

func TestSecretString_Formatting(t *testing.T) {
	s := SecretString(testSecret)

	for _, verb := range []string{"%s", "%v", "%#v", "%+v"} {
		result := fmt.Sprintf(verb, s)
		if strings.Contains(result, testSecret) {
			t.Errorf("fmt.Sprintf(%s) leaked the raw secret: %s", verb, result)
		}
	}
}

func TestSecretString_MarshalJSON(t *testing.T) {
	cfg := struct {
		Secret SecretString `json:"secret"`
	}{Secret: SecretString(testSecret)}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("json.Marshal returned error: %v", err)
	}
	if strings.Contains(string(data), testSecret) {
		t.Errorf("JSON output leaked the raw secret: %s", data)
	}
	if string(data) != `{"secret":"***REDACTED***"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString(testSecret)
	if s.Unmask() != testSecret {
		t.Errorf("Unmask() = %q, want raw value", s.Unmask())
	}
	if s.IsEmpty() {
		t.Errorf("IsEmpty() = true for a set secret")
	}
	if !SecretString("").IsEmpty() {
		t.Errorf("IsEmpty() = false for an empty secret")
	}
}
