package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestSecretStringRedactsInFormatting(t *testing.T) {
	s := SecretString("sk_live_abc123")

	for _, rendered := range []string{
		s.String(),
		fmt.Sprintf("%s", s),
		fmt.Sprintf("%v", s),
		fmt.Sprintf("key=%s", s),
	} {
		if strings.Contains(rendered, "abc123") {
			t.Errorf("secret leaked into %q", rendered)
		}
	}
}

func TestSecretStringRedactsInJSON(t *testing.T) {
	payload := struct {
		APIKey SecretString `json:"api_key"`
	}{APIKey: SecretString("whsec_supersecret")}

	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "supersecret") {
		t.Errorf("secret leaked into JSON: %s", b)
	}
}

func TestSecretStringUnmask(t *testing.T) {
	s := SecretString("whsec_supersecret")
	if s.Unmask() != "whsec_supersecret" {
		t.Error("Unmask must return the raw value")
	}
}

func TestSecretStringEmpty(t *testing.T) {
	if !SecretString("").Empty() {
		t.Error("empty secret must report Empty")
	}
	if SecretString("x").Empty() {
		t.Error("non-empty secret must not report Empty")
	}
}
