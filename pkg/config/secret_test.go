package config

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSecretRedactsInJSON(t *testing.T) {
	payload := struct {
		Key  Secret `json:"key"`
		Name string `json:"name"`
	}{Key: "super-secret-value", Name: "n8n"}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "super-secret-value") {
		t.Fatalf("secret leaked into JSON: %s", data)
	}
	if !strings.Contains(string(data), RedactedPlaceholder) {
		t.Errorf("placeholder missing from JSON: %s", data)
	}
}

func TestSecretRedactsInYAML(t *testing.T) {
	payload := struct {
		Key Secret `yaml:"key"`
	}{Key: "super-secret-value"}

	data, err := yaml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "super-secret-value") {
		t.Fatalf("secret leaked into YAML: %s", data)
	}
}

func TestSecretEmptyStaysEmpty(t *testing.T) {
	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"key":""}` {
		t.Errorf("empty secret should serialize empty, got %s", data)
	}
}

func TestSecretPlaceholderNeverDeserializes(t *testing.T) {
	var out struct {
		Key Secret `json:"key"`
	}
	if err := json.Unmarshal([]byte(`{"key":"`+RedactedPlaceholder+`"}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Key.IsZero() {
		t.Errorf("placeholder must deserialize to empty, got %q", out.Key.Reveal())
	}

	var fromYAML struct {
		Key Secret `yaml:"key"`
	}
	if err := yaml.Unmarshal([]byte("key: '"+RedactedPlaceholder+"'\n"), &fromYAML); err != nil {
		t.Fatalf("yaml unmarshal: %v", err)
	}
	if !fromYAML.Key.IsZero() {
		t.Errorf("placeholder must deserialize to empty, got %q", fromYAML.Key.Reveal())
	}
}

func TestSecretStringerHidesValue(t *testing.T) {
	s := Secret("hunter2")
	if got := s.String(); got != RedactedPlaceholder {
		t.Errorf("String() = %q, want placeholder", got)
	}
	if s.Reveal() != "hunter2" {
		t.Errorf("Reveal() lost the value")
	}
}
