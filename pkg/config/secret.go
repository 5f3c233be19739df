package config

import "encoding/json"

// RedactedPlaceholder replaces secret values wherever a config is
// serialized. History entries, current-state pointers, and log output all
// pass through the marshal path, so redaction holds without caller
// discipline.
const RedactedPlaceholder = "***REDACTED***"

// Secret is a string that refuses to serialize in cleartext. Use Reveal to
// read the value at the point it is handed to an external tool.
type Secret string

// Reveal returns the cleartext value.
func (s Secret) Reveal() string {
	return string(s)
}

// IsZero reports whether the secret is unset.
func (s Secret) IsZero() bool {
	return s == ""
}

// String implements fmt.Stringer, returning the placeholder so %v and %s
// cannot leak the value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return RedactedPlaceholder
}

// MarshalJSON writes the placeholder for non-empty secrets.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"` + RedactedPlaceholder + `"`), nil
}

// UnmarshalJSON accepts a cleartext value from operator-authored config.
// The placeholder itself deserializes to empty so a persisted redacted
// record can never be mistaken for a real secret.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == RedactedPlaceholder {
		raw = ""
	}
	*s = Secret(raw)
	return nil
}

// MarshalYAML writes the placeholder for non-empty secrets.
func (s Secret) MarshalYAML() (interface{}, error) {
	if s == "" {
		return "", nil
	}
	return RedactedPlaceholder, nil
}

// UnmarshalYAML accepts a cleartext value, dropping the placeholder.
func (s *Secret) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw == RedactedPlaceholder {
		raw = ""
	}
	*s = Secret(raw)
	return nil
}
