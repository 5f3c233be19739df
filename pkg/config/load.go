package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/n8nops/n8nctl/pkg/errors"
)

// Load reads a deployment config file. The cloud_provider key selects the
// variant; unknown keys are rejected so typos surface before provisioning.
func Load(path string) (DeploymentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("config file", path)
		}
		return nil, errors.Wrap(errors.ErrCodeIO, fmt.Sprintf("failed to read config file %s", path), err)
	}
	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses YAML config bytes into the provider variant they declare.
// Defaults are applied first, so a file only has to carry what differs.
func Decode(data []byte) (DeploymentConfig, error) {
	var probe struct {
		CloudProvider string `yaml:"cloud_provider"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, "config file is not valid YAML", err)
	}
	provider, err := ParseProvider(probe.CloudProvider)
	if err != nil {
		return nil, err
	}
	return decodeVariant(provider, func(out interface{}) error {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(out)
	})
}

// DecodeJSON parses a JSON configuration snapshot, as written to history
// entries and the current-state pointer. Secrets in these records are
// already redacted and deserialize to empty.
func DecodeJSON(provider Provider, raw json.RawMessage) (DeploymentConfig, error) {
	return decodeVariant(provider, func(out interface{}) error {
		return json.Unmarshal(raw, out)
	})
}

func decodeVariant(provider Provider, unmarshal func(interface{}) error) (DeploymentConfig, error) {
	var cfg DeploymentConfig
	switch provider {
	case ProviderAWS:
		c := NewAWSConfig()
		if err := unmarshal(c); err != nil {
			return nil, errors.Wrap(errors.ErrCodeValidation, "invalid aws config", err)
		}
		cfg = c
	case ProviderAzure:
		c := NewAzureConfig()
		if err := unmarshal(c); err != nil {
			return nil, errors.Wrap(errors.ErrCodeValidation, "invalid azure config", err)
		}
		cfg = c
	case ProviderGCP:
		c := NewGCPConfig()
		if err := unmarshal(c); err != nil {
			return nil, errors.Wrap(errors.ErrCodeValidation, "invalid gcp config", err)
		}
		cfg = c
	default:
		_, err := ParseProvider(string(provider))
		return nil, err
	}
	return cfg, nil
}
