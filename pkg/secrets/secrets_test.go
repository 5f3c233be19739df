package secrets

import (
	"context"
	"strings"
	"testing"

	"github.com/zclconf/go-cty/cty"

	"github.com/n8nops/n8nctl/pkg/config"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		name     string
		parts    []string
		expected string
	}{
		{"single part", []string{"n8n"}, "n8n"},
		{"joined parts", []string{"n8nctl", "aws", "us-east-1"}, "n8nctl-aws-us-east-1"},
		{"uppercase folded", []string{"N8N", "Basic-Auth"}, "n8n-basic-auth"},
		{"slashes and dots", []string{"snapshots/gcp", "n8n.example.com"}, "snapshots-gcp-n8n-example-com"},
		{"runs collapse", []string{"a//b", "c__d"}, "a-b-c-d"},
		{"edges trimmed", []string{"/lead", "trail/"}, "lead-trail"},
		{"empty", []string{""}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizeName(tc.parts...)
			if got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestDeploymentPrefix(t *testing.T) {
	cfg := config.NewAWSConfig()
	cfg.AWSRegion = "eu-central-1"
	if got := DeploymentPrefix(cfg); got != "n8nctl-aws-eu-central-1" {
		t.Errorf("unexpected prefix %q", got)
	}
}

type stubConfig struct {
	provider config.Provider
}

func (s stubConfig) Provider() config.Provider        { return s.provider }
func (s stubConfig) Location() config.Location        { return config.Location{} }
func (s stubConfig) Cluster() config.ClusterSettings  { return config.ClusterSettings{} }
func (s stubConfig) App() config.AppOptions           { return config.AppOptions{} }
func (s stubConfig) Security() config.SecurityOptions { return config.SecurityOptions{} }
func (s stubConfig) Validate() error                  { return nil }
func (s stubConfig) Variables() map[string]cty.Value  { return nil }

func TestForProviderUnknown(t *testing.T) {
	_, err := ForProvider(context.Background(), stubConfig{provider: "digitalocean"}, "")
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "digitalocean") {
		t.Errorf("expected provider name in error, got %q", err.Error())
	}
}

func TestForProviderAzureRequiresVaultURI(t *testing.T) {
	_, err := ForProvider(context.Background(), stubConfig{provider: config.ProviderAzure}, "")
	if err == nil {
		t.Fatal("expected error for missing vault URI")
	}
	if !strings.Contains(err.Error(), "key vault") {
		t.Errorf("expected key vault mention, got %q", err.Error())
	}
}

func TestForProviderGCPRequiresProject(t *testing.T) {
	_, err := ForProvider(context.Background(), stubConfig{provider: config.ProviderGCP}, "")
	if err == nil {
		t.Fatal("expected error for missing project id")
	}
	if !strings.Contains(err.Error(), "project") {
		t.Errorf("expected project mention, got %q", err.Error())
	}
}
