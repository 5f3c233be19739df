// Package secrets stores out-of-band credentials (basic-auth passwords,
// operator-supplied key material) in the deployment provider's secret
// store. Terraform owns the secrets it creates itself; this store only
// holds what the tool writes directly, so teardown can purge exactly that
// set and nothing else.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/n8nops/n8nctl/pkg/config"
)

// ErrSecretNotFound is returned when a secret doesn't exist in the store.
var ErrSecretNotFound = errors.New("secret not found")

// Store reads and writes named secrets in one provider's secret store.
type Store interface {
	// Provider identifies the backing store ("aws", "gcp", "azure").
	Provider() string

	// Put creates the secret or replaces its value.
	Put(ctx context.Context, name, value string) error

	// Get returns the current value, or ErrSecretNotFound.
	Get(ctx context.Context, name string) (string, error)

	// Delete removes the secret. Deleting a missing secret is not an
	// error.
	Delete(ctx context.Context, name string) error

	// List returns the names under prefix. Teardown purge is the only
	// caller.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ForProvider builds the store for the deployment's provider. vaultURI is
// the Key Vault locator the Azure stack exports; the other providers
// locate their store from the config alone.
func ForProvider(ctx context.Context, cfg config.DeploymentConfig, vaultURI string) (Store, error) {
	switch cfg.Provider() {
	case config.ProviderAWS:
		loc := cfg.Location()
		return newAWSStore(ctx, loc.Region, loc.Account)
	case config.ProviderGCP:
		return newGCPStore(ctx, cfg.Location().Account)
	case config.ProviderAzure:
		if vaultURI == "" {
			return nil, fmt.Errorf("azure secret store requires the key vault URI from provisioning outputs")
		}
		return newAzureStore(vaultURI)
	default:
		return nil, fmt.Errorf("no secret store for provider %q", cfg.Provider())
	}
}

// DeploymentPrefix scopes out-of-band secret names to one deployment.
// Hardening writes under it and teardown purge matches on it.
func DeploymentPrefix(cfg config.DeploymentConfig) string {
	return SanitizeName("n8nctl", string(cfg.Provider()), cfg.Location().Region)
}

// SanitizeName converts an arbitrary string into a name every provider
// accepts: lowercase, dash-separated, alphanumeric. GCP secret IDs in
// particular forbid slashes and dots.
func SanitizeName(parts ...string) string {
	joined := strings.ToLower(strings.Join(parts, "-"))
	var b strings.Builder
	lastDash := true // trim leading dashes
	for _, r := range joined {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
