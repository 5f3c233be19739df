package preflight

import (
	"context"
	"time"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
)

// verifyTimeout bounds every credential probe so a misconfigured proxy or
// dead metadata endpoint cannot hang the run.
const verifyTimeout = 30 * time.Second

// Capability names a provider-side ability the deployment depends on: an
// enabled API on GCP, a reachable subscription on Azure, a service scope
// on AWS.
type Capability string

// CredentialChecker verifies cloud credentials before provisioning.
// Verify failing with AUTH_ERROR means not authenticated at all;
// CAPABILITY_MISSING means authenticated but unable to act.
type CredentialChecker interface {
	// Verify confirms the credentials authenticate and returns an
	// operator-facing identity summary.
	Verify(ctx context.Context) (string, error)

	// RequiredCapabilities lists what this deployment needs up front.
	RequiredCapabilities() []Capability

	// MissingCapabilities reports required capabilities the verified
	// credentials lack. Only meaningful after Verify succeeds.
	MissingCapabilities(ctx context.Context) ([]Capability, error)
}

// NewChecker returns the credential checker for the config's provider.
func NewChecker(cfg config.DeploymentConfig) (CredentialChecker, error) {
	switch cfg.Provider() {
	case config.ProviderAWS:
		return &awsChecker{cfg: cfg}, nil
	case config.ProviderAzure:
		return &azureChecker{cfg: cfg}, nil
	case config.ProviderGCP:
		return &gcpChecker{cfg: cfg}, nil
	default:
		return nil, errors.New(errors.ErrCodeValidation, "no credential checker for provider "+string(cfg.Provider()))
	}
}

// Report is the combined result of a preflight run.
type Report struct {
	Tools    []ToolStatus
	Identity string
	Required []Capability
	Missing  []Capability
}

// Run executes the full preflight: tool gates first, then credential
// verification, then capability probing. It stops at the first failing
// stage; nothing downstream is attempted with a broken foundation.
func Run(ctx context.Context, cfg config.DeploymentConfig) (*Report, error) {
	report := &Report{}

	statuses, err := CheckTools(ctx, RequiredTools(cfg))
	report.Tools = statuses
	if err != nil {
		return report, err
	}

	checker, err := NewChecker(cfg)
	if err != nil {
		return report, err
	}
	report.Required = checker.RequiredCapabilities()

	identity, err := checker.Verify(ctx)
	if err != nil {
		return report, err
	}
	report.Identity = identity

	missing, err := checker.MissingCapabilities(ctx)
	if err != nil {
		return report, err
	}
	report.Missing = missing
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, c := range missing {
			names[i] = string(c)
		}
		return report, errors.CapabilityError(string(cfg.Provider()), names)
	}
	return report, nil
}
