package helm

import (
	"context"
	stderrors "errors"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
	"github.com/n8nops/n8nctl/pkg/kube"
	"github.com/n8nops/n8nctl/pkg/retry"
	"github.com/n8nops/n8nctl/pkg/terraform"
)

// ReleaseName is the helm release (and workload) name for the app.
const ReleaseName = "n8n"

// DeployHealth is the observed workload state after a deploy.
type DeployHealth struct {
	ReadyReplicas int
	Desired       int
	// Status is "deployed" for a first install, "upgraded" when the
	// release already existed.
	Status    string
	LastError string
}

// releaseManager is the slice of Runner the deployer needs.
type releaseManager interface {
	UpgradeInstall(ctx context.Context, release, chart string, opts InstallOptions) error
	ReleaseExists(ctx context.Context, release, namespace string) (bool, error)
}

// workloadWatcher is the slice of the kubectl client the deployer needs.
type workloadWatcher interface {
	DeploymentReplicas(ctx context.Context, namespace, name string) (ready, desired int, err error)
}

// Deployer installs or upgrades the n8n release and waits for the
// workload to come up.
type Deployer struct {
	helm   releaseManager
	kube   workloadWatcher
	chart  string
	log    zerolog.Logger
	health retry.Options
}

// NewDeployer creates a deployer for the chart at chartPath.
func NewDeployer(runner *Runner, client *kube.Client, chartPath string, logger zerolog.Logger) *Deployer {
	return &Deployer{
		helm:  runner,
		kube:  client,
		chart: chartPath,
		log:   logger,
		health: retry.Options{
			Attempts: 30,
			Interval: 10 * time.Second,
			Timeout:  5 * time.Minute,
		},
	}
}

// Deploy renders the values file and runs upgrade --install, then polls
// the deployment until every desired replica is ready. Command success
// only means accepted, so the poll is what decides health.
func (d *Deployer) Deploy(ctx context.Context, cfg config.DeploymentConfig, infra *terraform.Outputs) (*DeployHealth, error) {
	namespace := cfg.App().Namespace

	existed, err := d.helm.ReleaseExists(ctx, ReleaseName, namespace)
	if err != nil {
		return nil, err
	}

	overrides, err := BuildOverrides(cfg, infra)
	if err != nil {
		return nil, err
	}
	values, err := MarshalValues(overrides)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, "failed to render values", err)
	}

	valuesFile, err := writeTempValues(values)
	if err != nil {
		return nil, err
	}
	defer os.Remove(valuesFile)

	d.log.Info().
		Str("release", ReleaseName).
		Str("namespace", namespace).
		Bool("upgrade", existed).
		Msg("deploying application")

	if err := d.helm.UpgradeInstall(ctx, ReleaseName, d.chart, InstallOptions{
		Namespace:       namespace,
		CreateNamespace: true,
		ValuesFile:      valuesFile,
	}); err != nil {
		return nil, err
	}

	health := &DeployHealth{Status: "deployed"}
	if existed {
		health.Status = "upgraded"
	}

	err = retry.Do(ctx, d.health, func(ctx context.Context) (bool, error) {
		ready, desired, err := d.kube.DeploymentReplicas(ctx, namespace, ReleaseName)
		if err != nil {
			// The deployment appears a beat after the release is accepted.
			if errors.Is(err, errors.ErrCodeNotFound) {
				health.LastError = err.Error()
				return false, nil
			}
			return false, err
		}
		health.ReadyReplicas = ready
		health.Desired = desired
		if desired > 0 && ready >= desired {
			health.LastError = ""
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		if stderrors.Is(err, retry.ErrExhausted) {
			return health, errors.HealthTimeoutError(ReleaseName, health.ReadyReplicas, health.Desired, d.health.Timeout.String())
		}
		return health, err
	}

	d.log.Info().
		Int("ready", health.ReadyReplicas).
		Int("desired", health.Desired).
		Str("status", health.Status).
		Msg("workload healthy")
	return health, nil
}

// writeTempValues writes the rendered values to a private temp file. The
// file holds the encryption key, so it lives only for the helm call.
func writeTempValues(values []byte) (string, error) {
	f, err := os.CreateTemp("", "n8n-values-*.yaml")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeIO, "failed to create values file", err)
	}
	if _, err := f.Write(values); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", errors.Wrap(errors.ErrCodeIO, "failed to write values file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(errors.ErrCodeIO, "failed to close values file", err)
	}
	return f.Name(), nil
}
