package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/helm"
	"github.com/n8nops/n8nctl/pkg/kube"
	"github.com/n8nops/n8nctl/pkg/logging"
	"github.com/n8nops/n8nctl/pkg/orchestrator"
	"github.com/n8nops/n8nctl/pkg/snapshot"
	"github.com/n8nops/n8nctl/pkg/teardown"
	"github.com/n8nops/n8nctl/pkg/terraform"
)

// DefaultConfigFileName is the deployment config file looked up in the
// working directory when --config-file is not given.
const DefaultConfigFileName = "n8n-deploy.yaml"

// stackDir returns the provider's terraform working directory.
func stackDir(workDir string, provider config.Provider) string {
	return filepath.Join(workDir, "terraform", string(provider))
}

// chartDir returns the n8n helm chart directory.
func chartDir(workDir string) string {
	return filepath.Join(workDir, "helm")
}

// buildLogger constructs the shared logger from the global flags.
func buildLogger() (zerolog.Logger, error) {
	return logging.New(logging.Config{
		Level:  viper.GetString("log-level"),
		Format: viper.GetString("log-format"),
	})
}

// loadDeployConfig loads and validates the deployment config for a deploy
// run. The config must come from a file: an explicit --config-file, or
// n8n-deploy.yaml in the working directory.
func loadDeployConfig(workDir, configFile string) (config.DeploymentConfig, string, error) {
	path := configFile
	if path == "" {
		candidate := filepath.Join(workDir, DefaultConfigFileName)
		if _, err := os.Stat(candidate); err != nil {
			return nil, "", fmt.Errorf(
				"no deployment config found\n\n"+
					"Write %s in the working directory or pass --config-file.\n"+
					"A minimal AWS config:\n\n"+
					"  cloud_provider: aws\n"+
					"  aws_region: us-east-1\n"+
					"  n8n_host: n8n.example.com\n",
				DefaultConfigFileName,
			)
		}
		path = candidate
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// loadCurrentConfig resolves the config describing the existing deployment:
// an explicit --config-file wins, then the current-deployment record left
// by the last successful run.
func loadCurrentConfig(workDir, configFile string) (config.DeploymentConfig, error) {
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	history, err := config.OpenHistory(workDir)
	if err != nil {
		return nil, err
	}
	defer history.Close()

	entry, err := history.Current()
	if err != nil {
		return nil, fmt.Errorf(
			"no current deployment recorded in %s\n\n"+
				"Pass --config-file to name the deployment explicitly.",
			workDir,
		)
	}
	return entry.Config()
}

// createOrchestrator wires the deployment orchestrator for the config's
// provider: terraform in the provider's stack directory, the n8n chart
// from the workspace, helm and kubectl from PATH.
func createOrchestrator(cfg config.DeploymentConfig, workDir string, snapshots *snapshot.Manager, history *config.HistoryStore, logger zerolog.Logger) (*orchestrator.Orchestrator, error) {
	infra, err := terraform.NewRunner(stackDir(workDir, cfg.Provider()), logging.WithComponent(logger, "terraform"))
	if err != nil {
		return nil, err
	}
	helmRunner, err := helm.NewRunner(logging.WithComponent(logger, "helm"))
	if err != nil {
		return nil, err
	}
	kubeClient, err := kube.NewClient(logging.WithComponent(logger, "kubectl"))
	if err != nil {
		return nil, err
	}
	deployer := helm.NewDeployer(helmRunner, kubeClient, chartDir(workDir), logging.WithComponent(logger, "deploy"))

	return orchestrator.New(orchestrator.Deps{
		Infra:     infra,
		Deployer:  deployer,
		Helm:      helmRunner,
		Kube:      kubeClient,
		Snapshots: snapshots,
		History:   history,
		Logger:    logger,
	}), nil
}

// createTeardownSequencer wires the teardown sequencer for the config's
// provider.
func createTeardownSequencer(cfg config.DeploymentConfig, workDir string, snapshots *snapshot.Manager, history *config.HistoryStore, logger zerolog.Logger) (*teardown.Sequencer, error) {
	infra, err := terraform.NewRunner(stackDir(workDir, cfg.Provider()), logging.WithComponent(logger, "terraform"))
	if err != nil {
		return nil, err
	}
	helmRunner, err := helm.NewRunner(logging.WithComponent(logger, "helm"))
	if err != nil {
		return nil, err
	}
	kubeClient, err := kube.NewClient(logging.WithComponent(logger, "kubectl"))
	if err != nil {
		return nil, err
	}

	return teardown.New(teardown.Deps{
		Infra:     infra,
		Helm:      helmRunner,
		Kube:      kubeClient,
		Snapshots: snapshots,
		History:   history,
		Logger:    logger,
	}), nil
}
