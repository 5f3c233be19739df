package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/preflight"
)

func newPreflightCmd() *cobra.Command {
	var (
		configFile string
		workDir    string
		provider   string
	)

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check tools and cloud credentials without deploying",
		Long: `Run the checks a deploy would run before touching anything: required
binaries on PATH, cloud credentials that authenticate, and provider
capabilities (enabled APIs, reachable subscription).

With a config file the checks target that deployment. With only
--provider, the provider defaults are used; this verifies the operator
can deploy at all, not a specific configuration.

Examples:
  n8nctl preflight
  n8nctl preflight --provider gcp
  n8nctl preflight --config-file prod.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := preflightConfig(workDir, configFile, provider)
			if err != nil {
				return err
			}

			fmt.Printf("Preflight checks for %s\n\n", cfg.Provider())

			report, runErr := preflight.Run(ctx, cfg)

			for _, status := range report.Tools {
				mark := "ok"
				switch {
				case !status.Installed:
					mark = "MISSING"
				case !status.Supported:
					mark = "OUTDATED (requires >=" + status.Tool.MinVersion + ")"
				}
				fmt.Printf("  %-10s %s", status.Tool.Name, mark)
				if status.Version != "" {
					fmt.Printf("  (v%s)", status.Version)
				}
				if !status.Installed {
					fmt.Printf("\n             install: %s", status.Tool.InstallURL)
				}
				fmt.Println()
			}

			if report.Identity != "" {
				fmt.Printf("\nCredentials: %s\n", report.Identity)
			}
			if len(report.Missing) > 0 {
				fmt.Println("\nMissing capabilities:")
				for _, c := range report.Missing {
					fmt.Printf("  - %s\n", c)
				}
			}

			if runErr != nil {
				return runErr
			}
			fmt.Println("\nAll preflight checks passed.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config-file", "f", "", "Deployment config file (default ./"+DefaultConfigFileName+" if present)")
	cmd.Flags().StringVar(&workDir, "workdir", ".", "Working directory")
	cmd.Flags().StringVar(&provider, "provider", "", "Check a provider without a config file (aws, azure, gcp)")

	return cmd
}

// preflightConfig picks the config the checks run against: an explicit
// file, the default file when present, or bare provider defaults.
func preflightConfig(workDir, configFile, provider string) (config.DeploymentConfig, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	if cfg, _, err := loadDeployConfig(workDir, ""); err == nil {
		if provider == "" || string(cfg.Provider()) == provider {
			return cfg, nil
		}
	}

	p, err := config.ParseProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("no config file found; pass --provider to check credentials without one")
	}
	switch p {
	case config.ProviderAWS:
		return config.NewAWSConfig(), nil
	case config.ProviderAzure:
		return config.NewAzureConfig(), nil
	default:
		return config.NewGCPConfig(), nil
	}
}
