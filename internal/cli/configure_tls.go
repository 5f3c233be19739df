package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/orchestrator"
)

func newConfigureTLSCmd() *cobra.Command {
	var (
		configFile    string
		workDir       string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "configure-tls",
		Short: "Configure TLS on an existing deployment",
		Long: `Re-run the TLS hardening step against an already-deployed stack.

With tls_certificate_source: automatic, cert-manager is installed (if
missing) and a Let's Encrypt certificate is requested for the configured
host. With custom, the certificate and key files from the config are
installed directly. The config must have enable_tls: true.

Useful when TLS was skipped on the first deploy, when DNS was not ready
at deploy time, or after switching between the staging and production
issuers.

Examples:
  n8nctl configure-tls
  n8nctl configure-tls --config-file prod.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger, err := buildLogger()
			if err != nil {
				return err
			}

			cfg, err := loadCurrentConfig(workDir, configFile)
			if err != nil {
				return err
			}

			snapshots, err := createSnapshotManager(backendType, backendConfig)
			if err != nil {
				return err
			}

			history, err := config.OpenHistory(workDir)
			if err != nil {
				return err
			}
			defer history.Close()

			orch, err := createOrchestrator(cfg, workDir, snapshots, history, logger)
			if err != nil {
				return err
			}

			return orch.ConfigureTLS(ctx, cfg, orchestrator.RunOptions{
				WorkDir: workDir,
				Output:  os.Stdout,
			})
		},
	}

	cmd.Flags().StringVarP(&configFile, "config-file", "f", "", "Deployment config file (default: the current deployment record)")
	cmd.Flags().StringVar(&workDir, "workdir", ".", "Working directory holding the terraform stacks and helm chart")
	cmd.Flags().StringVar(&backendType, "snapshot-backend", "", "Snapshot backend type (local, s3, gcs, azblob)")
	cmd.Flags().StringArrayVar(&backendConfig, "snapshot-backend-config", nil, "Snapshot backend configuration (key=value)")

	return cmd
}
