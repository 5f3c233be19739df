package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/orchestrator"
)

func newDeployCmd() *cobra.Command {
	var (
		configFile       string
		workDir          string
		provider         string
		skipProvisioning bool
		autoApprove      bool
		backendType      string
		backendConfig    []string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy n8n to a cloud provider",
		Long: `Deploy n8n through the full lifecycle: provision the infrastructure
with terraform, install the helm release, discover the public endpoint,
and apply the configured TLS/basic-auth hardening.

The deployment config file names the provider and everything the stack
needs. Re-running deploy with the same config is safe: provisioning is
idempotent and the release is upgraded in place.

Examples:
  n8nctl deploy
  n8nctl deploy --config-file prod.yaml --auto-approve
  n8nctl deploy --skip-provisioning     # re-run phases 2-4 on existing infrastructure`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger, err := buildLogger()
			if err != nil {
				return err
			}

			cfg, configPath, err := loadDeployConfig(workDir, configFile)
			if err != nil {
				return err
			}
			if provider != "" && string(cfg.Provider()) != provider {
				return fmt.Errorf("--provider %s does not match cloud_provider %s in %s", provider, cfg.Provider(), configPath)
			}

			snapshots, err := createSnapshotManager(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create snapshot manager: %w", err)
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

			fmt.Printf("Provider:  %s\n", cfg.Provider())
			fmt.Printf("Region:    %s\n", cfg.Location().Region)
			fmt.Printf("Host:      %s\n", cfg.App().Host)
			fmt.Println()

			result, err := orch.Run(ctx, cfg, orchestrator.RunOptions{
				WorkDir:          workDir,
				ConfigPath:       configPath,
				SkipProvisioning: skipProvisioning,
				AutoApprove:      autoApprove,
				Interactive:      isInteractive(),
				Output:           os.Stdout,
				Input:            os.Stdin,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n[success] Deployment finished in %v\n", result.Duration.Round(time.Second))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config-file", "f", "", "Deployment config file (default ./"+DefaultConfigFileName+")")
	cmd.Flags().StringVar(&workDir, "workdir", ".", "Working directory holding the terraform stacks and helm chart")
	cmd.Flags().StringVar(&provider, "provider", "", "Expected cloud provider (aws, azure, gcp); must match the config file")
	cmd.Flags().BoolVar(&skipProvisioning, "skip-provisioning", false, "Skip phase 1 and deploy against existing infrastructure")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Apply the infrastructure plan without confirmation")
	cmd.Flags().StringVar(&backendType, "snapshot-backend", "", "Snapshot backend type (local, s3, gcs, azblob)")
	cmd.Flags().StringArrayVar(&backendConfig, "snapshot-backend-config", nil, "Snapshot backend configuration (key=value)")

	return cmd
}
