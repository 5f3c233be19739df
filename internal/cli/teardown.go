package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/teardown"
)

func newTeardownCmd() *cobra.Command {
	var (
		configFile    string
		workDir       string
		selectKey     string
		autoApprove   bool
		purgeSecrets  bool
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Tear down a deployed n8n stack",
		Long: `Tear down a deployment in reverse order: drain the application
releases, remove namespace-scoped resources, destroy the infrastructure,
then clear the deployment records.

By default the current deployment (recorded by the last deploy) is torn
down. Use --select to operate on a specific regional state snapshot
instead; its stored state is restored into the stack directory first.

Resources with deletion protection still enabled abort the teardown
before anything is destroyed. Re-running after a partial teardown is
safe: already-removed resources are reported as warnings and skipped.

Examples:
  n8nctl teardown
  n8nctl teardown --auto-approve
  n8nctl teardown --select aws,eu-west-1
  n8nctl teardown --purge-secrets     # also remove stored credentials (cannot be undone)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger, err := buildLogger()
			if err != nil {
				return err
			}

			snapshots, err := createSnapshotManager(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create snapshot manager: %w", err)
			}

			opts := teardown.Options{
				PurgeSecrets: purgeSecrets,
				Output:       os.Stdout,
			}

			// Resolve the deployment to remove: a selected snapshot brings
			// its own stored config, otherwise the current record decides.
			var cfg config.DeploymentConfig
			if selectKey != "" {
				provider, region, err := parseSnapshotKey(selectKey)
				if err != nil {
					return err
				}
				raw, err := snapshots.Config(ctx, provider, region)
				if err != nil {
					return err
				}
				cfg, err = config.DecodeJSON(config.Provider(provider), raw)
				if err != nil {
					return err
				}
				opts.RestoreProvider = provider
				opts.RestoreRegion = region
			} else {
				cfg, err = loadCurrentConfig(workDir, configFile)
				if err != nil {
					return err
				}
			}

			// Display what will be destroyed
			fmt.Printf("Provider:  %s\n", cfg.Provider())
			fmt.Printf("Region:    %s\n", cfg.Location().Region)
			fmt.Printf("Cluster:   %s\n", cfg.Cluster().Name)
			fmt.Printf("Host:      %s\n", cfg.App().Host)
			fmt.Println()
			fmt.Println("This destroys the cluster, its workloads, and every resource the")
			fmt.Println("stack provisioned. Workflow data not exported elsewhere is lost.")
			fmt.Println()

			// Confirm unless --auto-approve is provided
			if !autoApprove {
				fmt.Print("Are you sure you want to tear down this deployment? [y/N]: ")
				var response string
				_, _ = fmt.Scanln(&response)
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "y" && response != "yes" {
					fmt.Println("Teardown cancelled.")
					return nil
				}

				if purgeSecrets {
					fmt.Print("Also purge stored secrets? This cannot be undone. [y/N]: ")
					var purgeResponse string
					_, _ = fmt.Scanln(&purgeResponse)
					purgeResponse = strings.ToLower(strings.TrimSpace(purgeResponse))
					if purgeResponse != "y" && purgeResponse != "yes" {
						fmt.Println("Keeping stored secrets.")
						opts.PurgeSecrets = false
					}
				}
			}

			history, err := config.OpenHistory(workDir)
			if err != nil {
				return err
			}
			defer history.Close()

			seq, err := createTeardownSequencer(cfg, workDir, snapshots, history, logger)
			if err != nil {
				return err
			}

			fmt.Println()
			result, err := seq.Run(ctx, cfg, opts)
			if err != nil {
				return err
			}

			fmt.Printf("\n[success] Teardown finished in %v\n", result.Duration.Round(time.Second))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config-file", "f", "", "Deployment config file (default: the current deployment record)")
	cmd.Flags().StringVar(&workDir, "workdir", ".", "Working directory holding the terraform stacks and helm chart")
	cmd.Flags().StringVar(&selectKey, "select", "", "Tear down a specific state snapshot (<provider>,<region>)")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip confirmation prompts")
	cmd.Flags().BoolVar(&purgeSecrets, "purge-secrets", false, "Also remove the credentials this tool stored in the provider's secret store")
	cmd.Flags().StringVar(&backendType, "snapshot-backend", "", "Snapshot backend type (local, s3, gcs, azblob)")
	cmd.Flags().StringArrayVar(&backendConfig, "snapshot-backend-config", nil, "Snapshot backend configuration (key=value)")

	return cmd
}

// parseSnapshotKey splits the --select argument into provider and region.
func parseSnapshotKey(key string) (provider, region string, err error) {
	parts := strings.SplitN(key, ",", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid --select value %q (expected <provider>,<region>, e.g. aws,eu-west-1)", key)
	}
	if _, err := config.ParseProvider(parts[0]); err != nil {
		return "", "", err
	}
	return parts[0], strings.TrimSpace(parts[1]), nil
}
