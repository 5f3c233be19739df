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
	"github.com/n8nops/n8nctl/pkg/logging"
	"github.com/n8nops/n8nctl/pkg/terraform"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage regional state snapshots",
		Long: `Commands for the per-region infrastructure state snapshots.

A snapshot is the terraform state of one (provider, region) deployment
plus a redacted copy of its configuration. Deploys save one
automatically; these commands let you inspect, move, and prune them.`,
	}

	cmd.AddCommand(newSnapshotListCmd())
	cmd.AddCommand(newSnapshotSaveCmd())
	cmd.AddCommand(newSnapshotRestoreCmd())
	cmd.AddCommand(newSnapshotDeleteCmd())

	return cmd
}

func newSnapshotListCmd() *cobra.Command {
	var (
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			snapshots, err := createSnapshotManager(backendType, backendConfig)
			if err != nil {
				return err
			}

			handles, err := snapshots.List(ctx)
			if err != nil {
				return err
			}
			if len(handles) == 0 {
				fmt.Println("No snapshots stored.")
				return nil
			}

			fmt.Printf("%-8s %-16s %-28s %-20s %s\n", "PROVIDER", "REGION", "HOST", "CREATED", "BY")
			for _, h := range handles {
				fmt.Printf("%-8s %-16s %-28s %-20s %s\n",
					h.Provider, h.Region, h.Host,
					h.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					h.CreatedBy,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&backendType, "snapshot-backend", "", "Snapshot backend type (local, s3, gcs, azblob)")
	cmd.Flags().StringArrayVar(&backendConfig, "snapshot-backend-config", nil, "Snapshot backend configuration (key=value)")

	return cmd
}

func newSnapshotSaveCmd() *cobra.Command {
	var (
		configFile    string
		workDir       string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save the current deployment's state as a snapshot",
		Long: `Save the stack directory's terraform state under the deployment's
(provider, region) key. An existing snapshot for the same key is
overwritten; at most one snapshot is live per deployment.

Examples:
  n8nctl snapshot save
  n8nctl snapshot save --config-file prod.yaml --snapshot-backend s3 --snapshot-backend-config bucket=n8n-state`,
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

			infra, err := terraform.NewRunner(stackDir(workDir, cfg.Provider()), logging.WithComponent(logger, "terraform"))
			if err != nil {
				return err
			}

			handle, err := snapshots.Save(ctx, cfg, infra.StatePath())
			if err != nil {
				return err
			}

			fmt.Printf("Saved snapshot %s/%s (%s).\n", handle.Provider, handle.Region, handle.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config-file", "f", "", "Deployment config file (default: the current deployment record)")
	cmd.Flags().StringVar(&workDir, "workdir", ".", "Working directory holding the terraform stacks")
	cmd.Flags().StringVar(&backendType, "snapshot-backend", "", "Snapshot backend type (local, s3, gcs, azblob)")
	cmd.Flags().StringArrayVar(&backendConfig, "snapshot-backend-config", nil, "Snapshot backend configuration (key=value)")

	return cmd
}

func newSnapshotRestoreCmd() *cobra.Command {
	var (
		workDir       string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "restore <provider> <region>",
		Short: "Restore a snapshot into the stack directory",
		Long: `Replace the stack directory's terraform state with the stored snapshot
for (provider, region). The replacement is atomic; the previous state
file is overwritten, never merged.

Examples:
  n8nctl snapshot restore aws eu-west-1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			provider, region := args[0], args[1]
			if _, err := config.ParseProvider(provider); err != nil {
				return err
			}

			logger, err := buildLogger()
			if err != nil {
				return err
			}

			snapshots, err := createSnapshotManager(backendType, backendConfig)
			if err != nil {
				return err
			}

			infra, err := terraform.NewRunner(stackDir(workDir, config.Provider(provider)), logging.WithComponent(logger, "terraform"))
			if err != nil {
				return err
			}

			handle, err := snapshots.Restore(ctx, provider, region, infra.StatePath())
			if err != nil {
				return err
			}

			fmt.Printf("Restored snapshot %s/%s (created %s) to %s.\n",
				handle.Provider, handle.Region,
				handle.CreatedAt.Local().Format(time.RFC3339),
				infra.StatePath(),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&workDir, "workdir", ".", "Working directory holding the terraform stacks")
	cmd.Flags().StringVar(&backendType, "snapshot-backend", "", "Snapshot backend type (local, s3, gcs, azblob)")
	cmd.Flags().StringArrayVar(&backendConfig, "snapshot-backend-config", nil, "Snapshot backend configuration (key=value)")

	return cmd
}

func newSnapshotDeleteCmd() *cobra.Command {
	var (
		autoApprove   bool
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "delete <provider> <region>",
		Short: "Delete a stored snapshot",
		Long: `Delete the snapshot for (provider, region) from the backend.

This only removes the stored state copy; the deployed infrastructure is
untouched. A deployment whose snapshot is deleted can no longer be torn
down with --select from another machine.

Examples:
  n8nctl snapshot delete aws eu-west-1 --auto-approve`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			provider, region := args[0], args[1]
			if _, err := config.ParseProvider(provider); err != nil {
				return err
			}

			if !autoApprove {
				fmt.Printf("Delete the stored snapshot for %s/%s? [y/N]: ", provider, region)
				var response string
				_, _ = fmt.Scanln(&response)
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "y" && response != "yes" {
					fmt.Println("Delete cancelled.")
					return nil
				}
			}

			snapshots, err := createSnapshotManager(backendType, backendConfig)
			if err != nil {
				return err
			}

			if err := snapshots.Delete(ctx, provider, region); err != nil {
				return err
			}

			fmt.Printf("Deleted snapshot %s/%s.\n", provider, region)
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip confirmation prompt")
	cmd.Flags().StringVar(&backendType, "snapshot-backend", "", "Snapshot backend type (local, s3, gcs, azblob)")
	cmd.Flags().StringArrayVar(&backendConfig, "snapshot-backend-config", nil, "Snapshot backend configuration (key=value)")

	return cmd
}
