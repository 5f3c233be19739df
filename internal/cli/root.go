// Package cli implements the n8nctl CLI commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Import snapshot backends to register them via init()
	_ "github.com/n8nops/n8nctl/pkg/snapshot/backend/azblob"
	_ "github.com/n8nops/n8nctl/pkg/snapshot/backend/gcs"
	_ "github.com/n8nops/n8nctl/pkg/snapshot/backend/local"
	_ "github.com/n8nops/n8nctl/pkg/snapshot/backend/s3"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "n8nctl",
	Short: "Provision and manage cloud-hosted n8n deployments",
	Long: `n8nctl provisions a production n8n stack on AWS, Azure, or GCP.

It drives terraform, helm, and kubectl through a guarded deployment
lifecycle: infrastructure provisioning, application deployment, endpoint
discovery, and optional TLS/basic-auth hardening. Teardown removes the
same stack in reverse order without leaving billable resources behind.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "CLI config file (default is $HOME/.n8nctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")

	// Bind to viper
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.SetEnvPrefix("N8NCTL")
	viper.AutomaticEnv()

	// Add subcommands
	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newTeardownCmd())
	rootCmd.AddCommand(newConfigureTLSCmd())
	rootCmd.AddCommand(newPreflightCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.n8nctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// Read config file if it exists
	_ = viper.ReadInConfig()
}
