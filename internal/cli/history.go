package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/n8nops/n8nctl/pkg/config"
)

func newHistoryCmd() *cobra.Command {
	var (
		workDir     string
		limit       int
		showCurrent bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded deployment attempts",
		Long: `Show the deployment ledger, newest first. Every deploy appends one
record; secrets are redacted before anything is written, so the ledger
is safe to share when debugging.

Examples:
  n8nctl history
  n8nctl history --limit 5
  n8nctl history --current     # only the record behind the last successful deploy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := config.OpenHistory(workDir)
			if err != nil {
				return err
			}
			defer history.Close()

			if showCurrent {
				entry, err := history.Current()
				if err != nil {
					return err
				}
				return printEntry(entry, true)
			}

			entries, err := history.Entries(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No deployments recorded yet.")
				return nil
			}

			for i := range entries {
				if i > 0 {
					fmt.Println()
				}
				if err := printEntry(&entries[i], false); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workDir, "workdir", ".", "Working directory holding the ledger")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most n entries (0 = all)")
	cmd.Flags().BoolVar(&showCurrent, "current", false, "Show only the current deployment record")

	return cmd
}

// printEntry renders one ledger record. The full config dump is reserved
// for --current; list mode keeps one line of fields per record.
func printEntry(entry *config.Entry, full bool) error {
	cfg, err := entry.Config()
	if err != nil {
		// Older or hand-edited records still show their header.
		fmt.Printf("%s  %-6s  (unreadable configuration: %v)\n",
			entry.Timestamp.Local().Format(time.RFC3339), entry.Provider, err)
		return nil
	}

	fmt.Printf("%s  %-6s  region=%s  host=%s\n",
		entry.Timestamp.Local().Format(time.RFC3339),
		entry.Provider,
		cfg.Location().Region,
		cfg.App().Host,
	)

	if full {
		var pretty map[string]interface{}
		if err := json.Unmarshal(entry.Configuration, &pretty); err != nil {
			return err
		}
		data, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n", data)
	}
	return nil
}
