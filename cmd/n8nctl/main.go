// Package main provides the n8nctl CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/n8nops/n8nctl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
