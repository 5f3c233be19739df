package cli

import (
	"testing"
)

func TestNewDeployCmd_Flags(t *testing.T) {
	cmd := newDeployCmd()

	if cmd.Use != "deploy" {
		t.Errorf("expected use 'deploy', got '%s'", cmd.Use)
	}

	// Check flags
	flags := []string{"config-file", "workdir", "provider", "skip-provisioning", "auto-approve", "snapshot-backend", "snapshot-backend-config"}
	for _, flagName := range flags {
		if cmd.Flags().Lookup(flagName) == nil {
			t.Errorf("expected --%s flag", flagName)
		}
	}

	// Check shorthands
	if cmd.Flags().ShorthandLookup("f") == nil {
		t.Error("expected -f shorthand for --config-file")
	}
}

func TestNewDeployCmd_RejectsArgs(t *testing.T) {
	cmd := newDeployCmd()
	if cmd.Args == nil {
		t.Fatal("expected Args validator")
	}
	if err := cmd.Args(cmd, []string{"unexpected"}); err == nil {
		t.Error("expected positional args to be rejected")
	}
}
