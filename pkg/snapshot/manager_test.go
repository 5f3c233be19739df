package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
	"github.com/n8nops/n8nctl/pkg/snapshot/backend/local"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	b, err := local.NewBackend(map[string]string{"path": t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	return NewManager(b)
}

func testConfig(t *testing.T) *config.AWSConfig {
	t.Helper()

	cfg := config.NewAWSConfig()
	cfg.AWSRegion = "us-east-1"
	cfg.Host = "n8n.example.com"
	cfg.EncryptionKey = config.Secret("super-secret-key")
	return cfg
}

func writeStateFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "terraform.tfstate")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write state file: %v", err)
	}
	return path
}

func TestManager_SaveAndRestore(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	statePath := writeStateFile(t, `{"version": 4, "serial": 7}`)

	handle, err := m.Save(ctx, testConfig(t), statePath)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if handle.Provider != "aws" {
		t.Errorf("expected provider aws, got %q", handle.Provider)
	}
	if handle.Region != "us-east-1" {
		t.Errorf("expected region us-east-1, got %q", handle.Region)
	}
	if handle.ID == "" {
		t.Error("expected handle ID to be set")
	}

	destPath := filepath.Join(t.TempDir(), "terraform.tfstate")
	restored, err := m.Restore(ctx, "aws", "us-east-1", destPath)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored.ID != handle.ID {
		t.Errorf("expected restored handle %s, got %s", handle.ID, restored.ID)
	}

	data, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("failed to read restored state: %v", err)
	}
	if string(data) != `{"version": 4, "serial": 7}` {
		t.Errorf("restored state does not match: %s", data)
	}
}

func TestManager_RestoreNotFound(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	destPath := filepath.Join(t.TempDir(), "terraform.tfstate")
	_, err := m.Restore(ctx, "gcp", "us-central1", destPath)
	if err == nil {
		t.Fatal("expected error for missing snapshot")
	}
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	// Nothing should have been written to the destination
	if _, statErr := os.Stat(destPath); !os.IsNotExist(statErr) {
		t.Error("expected destination to be untouched on failed restore")
	}
}

func TestManager_SavedConfigIsRedacted(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	statePath := writeStateFile(t, `{"version": 4}`)
	if _, err := m.Save(ctx, testConfig(t), statePath); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	raw, err := m.Config(ctx, "aws", "us-east-1")
	if err != nil {
		t.Fatalf("config read failed: %v", err)
	}

	if strings.Contains(string(raw), "super-secret-key") {
		t.Error("stored config leaks the encryption key")
	}
	if !strings.Contains(string(raw), config.RedactedPlaceholder) {
		t.Error("stored config is missing the redaction placeholder")
	}
	if !strings.Contains(string(raw), "n8n.example.com") {
		t.Error("stored config is missing non-secret fields")
	}
}

func TestManager_List(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	statePath := writeStateFile(t, `{}`)

	awsCfg := testConfig(t)
	if _, err := m.Save(ctx, awsCfg, statePath); err != nil {
		t.Fatalf("save aws failed: %v", err)
	}

	gcpCfg := config.NewGCPConfig()
	gcpCfg.ProjectID = "demo-project"
	gcpCfg.Host = "n8n.demo.dev"
	if _, err := m.Save(ctx, gcpCfg, statePath); err != nil {
		t.Fatalf("save gcp failed: %v", err)
	}

	handles, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles, got %d: %v", len(handles), handles)
	}

	// Sorted by provider, then region
	if handles[0].Provider != "aws" || handles[1].Provider != "gcp" {
		t.Errorf("unexpected order: %v", handles)
	}
}

func TestManager_SaveOverwritesSameKey(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.Save(ctx, testConfig(t), writeStateFile(t, `{"serial": 1}`))
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	second, err := m.Save(ctx, testConfig(t), writeStateFile(t, `{"serial": 2}`))
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if first.ID == second.ID {
		t.Error("expected a fresh handle ID per save")
	}

	handles, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(handles) != 1 {
		t.Fatalf("expected 1 handle after overwrite, got %d", len(handles))
	}
	if handles[0].ID != second.ID {
		t.Errorf("expected latest handle %s, got %s", second.ID, handles[0].ID)
	}

	destPath := filepath.Join(t.TempDir(), "terraform.tfstate")
	if _, err := m.Restore(ctx, "aws", "us-east-1", destPath); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	data, _ := os.ReadFile(destPath)
	if string(data) != `{"serial": 2}` {
		t.Errorf("expected latest state restored, got %s", data)
	}
}

func TestManager_Delete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Save(ctx, testConfig(t), writeStateFile(t, `{}`)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := m.Delete(ctx, "aws", "us-east-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	handles, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(handles) != 0 {
		t.Errorf("expected no handles after delete, got %v", handles)
	}

	// Deleting a missing snapshot is not an error
	if err := m.Delete(ctx, "aws", "us-east-1"); err != nil {
		t.Errorf("second delete failed: %v", err)
	}

	destPath := filepath.Join(t.TempDir(), "terraform.tfstate")
	if _, err := m.Restore(ctx, "aws", "us-east-1", destPath); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND after delete, got %v", err)
	}
}

func TestManager_RestoreReplacesExistingFile(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Save(ctx, testConfig(t), writeStateFile(t, `{"serial": 9}`)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	destDir := t.TempDir()
	destPath := filepath.Join(destDir, "terraform.tfstate")
	if err := os.WriteFile(destPath, []byte(`{"serial": 1}`), 0o600); err != nil {
		t.Fatalf("failed to seed destination: %v", err)
	}

	if _, err := m.Restore(ctx, "aws", "us-east-1", destPath); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	data, _ := os.ReadFile(destPath)
	if string(data) != `{"serial": 9}` {
		t.Errorf("expected restored state to replace the file, got %s", data)
	}

	// No temp files left behind
	entries, _ := os.ReadDir(destDir)
	if len(entries) != 1 {
		t.Errorf("expected only the state file in destination, got %d entries", len(entries))
	}
}
