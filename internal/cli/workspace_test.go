package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/n8nops/n8nctl/pkg/config"
)

func TestStackDirPerProvider(t *testing.T) {
	got := stackDir("/work", config.ProviderGCP)
	want := filepath.Join("/work", "terraform", "gcp")
	if got != want {
		t.Errorf("stackDir = %q, want %q", got, want)
	}
}

func TestChartDir(t *testing.T) {
	if got := chartDir("/work"); got != filepath.Join("/work", "helm") {
		t.Errorf("chartDir = %q", got)
	}
}

func TestLoadDeployConfig_DefaultFile(t *testing.T) {
	dir := t.TempDir()
	content := "cloud_provider: aws\naws_region: us-east-1\nn8n_host: n8n.example.com\n"
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := loadDeployConfig(dir, "")
	if err != nil {
		t.Fatalf("loadDeployConfig failed: %v", err)
	}
	if cfg.Provider() != config.ProviderAWS {
		t.Errorf("provider = %s, want aws", cfg.Provider())
	}
	if cfg.Location().Region != "us-east-1" {
		t.Errorf("region = %s", cfg.Location().Region)
	}
	if path != filepath.Join(dir, DefaultConfigFileName) {
		t.Errorf("path = %q", path)
	}
}

func TestLoadDeployConfig_MissingFileGuidance(t *testing.T) {
	_, _, err := loadDeployConfig(t.TempDir(), "")
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	if !strings.Contains(err.Error(), DefaultConfigFileName) || !strings.Contains(err.Error(), "--config-file") {
		t.Errorf("error should guide the operator: %v", err)
	}
}

func TestLoadDeployConfig_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	// Host missing: validation must fail before any phase runs.
	content := "cloud_provider: aws\naws_region: us-east-1\n"
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := loadDeployConfig(dir, path)
	if err == nil {
		t.Fatal("expected validation error for missing host")
	}
}

func TestLoadCurrentConfig_FromRecord(t *testing.T) {
	dir := t.TempDir()

	recorded := config.NewAWSConfig()
	recorded.AWSRegion = "eu-central-1"
	recorded.Host = "n8n.example.com"

	history, err := config.OpenHistory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := history.SetCurrent(recorded); err != nil {
		t.Fatal(err)
	}
	history.Close()

	cfg, err := loadCurrentConfig(dir, "")
	if err != nil {
		t.Fatalf("loadCurrentConfig failed: %v", err)
	}
	if cfg.Provider() != config.ProviderAWS {
		t.Errorf("provider = %s", cfg.Provider())
	}
	if cfg.Location().Region != "eu-central-1" {
		t.Errorf("region = %s", cfg.Location().Region)
	}
}

func TestLoadCurrentConfig_NoRecordGuidance(t *testing.T) {
	_, err := loadCurrentConfig(t.TempDir(), "")
	if err == nil {
		t.Fatal("expected error without a current record")
	}
	if !strings.Contains(err.Error(), "--config-file") {
		t.Errorf("error should suggest --config-file: %v", err)
	}
}

func TestCreateSnapshotManager_FlagBeatsEnv(t *testing.T) {
	t.Setenv(EnvSnapshotBackend, "s3")
	t.Setenv(EnvSnapshotPrefix+"PATH", t.TempDir())

	mgr, err := createSnapshotManager("local", nil)
	if err != nil {
		t.Fatalf("createSnapshotManager failed: %v", err)
	}
	if mgr.Backend().Type() != "local" {
		t.Errorf("backend = %s, want local (flag over env)", mgr.Backend().Type())
	}
}

func TestCreateSnapshotManager_EnvConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvSnapshotBackend, "local")
	t.Setenv(EnvSnapshotPrefix+"PATH", dir)

	mgr, err := createSnapshotManager("", nil)
	if err != nil {
		t.Fatalf("createSnapshotManager failed: %v", err)
	}
	if mgr.Backend().Type() != "local" {
		t.Errorf("backend = %s, want local", mgr.Backend().Type())
	}
}

func TestCreateSnapshotManager_UnknownBackend(t *testing.T) {
	_, err := createSnapshotManager("ftp", nil)
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
