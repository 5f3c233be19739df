package local

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/n8nops/n8nctl/pkg/snapshot/backend"
)

func TestNewBackend(t *testing.T) {
	tmpDir := t.TempDir()

	b, err := NewBackend(map[string]string{
		"path": tmpDir,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if b.Type() != "local" {
		t.Errorf("expected type 'local', got %q", b.Type())
	}
}

func TestBackend_ReadWrite(t *testing.T) {
	tmpDir := t.TempDir()
	b, _ := NewBackend(map[string]string{"path": tmpDir})

	ctx := context.Background()
	testPath := "snapshots/aws/us-east-1/state.json"
	testData := []byte(`{"serial": 4}`)

	// Write
	err := b.Write(ctx, testPath, bytes.NewReader(testData))
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Read
	reader, err := b.Read(ctx, testPath)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read all failed: %v", err)
	}

	if !bytes.Equal(data, testData) {
		t.Errorf("expected %s, got %s", testData, data)
	}
}

func TestBackend_ReadNotFound(t *testing.T) {
	tmpDir := t.TempDir()
	b, _ := NewBackend(map[string]string{"path": tmpDir})

	ctx := context.Background()

	_, err := b.Read(ctx, "nonexistent")
	if err != backend.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBackend_Delete(t *testing.T) {
	tmpDir := t.TempDir()
	b, _ := NewBackend(map[string]string{"path": tmpDir})

	ctx := context.Background()
	testPath := "snapshots/gcp/us-central1/state.json"
	testData := []byte(`{"serial": 1}`)

	// Write
	_ = b.Write(ctx, testPath, bytes.NewReader(testData))

	// Verify exists
	exists, _ := b.Exists(ctx, testPath)
	if !exists {
		t.Fatal("expected file to exist")
	}

	// Delete
	err := b.Delete(ctx, testPath)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// Verify gone
	exists, _ = b.Exists(ctx, testPath)
	if exists {
		t.Error("expected file to not exist after delete")
	}

	// Deleting again is not an error
	if err := b.Delete(ctx, testPath); err != nil {
		t.Errorf("second delete failed: %v", err)
	}
}

func TestBackend_List(t *testing.T) {
	tmpDir := t.TempDir()
	b, _ := NewBackend(map[string]string{"path": tmpDir})

	ctx := context.Background()

	// Create some files
	_ = b.Write(ctx, "snapshots/aws/us-east-1/state.json", bytes.NewReader([]byte("{}")))
	_ = b.Write(ctx, "snapshots/aws/eu-west-1/state.json", bytes.NewReader([]byte("{}")))
	_ = b.Write(ctx, "other/file.txt", bytes.NewReader([]byte("{}")))

	// List all
	paths, err := b.List(ctx, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(paths) != 3 {
		t.Errorf("expected 3 paths, got %d: %v", len(paths), paths)
	}

	// List with directory prefix
	paths, err = b.List(ctx, "snapshots")
	if err != nil {
		t.Fatalf("list with prefix failed: %v", err)
	}

	if len(paths) != 2 {
		t.Errorf("expected 2 paths, got %d: %v", len(paths), paths)
	}
}

func TestBackend_Exists(t *testing.T) {
	tmpDir := t.TempDir()
	b, _ := NewBackend(map[string]string{"path": tmpDir})

	ctx := context.Background()
	testPath := "snapshots/azure/eastus/state.json"

	// Check non-existent
	exists, err := b.Exists(ctx, testPath)
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if exists {
		t.Error("expected file to not exist")
	}

	// Create file
	_ = b.Write(ctx, testPath, bytes.NewReader([]byte("{}")))

	// Check exists
	exists, err = b.Exists(ctx, testPath)
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if !exists {
		t.Error("expected file to exist")
	}
}

func TestBackend_AtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()
	b, _ := NewBackend(map[string]string{"path": tmpDir})

	ctx := context.Background()
	testPath := "snapshots/aws/us-east-1/state.json"

	// Write initial data
	_ = b.Write(ctx, testPath, bytes.NewReader([]byte(`{"serial": 1}`)))

	// Write updated data
	err := b.Write(ctx, testPath, bytes.NewReader([]byte(`{"serial": 2}`)))
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Read and verify
	reader, _ := b.Read(ctx, testPath)
	data, _ := io.ReadAll(reader)
	reader.Close()

	expected := `{"serial": 2}`
	if string(data) != expected {
		t.Errorf("expected %s, got %s", expected, data)
	}
}
