// Package snapshot stores per-region copies of provisioned infrastructure
// state so that a deployment can be inspected, restored, or torn down from
// another machine. Snapshots are keyed by (provider, region); saving twice
// for the same key overwrites, which is what keeps at most one artifact
// live per deployment.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
	"github.com/n8nops/n8nctl/pkg/snapshot/backend"
)

// StateFileName is the name of the Terraform state artifact inside a snapshot.
const StateFileName = "state.json"

// Handle identifies a stored snapshot.
type Handle struct {
	ID        string    `json:"id"`
	Provider  string    `json:"cloud_provider"`
	Region    string    `json:"region"`
	Host      string    `json:"n8n_host,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Key returns the backend key prefix for the handle.
func (h Handle) Key() string {
	return snapshotPrefix(h.Provider, h.Region)
}

// Manager provides high-level snapshot operations over a storage backend.
type Manager struct {
	backend backend.Backend
}

// NewManager creates a snapshot manager with the given backend.
func NewManager(b backend.Backend) *Manager {
	return &Manager{backend: b}
}

// NewManagerFromConfig creates a snapshot manager from a backend name and
// its configuration map.
func NewManagerFromConfig(backendType string, cfg map[string]string) (*Manager, error) {
	b, err := backend.New(backendType, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot backend: %w", err)
	}
	return NewManager(b), nil
}

// Backend returns the underlying storage backend.
func (m *Manager) Backend() backend.Backend {
	return m.backend
}

// Save stores the Terraform state at statePath together with a redacted copy
// of the configuration that produced it. An existing snapshot for the same
// (provider, region) is overwritten.
func (m *Manager) Save(ctx context.Context, cfg config.DeploymentConfig, statePath string) (*Handle, error) {
	state, err := os.ReadFile(statePath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, fmt.Sprintf("failed to read state file %s", statePath), err)
	}

	handle := &Handle{
		ID:        uuid.New().String(),
		Provider:  string(cfg.Provider()),
		Region:    cfg.Location().Region,
		Host:      cfg.App().Host,
		CreatedAt: time.Now().UTC(),
	}
	if host, err := os.Hostname(); err == nil {
		handle.CreatedBy = host
	}

	prefix := snapshotPrefix(handle.Provider, handle.Region)

	if err := m.backend.Write(ctx, path.Join(prefix, StateFileName), bytes.NewReader(state)); err != nil {
		return nil, errors.BackendError(m.backend.Type(), "save state", err)
	}

	// Secrets redact at the serialization boundary, so the stored config is
	// safe to read back for display but can never resurrect credentials.
	if err := writeJSON(ctx, m.backend, path.Join(prefix, "config.json"), cfg); err != nil {
		return nil, errors.BackendError(m.backend.Type(), "save config", err)
	}

	if err := writeJSON(ctx, m.backend, path.Join(prefix, "meta.json"), handle); err != nil {
		return nil, errors.BackendError(m.backend.Type(), "save metadata", err)
	}

	return handle, nil
}

// Restore fetches the stored state for (provider, region) and atomically
// replaces the file at destPath with it. Returns NotFound when no snapshot
// exists for the key.
func (m *Manager) Restore(ctx context.Context, provider, region, destPath string) (*Handle, error) {
	prefix := snapshotPrefix(provider, region)

	handle, err := readJSON[Handle](ctx, m.backend, path.Join(prefix, "meta.json"))
	if err != nil {
		if stderrors.Is(err, backend.ErrNotFound) {
			return nil, errors.NotFoundError("snapshot", provider+"/"+region)
		}
		return nil, errors.BackendError(m.backend.Type(), "read metadata", err)
	}

	reader, err := m.backend.Read(ctx, path.Join(prefix, StateFileName))
	if err != nil {
		if stderrors.Is(err, backend.ErrNotFound) {
			return nil, errors.NotFoundError("snapshot state", provider+"/"+region)
		}
		return nil, errors.BackendError(m.backend.Type(), "read state", err)
	}
	defer reader.Close()

	if err := atomicWriteFile(destPath, reader); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, fmt.Sprintf("failed to restore state to %s", destPath), err)
	}

	return handle, nil
}

// Config returns the redacted configuration stored with the snapshot.
func (m *Manager) Config(ctx context.Context, provider, region string) (json.RawMessage, error) {
	prefix := snapshotPrefix(provider, region)

	reader, err := m.backend.Read(ctx, path.Join(prefix, "config.json"))
	if err != nil {
		if stderrors.Is(err, backend.ErrNotFound) {
			return nil, errors.NotFoundError("snapshot", provider+"/"+region)
		}
		return nil, errors.BackendError(m.backend.Type(), "read config", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.BackendError(m.backend.Type(), "read config", err)
	}
	return json.RawMessage(raw), nil
}

// List returns handles for every stored snapshot, ordered by provider then
// region.
func (m *Manager) List(ctx context.Context) ([]Handle, error) {
	paths, err := m.backend.List(ctx, "snapshots/")
	if err != nil {
		return nil, errors.BackendError(m.backend.Type(), "list", err)
	}

	// Path format: snapshots/<provider>/<region>/meta.json
	type key struct{ provider, region string }
	seen := make(map[key]bool)
	for _, p := range paths {
		parts := splitPath(p)
		if len(parts) >= 4 && parts[0] == "snapshots" && parts[3] == "meta.json" {
			seen[key{parts[1], parts[2]}] = true
		}
	}

	handles := make([]Handle, 0, len(seen))
	for k := range seen {
		h, err := readJSON[Handle](ctx, m.backend, path.Join(snapshotPrefix(k.provider, k.region), "meta.json"))
		if err != nil {
			continue // Skip snapshots whose metadata cannot be read
		}
		handles = append(handles, *h)
	}

	sort.Slice(handles, func(i, j int) bool {
		if handles[i].Provider != handles[j].Provider {
			return handles[i].Provider < handles[j].Provider
		}
		return handles[i].Region < handles[j].Region
	})

	return handles, nil
}

// Delete removes the snapshot for (provider, region). Deleting a snapshot
// that does not exist is not an error.
func (m *Manager) Delete(ctx context.Context, provider, region string) error {
	prefix := snapshotPrefix(provider, region)

	for _, name := range []string{StateFileName, "config.json", "meta.json"} {
		if err := m.backend.Delete(ctx, path.Join(prefix, name)); err != nil {
			return errors.BackendError(m.backend.Type(), "delete", err)
		}
	}
	return nil
}

func snapshotPrefix(provider, region string) string {
	return path.Join("snapshots", provider, region)
}

func splitPath(p string) []string {
	var parts []string
	for p != "" && p != "." && p != "/" {
		dir, file := path.Split(p)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		p = path.Clean(dir)
	}
	return parts
}

// atomicWriteFile writes data to a temp file in the destination directory
// and renames it over destPath.
func atomicWriteFile(destPath string, data io.Reader) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".n8nctl-restore-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, destPath)
}

// JSON helpers

func readJSON[T any](ctx context.Context, b backend.Backend, p string) (*T, error) {
	reader, err := b.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var result T
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	return &result, nil
}

func writeJSON(ctx context.Context, b backend.Backend, p string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return b.Write(ctx, p, bytes.NewReader(content))
}
