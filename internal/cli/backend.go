package cli

import (
	"os"
	"strings"

	"github.com/n8nops/n8nctl/pkg/snapshot"
)

// Environment variable names for snapshot backend configuration.
const (
	// EnvSnapshotBackend sets the snapshot backend type (local, s3, gcs, azblob).
	EnvSnapshotBackend = "N8NCTL_SNAPSHOT_BACKEND"

	// EnvSnapshotPrefix is the prefix for backend-specific config environment
	// variables. For example, N8NCTL_SNAPSHOT_PATH sets the "path" config for
	// the local backend, N8NCTL_SNAPSHOT_BUCKET sets the "bucket" config for
	// S3/GCS backends.
	EnvSnapshotPrefix = "N8NCTL_SNAPSHOT_"
)

// createSnapshotManager creates a snapshot manager with the given backend
// type and config.
//
// Configuration precedence (highest to lowest):
//  1. CLI flags (--snapshot-backend, --snapshot-backend-config)
//  2. Environment variables (N8NCTL_SNAPSHOT_BACKEND, N8NCTL_SNAPSHOT_*)
//  3. Hardcoded defaults (local backend with ~/.n8nctl/snapshots)
func createSnapshotManager(backendType string, backendConfig []string) (*snapshot.Manager, error) {
	// Start with hardcoded default
	effectiveBackend := "local"
	effectiveConfig := make(map[string]string)

	// Apply environment variables
	if envBackend := os.Getenv(EnvSnapshotBackend); envBackend != "" {
		effectiveBackend = envBackend
	}

	// Check for backend-specific env vars (N8NCTL_SNAPSHOT_PATH, N8NCTL_SNAPSHOT_BUCKET, etc.)
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, EnvSnapshotPrefix) && !strings.HasPrefix(env, EnvSnapshotBackend) {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				// Convert N8NCTL_SNAPSHOT_PATH to "path", N8NCTL_SNAPSHOT_BUCKET to "bucket", etc.
				key := strings.ToLower(strings.TrimPrefix(parts[0], EnvSnapshotPrefix))
				effectiveConfig[key] = parts[1]
			}
		}
	}

	// Apply CLI flags (highest priority)
	if backendType != "" {
		effectiveBackend = backendType
	}

	for _, c := range backendConfig {
		parts := strings.SplitN(c, "=", 2)
		if len(parts) == 2 {
			effectiveConfig[parts[0]] = parts[1]
		}
	}

	return snapshot.NewManagerFromConfig(effectiveBackend, effectiveConfig)
}
