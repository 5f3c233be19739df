package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/n8nops/n8nctl/pkg/errors"
)

const (
	// HistoryFileName is the append-only ledger of every deployment and
	// teardown attempt, one JSON object per line.
	HistoryFileName = "setup_history.log"
	// CurrentFileName is the single-record pointer to the most recent
	// deployment, replaced atomically on every run.
	CurrentFileName = ".n8n-current.json"
)

// Entry is one recorded run. Configuration is the redacted snapshot of the
// concrete provider config at the time of the run.
type Entry struct {
	Timestamp     time.Time       `json:"timestamp"`
	Provider      Provider        `json:"cloud_provider"`
	Configuration json.RawMessage `json:"configuration"`
}

// Config decodes the recorded configuration back into its variant.
// Secret fields come back empty; the record is for audit and re-targeting,
// not for replaying credentials.
func (e *Entry) Config() (DeploymentConfig, error) {
	return DecodeJSON(e.Provider, e.Configuration)
}

// HistoryStore appends run records to the history ledger and maintains the
// current-state pointer. The ledger file stays open for the process
// lifetime; each record is flushed as it is written so a crash loses at
// most the in-flight line.
type HistoryStore struct {
	dir string
	log *os.File
}

// OpenHistory opens (creating if needed) the history ledger in dir.
func OpenHistory(dir string) (*HistoryStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, fmt.Sprintf("failed to create history dir %s", dir), err)
	}
	f, err := os.OpenFile(filepath.Join(dir, HistoryFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, "failed to open history ledger", err)
	}
	return &HistoryStore{dir: dir, log: f}, nil
}

// Record appends a redacted snapshot of cfg to the ledger.
func (h *HistoryStore) Record(cfg DeploymentConfig) error {
	line, err := json.Marshal(h.entryFor(cfg))
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, "failed to encode history entry", err)
	}
	if _, err := h.log.Write(append(line, '\n')); err != nil {
		return errors.Wrap(errors.ErrCodeIO, "failed to append history entry", err)
	}
	return h.log.Sync()
}

// SetCurrent replaces the current-state pointer atomically.
func (h *HistoryStore) SetCurrent(cfg DeploymentConfig) error {
	data, err := json.MarshalIndent(h.entryFor(cfg), "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, "failed to encode current state", err)
	}

	target := filepath.Join(h.dir, CurrentFileName)
	tmp, err := os.CreateTemp(h.dir, ".n8n-current-*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, "failed to create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeIO, "failed to write current state", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeIO, "failed to close temp file", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeIO, "failed to replace current state", err)
	}
	return nil
}

// ClearCurrent removes the current-state pointer after a teardown.
// Missing pointer is not an error.
func (h *HistoryStore) ClearCurrent() error {
	err := os.Remove(filepath.Join(h.dir, CurrentFileName))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeIO, "failed to remove current state", err)
	}
	return nil
}

// Current reads the current-state pointer.
func (h *HistoryStore) Current() (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(h.dir, CurrentFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("current deployment", CurrentFileName)
		}
		return nil, errors.Wrap(errors.ErrCodeIO, "failed to read current state", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, "current state file is corrupt", err)
	}
	return &entry, nil
}

// Entries returns ledger records, newest first. Corrupt lines are skipped
// rather than failing the whole read; the ledger is advisory. A limit of
// zero returns everything.
func (h *HistoryStore) Entries(limit int) ([]Entry, error) {
	f, err := os.Open(filepath.Join(h.dir, HistoryFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeIO, "failed to open history ledger", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, "failed to read history ledger", err)
	}

	// newest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Close releases the ledger file handle.
func (h *HistoryStore) Close() error {
	return h.log.Close()
}

func (h *HistoryStore) entryFor(cfg DeploymentConfig) *Entry {
	raw, err := json.Marshal(cfg)
	if err != nil {
		raw = []byte("{}")
	}
	return &Entry{
		Timestamp:     time.Now().UTC(),
		Provider:      cfg.Provider(),
		Configuration: raw,
	}
}
