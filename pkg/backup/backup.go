// Package backup snapshots the configuration files a run is about to
// mutate so an abort or interrupt can put the working directory back the
// way it was. Applied infrastructure is never rolled back from here; this
// covers files only.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/n8nops/n8nctl/pkg/errors"
)

const dirPrefix = "n8n-backup-"

// LiveMarkerName is written into the working directory while a set is
// live. A second run finding it refuses to start: either another run is in
// progress or a previous one crashed without restoring.
const LiveMarkerName = ".n8n-backup-live"

type entry struct {
	Original string `json:"original"`
	Saved    string `json:"saved"`
}

type marker struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"created_at"`
}

// Set is one run's snapshot of mutable files, grouped by layer so callers
// can restore the application layer without reverting infrastructure
// inputs that correspond to already-applied resources.
type Set struct {
	id         string
	workDir    string
	dir        string
	markerPath string
	groups     map[string][]entry
	// created tracks paths that did not exist at snapshot time; restoring
	// removes them if the run brought them into existence.
	created map[string][]string
}

// Snapshot copies the given files (grouped by layer name) into a fresh
// temp directory and writes the live marker. Paths that do not exist yet
// are recorded so Restore can remove them if the run creates them.
func Snapshot(workDir string, groups map[string][]string) (*Set, error) {
	markerPath := filepath.Join(workDir, LiveMarkerName)
	if _, err := os.Stat(markerPath); err == nil {
		return nil, errors.PreconditionError(
			"live-backup",
			fmt.Sprintf("a live backup marker exists at %s; another run is in progress or a previous run crashed — verify and remove the marker before retrying", markerPath),
		)
	}

	dir, err := os.MkdirTemp("", dirPrefix)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, "failed to create backup directory", err)
	}

	set := &Set{
		id:         uuid.NewString(),
		workDir:    workDir,
		dir:        dir,
		markerPath: markerPath,
		groups:     make(map[string][]entry),
		created:    make(map[string][]string),
	}

	for group, paths := range groups {
		for i, path := range paths {
			if _, err := os.Stat(path); os.IsNotExist(err) {
				set.created[group] = append(set.created[group], path)
				continue
			}
			saved := filepath.Join(dir, fmt.Sprintf("%s-%d-%s", group, i, filepath.Base(path)))
			if err := copyFile(path, saved); err != nil {
				os.RemoveAll(dir)
				return nil, errors.Wrap(errors.ErrCodeIO, fmt.Sprintf("failed to back up %s", path), err)
			}
			set.groups[group] = append(set.groups[group], entry{Original: path, Saved: saved})
		}
	}

	if err := set.writeMarker(); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return set, nil
}

// ID identifies this set, also recorded in the live marker.
func (s *Set) ID() string {
	return s.id
}

// Dir is the temp directory holding the saved copies.
func (s *Set) Dir() string {
	return s.dir
}

// Restore puts every backed-up file back and removes files the run
// created. Failures do not stop the pass; the returned error lists every
// file that could not be restored alongside those that were.
func (s *Set) Restore() error {
	return s.restore(s.groupNames())
}

// RestoreGroup restores a single layer, leaving the others in place.
func (s *Set) RestoreGroup(name string) error {
	return s.restore([]string{name})
}

func (s *Set) restore(names []string) error {
	var restored []string
	failed := make(map[string]string)

	for _, name := range names {
		for _, e := range s.groups[name] {
			if err := copyFile(e.Saved, e.Original); err != nil {
				failed[e.Original] = err.Error()
				continue
			}
			restored = append(restored, e.Original)
		}
		for _, path := range s.created[name] {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				failed[path] = err.Error()
				continue
			}
			restored = append(restored, path)
		}
	}

	if len(failed) > 0 {
		return errors.New(errors.ErrCodeIO, fmt.Sprintf("restored %d file(s), %d failed", len(restored), len(failed))).
			WithDetail("restored", restored).
			WithDetail("failed", failed)
	}
	return nil
}

// Discard deletes the saved copies and clears the live marker. Call it
// after a successful run, or after Restore.
func (s *Set) Discard() error {
	var firstErr error
	if err := os.RemoveAll(s.dir); err != nil {
		firstErr = errors.Wrap(errors.ErrCodeIO, "failed to remove backup directory", err)
	}
	if err := os.Remove(s.markerPath); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = errors.Wrap(errors.ErrCodeIO, "failed to remove live marker", err)
	}
	return firstErr
}

func (s *Set) groupNames() []string {
	seen := make(map[string]bool)
	for name := range s.groups {
		seen[name] = true
	}
	for name := range s.created {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Set) writeMarker() error {
	data, err := json.MarshalIndent(marker{
		ID:        s.id,
		PID:       os.Getpid(),
		Dir:       s.dir,
		CreatedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, "failed to encode live marker", err)
	}
	if err := os.WriteFile(s.markerPath, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeIO, "failed to write live marker", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
