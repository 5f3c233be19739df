// Package backend defines the storage interface for regional deployment
// snapshots, with pluggable implementations registered at init time.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Backend stores snapshot objects under slash-separated keys. Writes
// replace whole objects; concurrency control for infrastructure state
// belongs to the provisioning tool, not here.
type Backend interface {
	// Type returns the backend type name.
	Type() string

	// Read opens the object at path. Returns ErrNotFound if absent.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write replaces the object at path.
	Write(ctx context.Context, path string, data io.Reader) error

	// Delete removes the object at path. Deleting a missing object is
	// not an error.
	Delete(ctx context.Context, path string) error

	// List returns object paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks whether an object is present.
	Exists(ctx context.Context, path string) (bool, error)
}

// Factory creates a backend from its string configuration.
type Factory func(config map[string]string) (Backend, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a backend type available by name. Called from the
// implementation packages' init functions.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// New creates a backend of the given type.
func New(name string, config map[string]string) (Backend, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown snapshot backend %q (registered: %v)", name, Registered())
	}
	return factory(config)
}

// Registered returns the registered backend type names, sorted.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
