// Package blob abstracts object storage for document contents.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("blob: object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is an object storage backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes the object under key, replacing any previous content.
	// size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get opens the object for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns object metadata without reading its content.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Close releases backend resources.
	Close() error
}

// Factory creates a blob store from a driver option map.
type Factory func(options map[string]any) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register registers a blob driver factory by name.
// This is typically called from init() in driver packages.
func Register(name string, factory Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a blob store for the named driver.
func New(name string, options map[string]any) (Store, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown blob driver: %s", name)
	}

	return factory(options)
}
