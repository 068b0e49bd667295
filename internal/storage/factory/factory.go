// Package factory provides functions for creating storage backends based on
// configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/tammahq/tamma/internal/storage"
)

// Backend names accepted by New.
const (
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
)

// BackendFactory is a function that creates a storage backend.
type BackendFactory func(ctx context.Context, path string, opts Options) (storage.Store, error)

// backendRegistry holds registered backend factories.
var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a storage backend factory.
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// Options configures how the storage backend is opened.
type Options struct {
	// MySQL server options, ignored by the embedded sqlite backend.
	ServerHost     string // server host (default: 127.0.0.1)
	ServerPort     int    // server port (default: 3306)
	ServerUser     string // MySQL user (default: root)
	ServerPassword string // MySQL password
	ServerTLS      bool   // enable TLS
	Database       string // database name (default: tamma)
}

// New creates a storage backend based on the backend type. For sqlite, path
// is the database file; for mysql it is unused.
func New(ctx context.Context, backend, path string) (storage.Store, error) {
	return NewWithOptions(ctx, backend, path, Options{})
}

// NewWithOptions creates a storage backend with the specified options.
// An empty backend selects the embedded sqlite default.
func NewWithOptions(ctx context.Context, backend, path string, opts Options) (storage.Store, error) {
	if backend == "" {
		backend = BackendSQLite
	}
	if factory, ok := backendRegistry[backend]; ok {
		return factory(ctx, path, opts)
	}
	return nil, fmt.Errorf("unknown storage backend: %s (supported: sqlite, mysql)", backend)
}
