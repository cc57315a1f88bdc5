package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store is closed")

// Store is the durable namespace -> key -> value configuration store.
// Staged values live in the same store under types.NamespaceRebootStaging.
type Store interface {
	// GetValues returns the entries of namespace, limited to keys when any
	// are given. An unknown namespace yields an empty map.
	GetValues(namespace string, keys ...string) (map[string]string, error)

	// SetValues upserts every pair in one transaction. Either all rows are
	// committed or none are.
	SetValues(namespace string, values map[string]string) error

	// DeleteValue removes at most one row and reports whether it existed
	DeleteValue(namespace, key string) (bool, error)

	// ListNamespaces returns every namespace holding at least one entry
	ListNamespaces() ([]string, error)

	// Utility
	Close() error
}

// Driver names a storage backend
type Driver string

const (
	DriverBolt   Driver = "bolt"
	DriverSQLite Driver = "sqlite"
)

// Options selects and configures a backend
type Options struct {
	Driver  Driver
	DataDir string

	// Timeout bounds how long Open waits for the database lock held by
	// another process
	Timeout time.Duration
}

// Open creates the backend named by opts.Driver under opts.DataDir. An
// empty driver selects sqlite, the only backend another process can open
// while the daemon holds it. On error the returned Store is nil.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		store, err := NewSQLiteStore(opts.DataDir, opts.Timeout)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverBolt:
		// bbolt locks the file for as long as it is open
		store, err := NewBoltStore(opts.DataDir, opts.Timeout)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", opts.Driver)
	}
}
