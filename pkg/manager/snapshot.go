package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cuemby/flagstage/pkg/types"
)

// SnapshotVersion is the format version written by Persist
const SnapshotVersion = 1

// Store is the part of storage.Store a snapshot reads and restores
type Store interface {
	GetValues(namespace string, keys ...string) (map[string]string, error)
	SetValues(namespace string, values map[string]string) error
	ListNamespaces() ([]string, error)
}

// Snapshot is a point-in-time copy of every namespace, staged values
// included
type Snapshot struct {
	Version   int                          `json:"version"`
	CreatedAt time.Time                    `json:"created_at"`
	Values    map[string]map[string]string `json:"values"`
}

// TakeSnapshot reads the whole store
func TakeSnapshot(store Store) (*Snapshot, error) {
	namespaces, err := store.ListNamespaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	snapshot := &Snapshot{
		Version:   SnapshotVersion,
		CreatedAt: time.Now().UTC(),
		Values:    make(map[string]map[string]string, len(namespaces)),
	}
	for _, ns := range namespaces {
		values, err := store.GetValues(ns)
		if err != nil {
			return nil, fmt.Errorf("failed to read namespace %s: %w", ns, err)
		}
		snapshot.Values[ns] = values
	}
	return snapshot, nil
}

// Entries flattens the snapshot, unordered
func (s *Snapshot) Entries() []types.ConfigEntry {
	var entries []types.ConfigEntry
	for ns, values := range s.Values {
		for k, v := range values {
			entries = append(entries, types.ConfigEntry{Namespace: ns, Key: k, Value: v})
		}
	}
	return entries
}

// Persist writes the snapshot as JSON
func (s *Snapshot) Persist(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ReadSnapshot decodes a snapshot written by Persist
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snapshot Snapshot
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snapshot.Version)
	}
	return &snapshot, nil
}

// Restore upserts every namespace of the snapshot into store, one
// transaction per namespace. Keys absent from the snapshot are left alone.
// It returns the number of values written.
func (s *Snapshot) Restore(store Store) (int, error) {
	n := 0
	for ns, values := range s.Values {
		if len(values) == 0 {
			continue
		}
		if err := store.SetValues(ns, values); err != nil {
			return n, fmt.Errorf("failed to restore namespace %s: %w", ns, err)
		}
		n += len(values)
	}
	return n, nil
}
