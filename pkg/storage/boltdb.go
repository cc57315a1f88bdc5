package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltFileName is the database file created under the data directory
const BoltFileName = "flagstage.db"

var (
	// Top-level bucket; every namespace is a nested bucket inside it,
	// which makes (namespace, key) unique by construction
	bucketConfig = []byte("config")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string, timeout time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, BoltFileName)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketConfig); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketConfig, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) GetValues(namespace string, keys ...string) (map[string]string, error) {
	values := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		ns := tx.Bucket(bucketConfig).Bucket([]byte(namespace))
		if ns == nil {
			return nil
		}

		if len(keys) > 0 {
			// string() copies; BoltDB data is only valid during the transaction
			for _, key := range keys {
				if v := ns.Get([]byte(key)); v != nil {
					values[key] = string(v)
				}
			}
			return nil
		}

		return ns.ForEach(func(k, v []byte) error {
			values[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, s.wrap("get values", namespace, err)
	}
	return values, nil
}

func (s *BoltStore) SetValues(namespace string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		ns, err := tx.Bucket(bucketConfig).CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		for key, value := range values {
			if err := ns.Put([]byte(key), []byte(value)); err != nil {
				return fmt.Errorf("put %q: %w", key, err)
			}
		}
		return nil
	})
	return s.wrap("set values", namespace, err)
}

func (s *BoltStore) DeleteValue(namespace, key string) (bool, error) {
	deleted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketConfig)
		ns := root.Bucket([]byte(namespace))
		if ns == nil || ns.Get([]byte(key)) == nil {
			return nil
		}
		if err := ns.Delete([]byte(key)); err != nil {
			return err
		}
		deleted = true

		// Drop the namespace bucket with its last key
		if k, _ := ns.Cursor().First(); k == nil {
			return root.DeleteBucket([]byte(namespace))
		}
		return nil
	})
	if err != nil {
		return false, s.wrap("delete value", namespace, err)
	}
	return deleted, nil
}

func (s *BoltStore) ListNamespaces() ([]string, error) {
	var namespaces []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfig).ForEachBucket(func(k []byte) error {
			namespaces = append(namespaces, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, s.wrap("list namespaces", "", err)
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

func (s *BoltStore) wrap(op, namespace string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		err = ErrClosed
	}
	if namespace == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s in namespace %s: %w", op, namespace, err)
}
