/*
Package storage persists flag values as namespace -> key -> value rows.

Two backends implement the Store interface:

  - BoltStore (default) keeps one nested bbolt bucket per namespace inside
    the top-level "config" bucket, at <dataDir>/flagstage.db.
  - SQLiteStore keeps a single config table with a UNIQUE(namespace,
    config_key) constraint, at <dataDir>/flagstage.sqlite.

Both commit SetValues in one transaction: a batch is visible completely or
not at all, and concurrent batches serialize. Values staged for the next
boot are ordinary rows in the "staged" namespace; see package staging.

# Usage

	store, err := storage.Open(storage.Options{
		Driver:  storage.DriverBolt,
		DataDir: "/var/lib/flagstage",
		Timeout: time.Second,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.SetValues("core", map[string]string{"feature.enabled": "true"})
	values, err := store.GetValues("core", "feature.enabled")

Reads of an unknown namespace return an empty map, not an error. Every
operation on a closed store fails with an error wrapping ErrClosed.

Use cmd/flagstage-migrate to move data between backends.
*/
package storage
