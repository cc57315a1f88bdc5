package manager

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flagstage/pkg/storage"
	"github.com/cuemby/flagstage/pkg/types"
)

func TestSnapshotAcrossBackends(t *testing.T) {
	src, err := storage.NewBoltStore(t.TempDir(), time.Second)
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.SetValues("core", map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, src.SetValues(types.NamespaceRebootStaging, map[string]string{"core*a": "3"}))

	snapshot, err := TakeSnapshot(src)
	require.NoError(t, err)
	assert.Equal(t, SnapshotVersion, snapshot.Version)
	assert.Len(t, snapshot.Entries(), 3)

	var buf bytes.Buffer
	require.NoError(t, snapshot.Persist(&buf))

	decoded, err := ReadSnapshot(&buf)
	require.NoError(t, err)

	dst, err := storage.NewSQLiteStore(t.TempDir(), time.Second)
	require.NoError(t, err)
	defer dst.Close()
	require.NoError(t, dst.SetValues("core", map[string]string{"c": "kept"}))

	n, err := decoded.Restore(dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	core, err := dst.GetValues("core")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "kept"}, core)

	staged, err := dst.GetValues(types.NamespaceRebootStaging)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"core*a": "3"}, staged)
}

func TestReadSnapshotErrors(t *testing.T) {
	_, err := ReadSnapshot(strings.NewReader("{"))
	assert.Error(t, err)

	_, err = ReadSnapshot(strings.NewReader(`{"version": 9, "values": {}}`))
	assert.Error(t, err)
}

func TestSnapshotOfEmptyStore(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir(), time.Second)
	require.NoError(t, err)
	defer store.Close()

	snapshot, err := TakeSnapshot(store)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Entries())

	n, err := snapshot.Restore(store)
	require.NoError(t, err)
	assert.Zero(t, n)
}
