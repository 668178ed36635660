package snapshots

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/stockpile/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog, err := NewCatalog(db)
	require.NoError(t, err)
	return catalog
}

func writeTestSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.snapshot")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRecordAndLatest(t *testing.T) {
	catalog := newTestCatalog(t)
	path := writeTestSnapshot(t, "snapshot-bytes")

	entry, err := catalog.Record(path)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, path, entry.Path)
	assert.Equal(t, int64(len("snapshot-bytes")), entry.SizeBytes)
	assert.Len(t, entry.Checksum, 64)
	assert.False(t, entry.Uploaded)

	latest, err := catalog.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, entry.ID, latest.ID)
	assert.Equal(t, entry.Checksum, latest.Checksum)
}

func TestLatestEmptyCatalog(t *testing.T) {
	catalog := newTestCatalog(t)

	latest, err := catalog.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRecordMissingFileIsAnError(t *testing.T) {
	catalog := newTestCatalog(t)

	_, err := catalog.Record(filepath.Join(t.TempDir(), "missing.snapshot"))
	assert.Error(t, err)
}

func TestMarkUploaded(t *testing.T) {
	catalog := newTestCatalog(t)
	path := writeTestSnapshot(t, "snapshot-bytes")

	entry, err := catalog.Record(path)
	require.NoError(t, err)

	require.NoError(t, catalog.MarkUploaded(entry.ID))

	latest, err := catalog.Latest()
	require.NoError(t, err)
	assert.True(t, latest.Uploaded)

	assert.Error(t, catalog.MarkUploaded("no-such-id"))
}

func TestListNewestFirst(t *testing.T) {
	catalog := newTestCatalog(t)
	path := writeTestSnapshot(t, "snapshot-bytes")

	var ids []string
	for i := 0; i < 3; i++ {
		entry, err := catalog.Record(path)
		require.NoError(t, err)
		ids = append(ids, entry.ID)
		time.Sleep(2 * time.Millisecond) // distinct created_at timestamps
	}

	entries, err := catalog.List(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ids[2], entries[0].ID)
	assert.Equal(t, ids[0], entries[2].ID)
}

func TestPruneKeepsNewest(t *testing.T) {
	catalog := newTestCatalog(t)
	path := writeTestSnapshot(t, "snapshot-bytes")

	for i := 0; i < 5; i++ {
		_, err := catalog.Record(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	removed, err := catalog.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	entries, err := catalog.List(10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
