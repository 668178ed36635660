package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotVersion is bumped when the on-disk layout changes. Loading a
// snapshot written with a different version is an error, not a silent
// best-effort decode.
const snapshotVersion = 1

// snapshotStore carries one category's records plus the ticker insertion
// order, which the in-memory map alone cannot preserve.
type snapshotStore struct {
	Order   []string            `msgpack:"order"`
	Records map[string][]Record `msgpack:"records"`
}

type snapshotFile struct {
	Version int                        `msgpack:"version"`
	SavedAt time.Time                  `msgpack:"saved_at"`
	Stores  map[Category]snapshotStore `msgpack:"stores"`
	Expiry  map[string]time.Time       `msgpack:"expiry"`
	TTL     time.Duration              `msgpack:"ttl"`
}

// SaveSnapshot writes the full cache state (all five stores with insertion
// order, the expiry map, and the TTL) to path, overwriting any existing file.
// The lock is held for the duration of the file write, so the snapshot is a
// consistent point-in-time view; concurrent cache access stalls until the
// write finishes.
func (c *Cache) SaveSnapshot(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := snapshotFile{
		Version: snapshotVersion,
		SavedAt: c.now(),
		Stores:  make(map[Category]snapshotStore, len(c.stores)),
		Expiry:  c.expiry,
		TTL:     c.ttl,
	}
	for cat, st := range c.stores {
		order := make([]string, 0, st.order.Len())
		for elem := st.order.Front(); elem != nil; elem = elem.Next() {
			order = append(order, elem.Value.(string))
		}
		snap.Stores[cat] = snapshotStore{Order: order, Records: st.records}
	}

	data, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode cache snapshot: %w", err)
	}

	// Write to a temp file in the same directory and rename, so a crash
	// mid-write never leaves a truncated snapshot behind.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	c.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Cache snapshot saved")
	return nil
}

// LoadSnapshot replaces all in-memory state with the snapshot at path.
// A missing file is not an error: the cache keeps whatever state it already
// has. Any other read or decode failure propagates to the caller.
func (c *Cache) LoadSnapshot(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		c.log.Debug().Str("path", path).Msg("No cache snapshot found, starting cold")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache snapshot: %w", err)
	}

	var snap snapshotFile
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode cache snapshot %s: %w", path, err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported cache snapshot version %d in %s (want %d)",
			snap.Version, path, snapshotVersion)
	}

	stores := make(map[Category]*store, len(Categories))
	for _, cat := range Categories {
		st := newStore()
		snapStore := snap.Stores[cat]
		for _, ticker := range snapStore.Order {
			if recs, ok := snapStore.Records[ticker]; ok {
				st.put(ticker, recs)
			}
		}
		stores[cat] = st
	}

	c.stores = stores
	c.expiry = snap.Expiry
	if c.expiry == nil {
		c.expiry = make(map[string]time.Time)
	}
	c.ttl = snap.TTL
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}

	c.log.Info().
		Str("path", path).
		Int("tickers", len(c.expiry)).
		Msg("Cache snapshot loaded")
	return nil
}
