package scheduler

import (
	"fmt"

	"github.com/aristath/stockpile/internal/cache"
	"github.com/aristath/stockpile/internal/modules/snapshots"
	"github.com/rs/zerolog"
)

// catalogRetention bounds catalog growth; the snapshot file itself is a
// single path overwritten in place, so old rows are bookkeeping only.
const catalogRetention = 100

// SnapshotJob periodically persists the cache to disk so a restart can warm
// start from recent state instead of refetching everything.
type SnapshotJob struct {
	cache        *cache.Cache
	catalog      *snapshots.Catalog
	snapshotPath string
	log          zerolog.Logger
}

// NewSnapshotJob creates a new snapshot job.
func NewSnapshotJob(
	c *cache.Cache,
	catalog *snapshots.Catalog,
	snapshotPath string,
	log zerolog.Logger,
) *SnapshotJob {
	return &SnapshotJob{
		cache:        c,
		catalog:      catalog,
		snapshotPath: snapshotPath,
		log:          log.With().Str("job", "cache_snapshot").Logger(),
	}
}

// Name returns the job name
func (j *SnapshotJob) Name() string {
	return "cache_snapshot"
}

// Run saves a snapshot and catalogs it.
func (j *SnapshotJob) Run() error {
	if err := j.cache.SaveSnapshot(j.snapshotPath); err != nil {
		return fmt.Errorf("snapshot save failed: %w", err)
	}

	entry, err := j.catalog.Record(j.snapshotPath)
	if err != nil {
		return fmt.Errorf("snapshot written but not cataloged: %w", err)
	}

	if removed, err := j.catalog.Prune(catalogRetention); err != nil {
		j.log.Warn().Err(err).Msg("Failed to prune snapshot catalog")
	} else if removed > 0 {
		j.log.Debug().Int("removed", removed).Msg("Pruned snapshot catalog")
	}

	j.log.Info().
		Str("path", entry.Path).
		Int64("bytes", entry.SizeBytes).
		Msg("Cache snapshot written")
	return nil
}
