package reliability

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aristath/stockpile/internal/modules/snapshots"
	"github.com/rs/zerolog"
)

const backupPrefix = "snapshots/"

// SnapshotBackupService uploads cataloged cache snapshots to object storage
// and prunes old backups beyond the retention count.
type SnapshotBackupService struct {
	store     Store
	catalog   *snapshots.Catalog
	retention int
	log       zerolog.Logger
}

// NewSnapshotBackupService creates a new backup service.
func NewSnapshotBackupService(
	store Store,
	catalog *snapshots.Catalog,
	retention int,
	log zerolog.Logger,
) *SnapshotBackupService {
	return &SnapshotBackupService{
		store:     store,
		catalog:   catalog,
		retention: retention,
		log:       log.With().Str("service", "snapshot_backup").Logger(),
	}
}

// BackupLatest uploads the newest cataloged snapshot, unless it has been
// uploaded already. Returns the object key, or "" when there was nothing
// to do.
func (s *SnapshotBackupService) BackupLatest(ctx context.Context) (string, error) {
	entry, err := s.catalog.Latest()
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot catalog: %w", err)
	}
	if entry == nil {
		s.log.Debug().Msg("No snapshots cataloged yet, skipping backup")
		return "", nil
	}
	if entry.Uploaded {
		s.log.Debug().Str("id", entry.ID).Msg("Latest snapshot already uploaded, skipping backup")
		return "", nil
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open snapshot %s: %w", entry.Path, err)
	}
	defer f.Close()

	// Keys embed a UTC timestamp so lexicographic order is age order.
	key := fmt.Sprintf("%s%s-%s.snapshot",
		backupPrefix,
		entry.CreatedAt.UTC().Format("20060102T150405Z"),
		entry.ID,
	)
	metadata := map[string]string{
		"checksum":   entry.Checksum,
		"created-at": entry.CreatedAt.UTC().Format(time.RFC3339),
	}

	start := time.Now()
	if err := s.store.Upload(ctx, key, f, metadata); err != nil {
		return "", fmt.Errorf("failed to upload snapshot backup: %w", err)
	}
	if err := s.catalog.MarkUploaded(entry.ID); err != nil {
		// The upload succeeded, so log instead of failing the backup.
		s.log.Warn().Err(err).Str("id", entry.ID).Msg("Uploaded snapshot could not be marked in catalog")
	}

	s.log.Info().
		Str("key", key).
		Int64("bytes", entry.SizeBytes).
		Dur("duration", time.Since(start)).
		Msg("Snapshot backup uploaded")

	if err := s.pruneOldBackups(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to prune old backups")
	}
	return key, nil
}

// ListBackups returns stored backups, newest first.
func (s *SnapshotBackupService) ListBackups(ctx context.Context) ([]ObjectInfo, error) {
	return s.store.List(ctx, backupPrefix)
}

// pruneOldBackups deletes backups beyond the retention count, oldest first.
func (s *SnapshotBackupService) pruneOldBackups(ctx context.Context) error {
	if s.retention <= 0 {
		return nil
	}

	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return err
	}
	if len(objects) <= s.retention {
		return nil
	}

	for _, obj := range objects[s.retention:] {
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			return err
		}
		s.log.Info().Str("key", obj.Key).Msg("Pruned old snapshot backup")
	}
	return nil
}
