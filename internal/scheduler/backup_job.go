package scheduler

import (
	"context"
	"time"

	"github.com/aristath/stockpile/internal/reliability"
	"github.com/rs/zerolog"
)

const backupTimeout = 10 * time.Minute

// BackupJob uploads the latest cataloged snapshot to offsite storage.
type BackupJob struct {
	service *reliability.SnapshotBackupService
	log     zerolog.Logger
}

// NewBackupJob creates a new backup job.
func NewBackupJob(service *reliability.SnapshotBackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		log:     log.With().Str("job", "snapshot_backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "snapshot_backup"
}

// Run uploads the latest snapshot, if one is pending.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	key, err := j.service.BackupLatest(ctx)
	if err != nil {
		return err
	}
	if key == "" {
		j.log.Debug().Msg("No new snapshot to back up")
	}
	return nil
}
