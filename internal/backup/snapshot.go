package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MacJediWizard/influxvault/internal/config"
	"github.com/rs/zerolog"
)

// MonthlyPrefix returns the object-key prefix of a monthly snapshot run.
func MonthlyPrefix(timestamp string) string {
	return fmt.Sprintf("influx-backups/monthly/%s/", timestamp)
}

// SnapshotEngine performs whole-bucket dumps and their restore counterpart.
type SnapshotEngine struct {
	influx  InfluxCLI
	store   ObjectStore
	tempDir string
	logger  zerolog.Logger
}

// NewSnapshotEngine creates a SnapshotEngine staging dump files under tempDir.
func NewSnapshotEngine(influx InfluxCLI, store ObjectStore, tempDir string, logger zerolog.Logger) *SnapshotEngine {
	return &SnapshotEngine{
		influx:  influx,
		store:   store,
		tempDir: tempDir,
		logger:  logger.With().Str("component", "snapshot").Logger(),
	}
}

// Backup dumps a whole bucket locally and uploads every produced file to
// destPrefix/<bucket>/<file>. The local directory is drained and removed
// after the bucket whatever the upload outcome; cleanup problems are logged,
// never raised. Returns the number of files uploaded.
func (e *SnapshotEngine) Backup(ctx context.Context, bucketName, token, destPrefix string) (int, error) {
	dir, err := os.MkdirTemp(e.tempDir, "influxvault-snapshot-*")
	if err != nil {
		return 0, fmt.Errorf("create snapshot directory: %w", err)
	}
	defer e.cleanupDir(dir)

	e.logger.Info().Str("influx_bucket", bucketName).Str("dir", dir).Msg("starting snapshot backup")

	backupCtx, cancel := context.WithTimeout(ctx, config.SnapshotTimeout)
	defer cancel()
	if err := e.influx.Backup(backupCtx, token, bucketName, dir); err != nil {
		return 0, fmt.Errorf("snapshot bucket %s: %w", bucketName, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read snapshot directory: %w", err)
	}

	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		key := fmt.Sprintf("%s%s/%s", destPrefix, bucketName, entry.Name())

		uploadErr := e.store.UploadFile(ctx, key, path)
		// The local file is drained whether or not the upload succeeded.
		if err := os.Remove(path); err != nil {
			e.logger.Warn().Err(err).Str("path", path).Msg("failed to delete snapshot file")
		}
		if uploadErr != nil {
			return uploaded, fmt.Errorf("upload snapshot file %s: %w", key, uploadErr)
		}

		uploaded++
		e.logger.Info().Str("key", key).Msg("uploaded snapshot file")
	}

	e.logger.Info().
		Str("influx_bucket", bucketName).
		Int("files", uploaded).
		Msg("snapshot backup completed")
	return uploaded, nil
}

// Restore downloads every object under the snapshot's prefix for the bucket
// and runs the engine-native restore against the downloaded directory,
// remapping to newOrg/newBucket. A bucket with zero listed objects is skipped
// and reported as restored=false with no error.
func (e *SnapshotEngine) Restore(ctx context.Context, bucketName, backupTimestamp, token, newOrg, newBucket string) (bool, error) {
	prefix := MonthlyPrefix(backupTimestamp) + bucketName + "/"

	keys, err := e.store.ListKeys(ctx, prefix)
	if err != nil {
		return false, fmt.Errorf("list snapshot files for %s: %w", bucketName, err)
	}
	if len(keys) == 0 {
		e.logger.Warn().
			Str("influx_bucket", bucketName).
			Str("prefix", prefix).
			Msg("no snapshot files found, skipping")
		return false, nil
	}

	dir, err := os.MkdirTemp(e.tempDir, "influxvault-restore-*")
	if err != nil {
		return false, fmt.Errorf("create restore directory: %w", err)
	}
	defer e.cleanupDir(dir)

	for _, key := range keys {
		path := filepath.Join(dir, filepath.Base(key))
		if err := e.store.DownloadFile(ctx, key, path); err != nil {
			return false, fmt.Errorf("download snapshot file %s: %w", key, err)
		}
	}

	e.logger.Info().
		Str("influx_bucket", bucketName).
		Str("dest_bucket", newBucket).
		Int("files", len(keys)).
		Msg("starting snapshot restore")

	restoreCtx, cancel := context.WithTimeout(ctx, config.SnapshotTimeout)
	defer cancel()
	if err := e.influx.Restore(restoreCtx, token, bucketName, dir, newOrg, newBucket); err != nil {
		return false, fmt.Errorf("restore bucket %s: %w", bucketName, err)
	}

	e.logger.Info().Str("influx_bucket", bucketName).Str("dest_bucket", newBucket).Msg("snapshot restore completed")
	return true, nil
}

// cleanupDir removes a staging directory. Never fails the run.
func (e *SnapshotEngine) cleanupDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Warn().Err(err).Str("dir", dir).Msg("failed to remove snapshot directory")
	}
}
