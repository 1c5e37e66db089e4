package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MacJediWizard/influxvault/internal/config"
	"github.com/MacJediWizard/influxvault/internal/flux"
	"github.com/MacJediWizard/influxvault/internal/storage"
	"github.com/rs/zerolog"
)

// ObjectStore is the object storage access the engine needs.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte) error
	UploadFile(ctx context.Context, key, path string) error
	DownloadFile(ctx context.Context, key, path string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// InfluxCLI is the external tool contract the engine invokes.
type InfluxCLI interface {
	Query(ctx context.Context, token, query, outputPath string) error
	Write(ctx context.Context, token, bucket, filePath string) error
	Backup(ctx context.Context, token, bucket, dir string) error
	Restore(ctx context.Context, token, bucket, dir, newOrg, newBucket string) error
}

// CheckpointStore reads and writes per-bucket last-backup-time markers.
type CheckpointStore interface {
	LastBackupTime(ctx context.Context, bucket string, now time.Time) (time.Time, error)
	SetLastBackupTime(ctx context.Context, bucket string, ts time.Time) error
}

// DailyArtifactKey returns the object key of a bucket's incremental artifact
// for a given date (YYYY-MM-DD).
func DailyArtifactKey(date, bucket string) string {
	return fmt.Sprintf("influx-backups/daily/%s/%s/data-%s.csv.gz", date, bucket, date)
}

// Pipeline is the incremental extract/compress/upload path and its inverse.
type Pipeline struct {
	influx      InfluxCLI
	store       ObjectStore
	checkpoints CheckpointStore
	tempDir     string
	logger      zerolog.Logger
}

// NewPipeline creates a Pipeline staging temporary files under tempDir.
func NewPipeline(influx InfluxCLI, store ObjectStore, checkpoints CheckpointStore, tempDir string, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		influx:      influx,
		store:       store,
		checkpoints: checkpoints,
		tempDir:     tempDir,
		logger:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// Backup extracts one bucket's rows since its checkpoint, compresses and
// uploads them, then advances the checkpoint to now. Zero extracted bytes is
// a valid outcome: the checkpoint still advances and StatusEmpty is returned.
// The checkpoint is never advanced on failure.
func (p *Pipeline) Backup(ctx context.Context, bucket config.BucketConfig, token string, now time.Time) (BucketStatus, error) {
	start, err := p.checkpoints.LastBackupTime(ctx, bucket.Name, now)
	if err != nil {
		return StatusFailed, err
	}

	window := flux.Window{Start: start, Stop: now}
	if err := window.Validate(); err != nil {
		return StatusFailed, fmt.Errorf("bucket %s: %w", bucket.Name, err)
	}

	query := flux.BuildQuery(bucket.Name, bucket.Measurements, window)
	p.logger.Info().
		Str("influx_bucket", bucket.Name).
		Strs("measurements", bucket.Measurements).
		Time("window_start", window.Start).
		Time("window_stop", window.Stop).
		Msg("starting incremental backup")

	csvFile, err := os.CreateTemp(p.tempDir, "influxvault-*.csv")
	if err != nil {
		return StatusFailed, fmt.Errorf("create temp file: %w", err)
	}
	csvPath := csvFile.Name()
	csvFile.Close()
	defer p.removeQuiet(csvPath)

	queryCtx, cancel := context.WithTimeout(ctx, config.IncrementalTimeout)
	defer cancel()
	if err := p.influx.Query(queryCtx, token, query, csvPath); err != nil {
		return StatusFailed, fmt.Errorf("extract bucket %s: %w", bucket.Name, err)
	}

	info, err := os.Stat(csvPath)
	if err != nil {
		return StatusFailed, fmt.Errorf("stat extraction output: %w", err)
	}
	if info.Size() == 0 {
		p.logger.Info().Str("influx_bucket", bucket.Name).Msg("no data returned for the period")
		if err := p.checkpoints.SetLastBackupTime(ctx, bucket.Name, now); err != nil {
			return StatusFailed, err
		}
		return StatusEmpty, nil
	}

	gzPath := csvPath + ".gz"
	defer p.removeQuiet(gzPath)
	if err := compressFile(csvPath, gzPath); err != nil {
		return StatusFailed, err
	}
	p.removeQuiet(csvPath)

	key := DailyArtifactKey(now.UTC().Format("2006-01-02"), bucket.Name)
	if err := p.store.UploadFile(ctx, key, gzPath); err != nil {
		return StatusFailed, fmt.Errorf("upload artifact for %s: %w", bucket.Name, err)
	}

	if err := p.checkpoints.SetLastBackupTime(ctx, bucket.Name, now); err != nil {
		return StatusFailed, err
	}

	p.logger.Info().
		Str("influx_bucket", bucket.Name).
		Str("key", key).
		Int64("raw_bytes", info.Size()).
		Msg("incremental backup completed")
	return StatusUploaded, nil
}

// Restore downloads the artifact for (backupDate, bucket), decompresses it,
// and loads it into the bucket's restore target. A missing artifact is a
// legitimate outcome reported as StatusNotFound with no error; everything
// else that goes wrong is StatusFailed.
func (p *Pipeline) Restore(ctx context.Context, bucket config.BucketConfig, token, backupDate string) (BucketStatus, error) {
	key := DailyArtifactKey(backupDate, bucket.Name)
	gzPath := filepath.Join(p.tempDir, fmt.Sprintf("%s_data.csv.gz", bucket.Name))
	csvPath := filepath.Join(p.tempDir, fmt.Sprintf("%s_data.csv", bucket.Name))
	defer p.removeQuiet(gzPath)
	defer p.removeQuiet(csvPath)

	if err := p.store.DownloadFile(ctx, key, gzPath); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			p.logger.Warn().
				Str("influx_bucket", bucket.Name).
				Str("backup_date", backupDate).
				Msg("no backup found")
			return StatusNotFound, nil
		}
		return StatusFailed, fmt.Errorf("download artifact for %s: %w", bucket.Name, err)
	}

	if err := decompressFile(gzPath, csvPath); err != nil {
		return StatusFailed, err
	}
	p.removeQuiet(gzPath)

	dest := bucket.RestoreTarget()
	writeCtx, cancel := context.WithTimeout(ctx, config.IncrementalTimeout)
	defer cancel()
	if err := p.influx.Write(writeCtx, token, dest, csvPath); err != nil {
		return StatusFailed, fmt.Errorf("restore bucket %s: %w", bucket.Name, err)
	}

	p.logger.Info().
		Str("influx_bucket", bucket.Name).
		Str("dest_bucket", dest).
		Msg("incremental restore completed")
	return StatusRestored, nil
}

// removeQuiet deletes a temp file. Cleanup never fails the run; problems go
// to the log only.
func (p *Pipeline) removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn().Err(err).Str("path", path).Msg("failed to remove temp file")
	}
}
