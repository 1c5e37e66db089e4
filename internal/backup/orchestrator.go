package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MacJediWizard/influxvault/internal/config"
	"github.com/rs/zerolog"
)

// ErrMissingBackupDate is returned when a daily restore request lacks a date.
var ErrMissingBackupDate = errors.New("missing 'backup_date' in request (format: YYYY-MM-DD)")

// ErrMissingBackupTimestamp is returned when a snapshot restore request lacks
// a timestamp.
var ErrMissingBackupTimestamp = errors.New("missing 'backup_timestamp' in request (format: YYYYMMDDTHHMMSSZ)")

// snapshotTimestampLayout is the timestamp format of monthly snapshot prefixes.
const snapshotTimestampLayout = "20060102T150405Z"

// SecretResolver fetches the InfluxDB token.
type SecretResolver interface {
	Resolve(ctx context.Context, secretID string) (string, error)
}

// IncrementalRunner is the per-bucket incremental transfer pipeline.
type IncrementalRunner interface {
	Backup(ctx context.Context, bucket config.BucketConfig, token string, now time.Time) (BucketStatus, error)
	Restore(ctx context.Context, bucket config.BucketConfig, token, backupDate string) (BucketStatus, error)
}

// SnapshotRunner is the per-bucket whole-bucket snapshot engine.
type SnapshotRunner interface {
	Backup(ctx context.Context, bucketName, token, destPrefix string) (int, error)
	Restore(ctx context.Context, bucketName, backupTimestamp, token, newOrg, newBucket string) (bool, error)
}

// Orchestrator resolves the bucket set for a run, drives the per-bucket units
// of work under the operation's failure policy, and aggregates the result.
type Orchestrator struct {
	cfg         config.Config
	secrets     SecretResolver
	incremental IncrementalRunner
	snapshots   SnapshotRunner
	logger      zerolog.Logger
	now         func() time.Time
}

// NewOrchestrator creates an Orchestrator. Defaults and bucket lists come
// from cfg; there is no process-wide mutable state.
func NewOrchestrator(cfg config.Config, secrets SecretResolver, incremental IncrementalRunner, snapshots SnapshotRunner, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		secrets:     secrets,
		incremental: incremental,
		snapshots:   snapshots,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		now:         time.Now,
	}
}

// IncrementalBackup runs the checkpoint-based extract/compress/upload path
// for every resolved bucket. One bucket's failure aborts the run; buckets
// processed before it keep their advanced checkpoints.
func (o *Orchestrator) IncrementalBackup(ctx context.Context, req Request) (*RunResult, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	buckets, err := config.ResolveBuckets(toBucketConfigs(req.Buckets), o.cfg.BucketConfigJSON, o.logger)
	if err != nil {
		return nil, err
	}
	token, err := o.secrets.Resolve(ctx, o.cfg.TokenSecretID)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	result := newRunResult()
	err = o.forEachBucket(AbortOnFirstFailure, buckets, result, func(b config.BucketConfig) (BucketStatus, error) {
		if len(b.Measurements) == 0 {
			o.logger.Warn().Str("influx_bucket", b.Name).Msg("no measurements specified, skipping")
			return StatusSkipped, nil
		}
		return o.incremental.Backup(ctx, b, token, now)
	})
	result.Message = fmt.Sprintf("Incremental backup completed for buckets %v", result.Succeeded)
	if err != nil {
		return result, err
	}
	return result, nil
}

// IncrementalRestore loads the daily artifacts for the given date back into
// each bucket's restore target. Failures are isolated per bucket.
func (o *Orchestrator) IncrementalRestore(ctx context.Context, req Request) (*RunResult, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if req.BackupDate == "" {
		return nil, ErrMissingBackupDate
	}
	if _, err := time.Parse("2006-01-02", req.BackupDate); err != nil {
		return nil, fmt.Errorf("invalid 'backup_date' format, expected YYYY-MM-DD: %w", err)
	}
	buckets, err := config.ResolveBuckets(toBucketConfigs(req.Buckets), o.cfg.BucketConfigJSON, o.logger)
	if err != nil {
		return nil, err
	}
	token, err := o.secrets.Resolve(ctx, o.cfg.TokenSecretID)
	if err != nil {
		return nil, err
	}

	result := newRunResult()
	_ = o.forEachBucket(ContinueOnFailure, buckets, result, func(b config.BucketConfig) (BucketStatus, error) {
		return o.incremental.Restore(ctx, b, token, req.BackupDate)
	})
	result.Message = fmt.Sprintf("Restoration completed for %s", req.BackupDate)
	return result, nil
}

// SnapshotBackup dumps every resolved bucket in full and uploads the dump
// files. A failing bucket aborts the run: the caller expects a complete
// archive or none.
func (o *Orchestrator) SnapshotBackup(ctx context.Context, req Request) (*RunResult, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	buckets, err := config.ResolveBuckets(toBucketConfigs(req.Buckets), o.cfg.BucketConfigJSON, o.logger)
	if err != nil {
		return nil, err
	}
	token, err := o.secrets.Resolve(ctx, o.cfg.TokenSecretID)
	if err != nil {
		return nil, err
	}

	destPrefix := req.S3Prefix
	if destPrefix == "" {
		destPrefix = MonthlyPrefix(o.now().UTC().Format(snapshotTimestampLayout))
	} else if !strings.HasSuffix(destPrefix, "/") {
		destPrefix += "/"
	}

	result := newRunResult()
	err = o.forEachBucket(AbortOnFirstFailure, buckets, result, func(b config.BucketConfig) (BucketStatus, error) {
		if _, err := o.snapshots.Backup(ctx, b.Name, token, destPrefix); err != nil {
			return StatusFailed, err
		}
		return StatusUploaded, nil
	})
	result.Message = fmt.Sprintf("Backup completed for buckets %v to %s", result.Succeeded, destPrefix)
	if err != nil {
		return result, err
	}
	return result, nil
}

// SnapshotRestore restores each bucket from a monthly snapshot, remapping to
// the configured destination org and the bucket's restore target. A bucket
// with no snapshot files is skipped; a failing restore aborts the run.
func (o *Orchestrator) SnapshotRestore(ctx context.Context, req Request) (*RunResult, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if req.BackupTimestamp == "" {
		return nil, ErrMissingBackupTimestamp
	}
	if _, err := time.Parse(snapshotTimestampLayout, req.BackupTimestamp); err != nil {
		return nil, fmt.Errorf("invalid 'backup_timestamp' format, expected YYYYMMDDTHHMMSSZ: %w", err)
	}
	buckets, err := config.ResolveBuckets(toBucketConfigs(req.Buckets), o.cfg.BucketConfigJSON, o.logger)
	if err != nil {
		return nil, err
	}
	token, err := o.secrets.Resolve(ctx, o.cfg.TokenSecretID)
	if err != nil {
		return nil, err
	}

	result := newRunResult()
	err = o.forEachBucket(AbortOnFirstFailure, buckets, result, func(b config.BucketConfig) (BucketStatus, error) {
		restored, err := o.snapshots.Restore(ctx, b.Name, req.BackupTimestamp, token, o.cfg.InfluxNewOrg, b.RestoreTarget())
		if err != nil {
			return StatusFailed, err
		}
		if !restored {
			return StatusSkipped, nil
		}
		return StatusRestored, nil
	})
	result.Message = fmt.Sprintf("Restoration completed for %s to buckets %v", req.BackupTimestamp, result.Succeeded)
	if err != nil {
		return result, err
	}
	return result, nil
}

// forEachBucket drives the per-bucket unit of work under the given failure
// policy. Skipped buckets appear in neither set; a not-found restore counts
// as failed without aborting.
func (o *Orchestrator) forEachBucket(policy FailurePolicy, buckets []config.BucketConfig, result *RunResult, fn func(config.BucketConfig) (BucketStatus, error)) error {
	for _, b := range buckets {
		status, err := fn(b)
		if err != nil {
			o.logger.Error().Err(err).Str("influx_bucket", b.Name).Msg("bucket processing failed")
			result.recordFailure(b.Name)
			if policy == AbortOnFirstFailure {
				return err
			}
			continue
		}

		switch status {
		case StatusSkipped:
			// Not processed: no checkpoint mutation, no result entry.
		case StatusNotFound, StatusFailed:
			result.recordFailure(b.Name)
		default:
			result.recordSuccess(b.Name)
		}
	}
	return nil
}

func toBucketConfigs(reqBuckets []RequestBucket) []config.BucketConfig {
	if len(reqBuckets) == 0 {
		return nil
	}
	buckets := make([]config.BucketConfig, 0, len(reqBuckets))
	for _, b := range reqBuckets {
		buckets = append(buckets, config.BucketConfig{
			Name:         b.Name,
			Measurements: b.Measurements,
			DestBucket:   b.DestBucket,
		})
	}
	return buckets
}
