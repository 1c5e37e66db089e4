// Package checkpoint persists the last successful backup time per InfluxDB
// bucket as a small JSON object in object storage.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MacJediWizard/influxvault/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultLookback is the window start used when a bucket has no checkpoint.
const DefaultLookback = 24 * time.Hour

// ObjectStore is the storage access the checkpoint store needs.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte) error
}

// record is the persisted checkpoint shape.
type record struct {
	LastBackupTime string `json:"last_backup_time"`
}

// Store reads and writes per-bucket checkpoints.
type Store struct {
	store  ObjectStore
	logger zerolog.Logger
}

// NewStore creates a checkpoint Store backed by the given object store.
func NewStore(store ObjectStore, logger zerolog.Logger) *Store {
	return &Store{
		store:  store,
		logger: logger.With().Str("component", "checkpoint").Logger(),
	}
}

// Key returns the object key holding the checkpoint for a bucket.
func Key(bucket string) string {
	return fmt.Sprintf("influx-backups/last_incremental_timestamp_%s.json", bucket)
}

// LastBackupTime returns the checkpoint for a bucket. A missing checkpoint is
// not an error: the default of now minus DefaultLookback is returned and a
// warning is logged. Any other storage error is fatal for the bucket's run.
func (s *Store) LastBackupTime(ctx context.Context, bucket string, now time.Time) (time.Time, error) {
	data, err := s.store.GetObject(ctx, Key(bucket))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn().
				Str("influx_bucket", bucket).
				Msg("no previous backup timestamp found, defaulting to 24 hours ago")
			return now.Add(-DefaultLookback), nil
		}
		return time.Time{}, fmt.Errorf("read checkpoint for %s: %w", bucket, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return time.Time{}, fmt.Errorf("parse checkpoint for %s: %w", bucket, err)
	}
	ts, err := time.Parse(time.RFC3339, rec.LastBackupTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse checkpoint timestamp for %s: %w", bucket, err)
	}
	return ts, nil
}

// SetLastBackupTime records a new checkpoint for a bucket, overwriting any
// existing one. Callers must invoke this only after the bucket's extraction
// has fully completed; writing earlier would mark data as backed up that is
// not yet in storage.
func (s *Store) SetLastBackupTime(ctx context.Context, bucket string, ts time.Time) error {
	data, err := json.Marshal(record{LastBackupTime: ts.UTC().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := s.store.PutObject(ctx, Key(bucket), data); err != nil {
		return fmt.Errorf("write checkpoint for %s: %w", bucket, err)
	}

	s.logger.Info().Str("influx_bucket", bucket).Time("last_backup_time", ts).Msg("updated checkpoint")
	return nil
}
