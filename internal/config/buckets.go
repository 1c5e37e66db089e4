package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// BucketConfig describes one InfluxDB bucket to back up or restore.
type BucketConfig struct {
	Name         string   `json:"name" yaml:"name"`
	Measurements []string `json:"measurements" yaml:"measurements"`
	// DestBucket is the destination bucket for restores. Empty means
	// "restored_<name>".
	DestBucket string `json:"dest_bucket,omitempty" yaml:"dest_bucket,omitempty"`
}

// Normalize trims the name and drops blank measurements.
// A bucket whose name is empty after trimming is invalid.
func (b *BucketConfig) Normalize() error {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return fmt.Errorf("bucket config has empty name")
	}

	measurements := make([]string, 0, len(b.Measurements))
	for _, m := range b.Measurements {
		m = strings.TrimSpace(m)
		if m != "" {
			measurements = append(measurements, m)
		}
	}
	b.Measurements = measurements
	b.DestBucket = strings.TrimSpace(b.DestBucket)
	return nil
}

// RestoreTarget returns the destination bucket for a restore of this bucket.
func (b *BucketConfig) RestoreTarget() string {
	if b.DestBucket != "" {
		return b.DestBucket
	}
	return "restored_" + b.Name
}

// DefaultBuckets returns the built-in bucket list used when neither the
// request nor the environment supplies one.
func DefaultBuckets() []BucketConfig {
	return []BucketConfig{
		{Name: "asset_bucket", Measurements: []string{"cloud_telemetry", "telemetry"}},
		{Name: "cloud_bucket", Measurements: []string{"savings"}},
	}
}

// ResolveBuckets picks the bucket list for a run: the request's buckets if
// any, otherwise the serialized environment override, otherwise the built-in
// defaults. An override that fails to parse is logged and ignored rather than
// failing the run. Every resolved bucket is normalized; an invalid bucket
// config is a fatal error.
func ResolveBuckets(requested []BucketConfig, envJSON string, logger zerolog.Logger) ([]BucketConfig, error) {
	buckets := requested
	if len(buckets) == 0 {
		if envJSON != "" {
			if err := json.Unmarshal([]byte(envJSON), &buckets); err != nil {
				logger.Warn().Err(err).Msg("invalid bucket config override, using default buckets")
				buckets = nil
			}
		}
		if len(buckets) == 0 {
			buckets = DefaultBuckets()
		}
	}

	for i := range buckets {
		if err := buckets[i].Normalize(); err != nil {
			return nil, fmt.Errorf("invalid bucket configuration: %w", err)
		}
	}
	return buckets, nil
}
