// Package backup implements the backup/restore orchestration engine:
// checkpoint-based incremental transfer, whole-bucket snapshots, and the
// per-run bucket iteration with its failure policies.
package backup

import (
	"fmt"

	"github.com/google/uuid"
)

// BucketStatus is the terminal state of one bucket's unit of work.
type BucketStatus string

const (
	// StatusUploaded means incremental data was extracted and uploaded.
	StatusUploaded BucketStatus = "uploaded"
	// StatusEmpty means extraction completed with no rows in the window.
	StatusEmpty BucketStatus = "empty"
	// StatusRestored means the bucket's data was loaded back into InfluxDB.
	StatusRestored BucketStatus = "restored"
	// StatusSkipped means the bucket had nothing to process and was passed over.
	StatusSkipped BucketStatus = "skipped"
	// StatusNotFound means no artifact existed for the bucket on restore.
	StatusNotFound BucketStatus = "not_found"
	// StatusFailed means the bucket's unit of work failed.
	StatusFailed BucketStatus = "failed"
)

// FailurePolicy controls how a run reacts to one bucket's failure.
type FailurePolicy int

const (
	// AbortOnFirstFailure stops the run at the first failing bucket. Buckets
	// processed earlier keep their results (and advanced checkpoints).
	AbortOnFirstFailure FailurePolicy = iota
	// ContinueOnFailure records the failure and moves to the next bucket.
	ContinueOnFailure
)

// Request is the structured input of one invocation. Fields vary by
// operation: incremental backup honors Buckets; restores require BackupDate
// or BackupTimestamp; snapshot backup honors S3Prefix.
type Request struct {
	Buckets         []RequestBucket `json:"buckets,omitempty"`
	BackupDate      string          `json:"backup_date,omitempty"`
	BackupTimestamp string          `json:"backup_timestamp,omitempty"`
	S3Prefix        string          `json:"s3_prefix,omitempty"`
}

// RequestBucket mirrors config.BucketConfig in the request payload.
type RequestBucket struct {
	Name         string   `json:"name"`
	Measurements []string `json:"measurements"`
	DestBucket   string   `json:"dest_bucket,omitempty"`
}

// RunResult is the aggregated outcome of one invocation.
type RunResult struct {
	RunID     uuid.UUID `json:"run_id"`
	Succeeded []string  `json:"succeeded"`
	Failed    []string  `json:"failed"`
	Message   string    `json:"message"`
}

// OK reports whether the run is caller-visible success: at least one bucket
// succeeded, or nothing failed at all.
func (r *RunResult) OK() bool {
	return len(r.Succeeded) > 0 || len(r.Failed) == 0
}

func newRunResult() *RunResult {
	return &RunResult{RunID: uuid.New()}
}

func (r *RunResult) recordSuccess(bucket string) {
	r.Succeeded = append(r.Succeeded, bucket)
}

func (r *RunResult) recordFailure(bucket string) {
	r.Failed = append(r.Failed, bucket)
}

func (r *RunResult) String() string {
	return fmt.Sprintf("succeeded=%v failed=%v", r.Succeeded, r.Failed)
}
