package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/MacJediWizard/influxvault/internal/config"
	"github.com/rs/zerolog"
)

func TestDailyArtifactKey(t *testing.T) {
	got := DailyArtifactKey("2026-08-23", "asset_bucket")
	want := "influx-backups/daily/2026-08-23/asset_bucket/data-2026-08-23.csv.gz"
	if got != want {
		t.Errorf("DailyArtifactKey = %q, want %q", got, want)
	}
}

func testPipeline(t *testing.T, influx *fakeInflux, store *fakeStore, checkpoints *fakeCheckpoints) *Pipeline {
	t.Helper()
	return NewPipeline(influx, store, checkpoints, t.TempDir(), zerolog.Nop())
}

func gunzip(t *testing.T, data []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	return out
}

func TestPipelineBackupUploadsAndAdvancesCheckpoint(t *testing.T) {
	influx := &fakeInflux{queryOutput: []byte("t,_measurement,_value\n...,telemetry,1\n")}
	store := newFakeStore()
	checkpoints := newFakeCheckpoints()
	p := testPipeline(t, influx, store, checkpoints)

	now := time.Date(2026, 8, 23, 2, 0, 0, 0, time.UTC)
	bucket := config.BucketConfig{Name: "asset_bucket", Measurements: []string{"telemetry"}}

	status, err := p.Backup(context.Background(), bucket, "tok", now)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if status != StatusUploaded {
		t.Errorf("status = %s, want %s", status, StatusUploaded)
	}

	key := DailyArtifactKey("2026-08-23", "asset_bucket")
	uploaded, ok := store.objects[key]
	if !ok {
		t.Fatalf("no artifact at %s, objects: %v", key, store.objects)
	}
	if got := gunzip(t, uploaded); !bytes.Equal(got, influx.queryOutput) {
		t.Errorf("artifact content = %q", got)
	}

	if ts := checkpoints.last["asset_bucket"]; !ts.Equal(now) {
		t.Errorf("checkpoint = %v, want %v", ts, now)
	}
}

func TestPipelineBackupEmptyAdvancesCheckpointWithoutUpload(t *testing.T) {
	influx := &fakeInflux{queryOutput: nil}
	store := newFakeStore()
	checkpoints := newFakeCheckpoints()
	p := testPipeline(t, influx, store, checkpoints)

	now := time.Date(2026, 8, 23, 2, 0, 0, 0, time.UTC)
	bucket := config.BucketConfig{Name: "cloud_bucket", Measurements: []string{"savings"}}

	status, err := p.Backup(context.Background(), bucket, "tok", now)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if status != StatusEmpty {
		t.Errorf("status = %s, want %s", status, StatusEmpty)
	}
	if len(store.objects) != 0 {
		t.Errorf("unexpected uploads: %v", store.objects)
	}
	if ts := checkpoints.last["cloud_bucket"]; !ts.Equal(now) {
		t.Errorf("checkpoint = %v, want %v", ts, now)
	}
}

func TestPipelineBackupQueryFailureKeepsCheckpoint(t *testing.T) {
	influx := &fakeInflux{queryErr: errors.New("connection refused")}
	store := newFakeStore()
	checkpoints := newFakeCheckpoints()
	p := testPipeline(t, influx, store, checkpoints)

	bucket := config.BucketConfig{Name: "asset_bucket", Measurements: []string{"telemetry"}}
	status, err := p.Backup(context.Background(), bucket, "tok", time.Now().UTC())
	if err == nil {
		t.Fatal("expected error")
	}
	if status != StatusFailed {
		t.Errorf("status = %s, want %s", status, StatusFailed)
	}
	if len(checkpoints.last) != 0 {
		t.Errorf("checkpoint advanced on failure: %v", checkpoints.last)
	}
}

func TestPipelineBackupUploadFailureKeepsCheckpoint(t *testing.T) {
	influx := &fakeInflux{queryOutput: []byte("data\n")}
	store := newFakeStore()
	store.uploadErr = errors.New("503 slow down")
	checkpoints := newFakeCheckpoints()
	p := testPipeline(t, influx, store, checkpoints)

	bucket := config.BucketConfig{Name: "asset_bucket", Measurements: []string{"telemetry"}}
	if _, err := p.Backup(context.Background(), bucket, "tok", time.Now().UTC()); err == nil {
		t.Fatal("expected error")
	}
	if len(checkpoints.last) != 0 {
		t.Errorf("checkpoint advanced after failed upload: %v", checkpoints.last)
	}
}

func TestPipelineBackupInvertedWindow(t *testing.T) {
	influx := &fakeInflux{}
	checkpoints := newFakeCheckpoints()
	now := time.Date(2026, 8, 23, 2, 0, 0, 0, time.UTC)
	checkpoints.last["asset_bucket"] = now.Add(time.Hour)
	p := testPipeline(t, influx, newFakeStore(), checkpoints)

	bucket := config.BucketConfig{Name: "asset_bucket", Measurements: []string{"telemetry"}}
	status, err := p.Backup(context.Background(), bucket, "tok", now)
	if err == nil {
		t.Fatal("expected error for checkpoint in the future")
	}
	if status != StatusFailed {
		t.Errorf("status = %s", status)
	}
}

func TestPipelineRestoreLoadsArtifact(t *testing.T) {
	content := []byte("t,_measurement,_value\n...,telemetry,1\n")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	store := newFakeStore()
	store.objects[DailyArtifactKey("2026-08-22", "asset_bucket")] = buf.Bytes()
	influx := &fakeInflux{}
	p := testPipeline(t, influx, store, newFakeCheckpoints())

	bucket := config.BucketConfig{Name: "asset_bucket"}
	status, err := p.Restore(context.Background(), bucket, "tok", "2026-08-22")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if status != StatusRestored {
		t.Errorf("status = %s, want %s", status, StatusRestored)
	}

	if len(influx.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(influx.writes))
	}
	if influx.writes[0].bucket != "restored_asset_bucket" {
		t.Errorf("dest bucket = %q", influx.writes[0].bucket)
	}
	if !bytes.Equal(influx.writes[0].data, content) {
		t.Errorf("restored content = %q", influx.writes[0].data)
	}
}

func TestPipelineRestoreMissingArtifact(t *testing.T) {
	p := testPipeline(t, &fakeInflux{}, newFakeStore(), newFakeCheckpoints())

	bucket := config.BucketConfig{Name: "asset_bucket"}
	status, err := p.Restore(context.Background(), bucket, "tok", "2026-08-22")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if status != StatusNotFound {
		t.Errorf("status = %s, want %s", status, StatusNotFound)
	}
}

func TestPipelineRestoreDownloadFailure(t *testing.T) {
	store := newFakeStore()
	store.downloadErr = errors.New("access denied")
	p := testPipeline(t, &fakeInflux{}, store, newFakeCheckpoints())

	bucket := config.BucketConfig{Name: "asset_bucket"}
	status, err := p.Restore(context.Background(), bucket, "tok", "2026-08-22")
	if err == nil {
		t.Fatal("expected error")
	}
	if status != StatusFailed {
		t.Errorf("status = %s, want %s", status, StatusFailed)
	}
}
