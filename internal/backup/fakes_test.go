package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MacJediWizard/influxvault/internal/storage"
)

// fakeStore is an in-memory ObjectStore.
type fakeStore struct {
	objects     map[string][]byte
	uploadErr   error
	downloadErr error
	listErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) GetObject(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return data, nil
}

func (f *fakeStore) PutObject(_ context.Context, key string, data []byte) error {
	f.objects[key] = data
	return nil
}

func (f *fakeStore) UploadFile(_ context.Context, key, path string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStore) DownloadFile(_ context.Context, key, path string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	data, ok := f.objects[key]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return os.WriteFile(path, data, 0o600)
}

func (f *fakeStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// fakeInflux is an in-memory InfluxCLI.
type fakeInflux struct {
	queryOutput []byte
	queryErr    error
	writeErr    error
	backupFiles []string
	backupErr   error
	restoreErr  error

	writes   []fakeWrite
	restores []fakeRestore
}

type fakeWrite struct {
	bucket string
	data   []byte
}

type fakeRestore struct {
	bucket    string
	newOrg    string
	newBucket string
	files     []string
}

func (f *fakeInflux) Query(_ context.Context, _, _, outputPath string) error {
	if f.queryErr != nil {
		return f.queryErr
	}
	return os.WriteFile(outputPath, f.queryOutput, 0o600)
}

func (f *fakeInflux) Write(_ context.Context, _, bucket, filePath string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	f.writes = append(f.writes, fakeWrite{bucket: bucket, data: data})
	return nil
}

func (f *fakeInflux) Backup(_ context.Context, _, bucket, dir string) error {
	if f.backupErr != nil {
		return f.backupErr
	}
	for _, name := range f.backupFiles {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("dump of "+bucket), 0o600); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeInflux) Restore(_ context.Context, _, bucket, dir, newOrg, newBucket string) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		files = append(files, e.Name())
	}
	f.restores = append(f.restores, fakeRestore{
		bucket:    bucket,
		newOrg:    newOrg,
		newBucket: newBucket,
		files:     files,
	})
	return nil
}

// fakeCheckpoints is an in-memory CheckpointStore.
type fakeCheckpoints struct {
	last    map[string]time.Time
	readErr error
	setErr  error
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{last: map[string]time.Time{}}
}

func (f *fakeCheckpoints) LastBackupTime(_ context.Context, bucket string, now time.Time) (time.Time, error) {
	if f.readErr != nil {
		return time.Time{}, f.readErr
	}
	if ts, ok := f.last[bucket]; ok {
		return ts, nil
	}
	return now.Add(-24 * time.Hour), nil
}

func (f *fakeCheckpoints) SetLastBackupTime(_ context.Context, bucket string, ts time.Time) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.last[bucket] = ts
	return nil
}

// fakeSecrets is a static SecretResolver.
type fakeSecrets struct {
	token string
	err   error
}

func (f *fakeSecrets) Resolve(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}
