// Package storage wraps the S3 object operations influxvault depends on:
// small-object get/put for checkpoints and streamed upload/download/list for
// backup artifacts.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// ErrObjectNotFound is returned when the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// API is the subset of the S3 client the store uses. It satisfies the
// transfer manager's upload and download client interfaces.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Store provides object access against a single storage bucket.
type Store struct {
	api        API
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	logger     zerolog.Logger
}

// New creates a Store for the given storage bucket.
func New(api API, bucket string, logger zerolog.Logger) *Store {
	return &Store{
		api:        api,
		uploader:   manager.NewUploader(api),
		downloader: manager.NewDownloader(api),
		bucket:     bucket,
		logger:     logger.With().Str("component", "storage").Str("bucket", bucket).Logger(),
	}
}

// GetObject reads a whole object into memory. Returns ErrObjectNotFound if
// the key does not exist.
func (s *Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// PutObject writes a whole object, overwriting any existing one.
func (s *Store) PutObject(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// UploadFile streams a local file to the given key.
func (s *Store) UploadFile(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Str("path", path).Msg("uploaded file")
	return nil
}

// DownloadFile streams an object to a local file. Returns ErrObjectNotFound
// if the key does not exist; the destination file is removed in that case.
func (s *Store) DownloadFile(ctx context.Context, key, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	_, err = s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	closeErr := f.Close()
	if err != nil {
		if removeErr := os.Remove(path); removeErr != nil {
			s.logger.Warn().Err(removeErr).Str("path", path).Msg("failed to remove partial download")
		}
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return fmt.Errorf("download %s: %w", key, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", path, closeErr)
	}

	s.logger.Debug().Str("key", key).Str("path", path).Msg("downloaded file")
	return nil
}

// ListKeys returns all object keys under the given prefix.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// isNotFound reports whether an S3 error means the object does not exist.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}
