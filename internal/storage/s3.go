package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/joseph-ayodele/ape/internal/common"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// UsageRecorder receives S3 usage for cost accounting; *cost.Tracker satisfies it.
type UsageRecorder interface {
	S3(storageGB float64, requests int) float64
}

// S3Store keeps objects in a bucket and downloads them to TempDir on Open.
type S3Store struct {
	api     S3API
	bucket  string
	prefix  string
	tempDir string
	usage   UsageRecorder
	logger  *slog.Logger
}

type S3Option func(*S3Store)

func WithTempDir(dir string) S3Option {
	return func(s *S3Store) {
		if dir != "" {
			s.tempDir = dir
		}
	}
}

func WithUsageRecorder(u UsageRecorder) S3Option {
	return func(s *S3Store) { s.usage = u }
}

func NewS3Store(cfg aws.Config, bucket, prefix string, logger *slog.Logger, opts ...S3Option) *S3Store {
	return NewS3StoreWithAPI(s3.NewFromConfig(cfg), bucket, prefix, logger, opts...)
}

func NewS3StoreWithAPI(api S3API, bucket, prefix string, logger *slog.Logger, opts ...S3Option) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &S3Store{api: api, bucket: bucket, prefix: prefix, tempDir: os.TempDir(), logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *S3Store) objectKey(key string) string {
	return path.Join(s.prefix, key)
}

func (s *S3Store) record(bytes int64, requests int) {
	if s.usage == nil {
		return
	}
	s.usage.S3(float64(bytes)/(1<<30), requests)
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   r,
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		s.logger.Error("storage.s3.put_failed", "bucket", s.bucket, "key", key, "error", err)
		return fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}
	s.record(size, 1)
	s.logger.Debug("storage.s3.put", "bucket", s.bucket, "key", key, "bytes", size)
	return nil
}

func (s *S3Store) Open(ctx context.Context, key string) (string, func(), error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", nil, common.NotFoundf("stored file %s", key)
		}
		return "", nil, fmt.Errorf("get %s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	// keep the extension: the dispatcher selects a strategy from it
	f, err := os.CreateTemp(s.tempDir, "*-"+filepath.Base(key))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(f, out.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", nil, fmt.Errorf("download %s/%s: %w", s.bucket, key, err)
	}
	s.record(0, 1)
	s.logger.Debug("storage.s3.downloaded", "bucket", s.bucket, "key", key, "bytes", n, "path", f.Name())

	name := f.Name()
	return name, func() { _ = os.Remove(name) }, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", s.bucket, key, err)
	}
	s.record(0, 1)
	return nil
}
