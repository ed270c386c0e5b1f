package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures the S3 backend. Any S3-compatible endpoint works.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// objectPutter is the part of *minio.Client the backend uses.
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader,
		objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type s3Store struct {
	client objectPutter
	bucket string
}

func newS3Store(cfg S3Config) (*s3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &s3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *s3Store) name() string { return "aws" }

func (s *s3Store) put(ctx context.Context, obj Object) error {
	_, err := s.client.PutObject(ctx, s.bucket, obj.Key, bytes.NewReader(obj.Data), int64(len(obj.Data)),
		minio.PutObjectOptions{
			ContentType: "application/gzip",
			UserMetadata: map[string]string{
				"metric-type":   obj.MetricType,
				"collection-id": obj.CollectionID,
			},
		})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, obj.Key, err)
	}
	return nil
}

func (s *s3Store) close() error { return nil }
