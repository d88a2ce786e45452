package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"gearshed/catalogworker/logger"
	pkgerrors "gearshed/catalogworker/pkg/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage implements ObjectStorage against any S3-compatible endpoint.
type MinioStorage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

var _ ObjectStorage = (*MinioStorage)(nil)

// Options configures the storage client.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the URL base returned by PutObject; defaults to the
	// endpoint itself.
	PublicURL string
}

// NewMinioStorage builds the client and verifies the bucket is reachable.
func NewMinioStorage(ctx context.Context, opts Options) (*MinioStorage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, pkgerrors.NewConfiguration("failed to create storage client", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, pkgerrors.NewStorage(opts.Bucket, "bucket check failed", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, pkgerrors.NewStorage(opts.Bucket, "bucket creation failed", err)
		}
		logger.ForStorage().Info().Str("bucket", opts.Bucket).Msg("Bucket created")
	}

	publicURL := opts.PublicURL
	if publicURL == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.Bucket)
	}

	return &MinioStorage{
		client:    client,
		bucket:    opts.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// ListObjectNames returns all object names under prefix.
func (m *MinioStorage) ListObjectNames(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, pkgerrors.NewStorage(m.bucket, "object listing failed", obj.Err)
		}
		names = append(names, obj.Key)
	}
	logger.ForStorage().Debug().Str("prefix", prefix).Int("objects", len(names)).Msg("Object listing complete")
	return names, nil
}

// PutObject uploads data under key and returns its public URL.
func (m *MinioStorage) PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", pkgerrors.NewStorage(key, "upload failed", err)
	}
	return m.publicURL + "/" + key, nil
}
