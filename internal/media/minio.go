package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// MinioStore is an ObjectStore on any S3-compatible service.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, publicBase: strings.TrimRight(cfg.PublicBaseURL, "/")}, nil
}

const publicReadPolicy = `{
	"Version": "2012-10-17",
	"Statement": [{
		"Effect": "Allow",
		"Principal": {"AWS": ["*"]},
		"Action": ["s3:GetObject"],
		"Resource": ["arn:aws:s3:::%s/*"]
	}]
}`

// EnsureBucket creates the bucket with anonymous read access when it does not exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	if err := s.client.SetBucketPolicy(ctx, s.bucket, fmt.Sprintf(publicReadPolicy, s.bucket)); err != nil {
		return fmt.Errorf("set bucket policy %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, objectPath string, body io.Reader, size int64, contentType string, overwrite bool) error {
	if !overwrite {
		_, err := s.client.StatObject(ctx, s.bucket, objectPath, minio.StatObjectOptions{})
		if err == nil {
			return fmt.Errorf("%w: %s", ErrExists, objectPath)
		}
		if minio.ToErrorResponse(err).Code != minio.NoSuchKey {
			return fmt.Errorf("stat object %s: %w", objectPath, err)
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := s.client.PutObject(ctx, s.bucket, objectPath, body, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("put object %s: %w", objectPath, err)
	}
	return nil
}

func (s *MinioStore) PublicURL(objectPath string) (string, error) {
	return publicURL(s.publicBase, s.client.EndpointURL(), s.bucket, objectPath)
}

// Ping checks that the bucket is reachable.
func (s *MinioStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("ping object storage: %w", err)
	}
	return nil
}

func publicURL(publicBase string, endpoint *url.URL, bucket, objectPath string) (string, error) {
	if objectPath == "" {
		return "", ErrPublicURL
	}
	if publicBase != "" {
		joined, err := url.JoinPath(publicBase, objectPath)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrPublicURL, err)
		}
		return joined, nil
	}
	if endpoint == nil || endpoint.Host == "" {
		return "", ErrPublicURL
	}
	joined, err := url.JoinPath(endpoint.String(), bucket, objectPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPublicURL, err)
	}
	return joined, nil
}
