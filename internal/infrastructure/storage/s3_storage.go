// Package storage holds the object stores that receive exported stock reports.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	appinv "github.com/erp/stockengine/internal/application/inventory"
	infraconfig "github.com/erp/stockengine/internal/infrastructure/config"
	"go.uber.org/zap"
)

var errKeyRequired = errors.New("storage key is required")

// S3ObjectStorage stores report files in any S3-compatible bucket
// (AWS S3, MinIO, RustFS)
type S3ObjectStorage struct {
	client            *s3.Client
	presignClient     *s3.PresignClient
	bucket            string
	presignExpiration time.Duration
	logger            *zap.Logger
}

// S3ObjectStorageOption is a functional option for configuring S3ObjectStorage
type S3ObjectStorageOption func(*S3ObjectStorage)

// WithLogger sets a custom logger for S3ObjectStorage
func WithLogger(logger *zap.Logger) S3ObjectStorageOption {
	return func(s *S3ObjectStorage) {
		s.logger = logger
	}
}

// WithPresignExpiration sets the link lifetime used when callers pass none
func WithPresignExpiration(d time.Duration) S3ObjectStorageOption {
	return func(s *S3ObjectStorage) {
		s.presignExpiration = d
	}
}

// NewS3ObjectStorage creates a new S3ObjectStorage from configuration
func NewS3ObjectStorage(cfg *infraconfig.StorageConfig, opts ...S3ObjectStorageOption) (*S3ObjectStorage, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	storage := &S3ObjectStorage{
		client:            client,
		presignClient:     s3.NewPresignClient(client),
		bucket:            cfg.Bucket,
		presignExpiration: cfg.PresignExpiration,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(storage)
	}
	if storage.presignExpiration == 0 {
		storage.presignExpiration = 15 * time.Minute
	}
	return storage, nil
}

func normalizeEndpoint(endpoint string, useSSL bool) string {
	if endpoint == "" {
		return "http://localhost:9000"
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *S3ObjectStorage) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating storage bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Upload writes data under key
func (s *S3ObjectStorage) Upload(ctx context.Context, key, contentType string, data []byte) error {
	if key == "" {
		return errKeyRequired
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	s.logger.Debug("Uploaded object", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// PresignGet returns a time-limited download link for key. A non-positive
// ttl uses the configured expiration.
func (s *S3ObjectStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", errKeyRequired
	}
	if ttl <= 0 {
		ttl = s.presignExpiration
	}
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}
	return req.URL, nil
}

// Bucket returns the bucket name
func (s *S3ObjectStorage) Bucket() string {
	return s.bucket
}

var _ appinv.ObjectStorage = (*S3ObjectStorage)(nil)
