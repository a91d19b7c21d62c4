package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/config"
	"github.com/prn-tf/bodleian-archive/internal/pkg/crypto"
)

// S3Backend stores document content in an S3-compatible object store.
// The location-relative document path becomes the object key.
type S3Backend struct {
	client *s3.Client
	bucket string
	logger zerolog.Logger
}

// NewS3Backend creates an S3 backend from the given configuration.
func NewS3Backend(ctx context.Context, cfg config.S3StorageConfig, logger zerolog.Logger) (*S3Backend, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Backend{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("storage", "s3").Logger(),
	}, nil
}

// Store uploads content to the object key given by path.
func (b *S3Backend) Store(ctx context.Context, path string, reader io.Reader) (string, int64, error) {
	hashReader := crypto.NewHashReader(reader)
	content, err := io.ReadAll(hashReader)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read content: %w", err)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(hashReader.Size()),
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload content: %w", err)
	}

	b.logger.Debug().
		Str("path", path).
		Int64("size", hashReader.Size()).
		Msg("content uploaded")

	return hashReader.SHA256(), hashReader.Size(), nil
}

// Retrieve opens the object at the given path.
func (b *S3Backend) Retrieve(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to download content: %w", err)
	}
	return out.Body, nil
}

// Delete removes the object at the given path.
func (b *S3Backend) Delete(ctx context.Context, path string) error {
	exists, err := b.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		return ErrContentNotFound
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

// Exists checks whether an object is stored at the given path.
func (b *S3Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check content existence: %w", err)
	}
	return true, nil
}

// Ensure S3Backend implements Backend.
var _ Backend = (*S3Backend)(nil)
