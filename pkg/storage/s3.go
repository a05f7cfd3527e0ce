/**
 * @description
 * This package provides the durable object-storage uploader used to archive
 * boleto PDFs. It wraps the AWS SDK v2 S3 client configured with static
 * credentials and an optional custom endpoint (e.g. minio), and returns a
 * stable retrieval URL for each uploaded object.
 *
 * @dependencies
 * - github.com/aws/aws-sdk-go-v2 (config, credentials, service/s3): S3 access.
 */
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader is the interface consumed by the archive pipeline.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Config carries the object-store connection settings.
type Config struct {
	BaseEndpoint string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
}

// S3Uploader stores objects in a single bucket and builds path-style URLs.
type S3Uploader struct {
	client       *s3.Client
	bucket       string
	baseEndpoint string
}

// NewS3Uploader builds an uploader from static credentials. A non-empty
// BaseEndpoint points the client at an S3-compatible store such as minio.
func NewS3Uploader(ctx context.Context, cfg Config) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load object-store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{
		client:       client,
		bucket:       cfg.Bucket,
		baseEndpoint: strings.TrimRight(cfg.BaseEndpoint, "/"),
	}, nil
}

// Upload writes the object and returns its stable retrieval URL.
func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store object %s: %w", key, err)
	}

	if u.baseEndpoint != "" {
		return fmt.Sprintf("%s/%s/%s", u.baseEndpoint, u.bucket, key), nil
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", u.bucket, key), nil
}

// ReceiptKey builds the object key for an archived boleto PDF, partitioned by
// issue date so buckets stay listable.
func ReceiptKey(nsuCode string, issuedAt time.Time) string {
	return fmt.Sprintf("boletos/%d/%02d/%02d/%s.pdf", issuedAt.Year(), issuedAt.Month(), issuedAt.Day(), nsuCode)
}
