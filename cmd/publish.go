package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/scieloorg/opac-tabs/cmd/compressors"
)

// Error definitions
var (
	ErrS3ClientNotInitialized = errors.New("S3 client not initialized")
)

// multipartThreshold is the size above which uploads go through s3manager
const multipartThreshold = 100 * 1024 * 1024

// PublishResult describes one publish attempt
type PublishResult struct {
	Key      string
	Uploaded bool
	Skipped  bool
	Size     int64
}

// Publisher copies finished archives to S3-compatible object storage
type Publisher struct {
	config   S3Config
	dryRun   bool
	client   s3iface.S3API
	uploader *s3manager.Uploader
	template *PathTemplate
	logger   *slog.Logger
}

// NewPublisher creates a publisher backed by an S3 session
func NewPublisher(config S3Config, dryRun bool, logger *slog.Logger) (*Publisher, error) {
	awsConfig := &aws.Config{
		Credentials:      credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(config.Endpoint != ""),
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}
	if config.Region != "" {
		awsConfig.Region = aws.String(config.Region)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	return newPublisherWithClient(config, dryRun, s3.New(sess), logger), nil
}

func newPublisherWithClient(config S3Config, dryRun bool, client s3iface.S3API, logger *slog.Logger) *Publisher {
	return &Publisher{
		config:   config,
		dryRun:   dryRun,
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		template: NewPathTemplate(config.PathTemplate),
		logger:   logger,
	}
}

// Publish uploads the archive at path under the key generated for timestamp.
// An object with the same key and size is left alone.
func (p *Publisher) Publish(ctx context.Context, path string, timestamp time.Time) (PublishResult, error) {
	key := p.template.Generate(filepath.Base(path), timestamp)
	result := PublishResult{Key: key}

	if p.client == nil {
		return result, ErrS3ClientNotInitialized
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("failed to read %s: %w", path, err)
	}
	result.Size = int64(len(data))

	if p.dryRun {
		p.logger.Info(fmt.Sprintf("🔍 Dry run: would upload %s to s3://%s/%s", filepath.Base(path), p.config.Bucket, key))
		result.Skipped = true
		return result, nil
	}

	if exists, size := p.objectExists(ctx, key); exists && size == result.Size {
		p.logger.Info(fmt.Sprintf("⏭️  s3://%s/%s already exists with the same size", p.config.Bucket, key))
		result.Skipped = true
		return result, nil
	}

	p.logger.Debug(fmt.Sprintf("  ☁️  Uploading to s3://%s/%s (size: %d bytes)", p.config.Bucket, key, result.Size))
	if err := p.upload(ctx, key, data); err != nil {
		return result, fmt.Errorf("failed to upload s3://%s/%s: %w", p.config.Bucket, key, err)
	}

	result.Uploaded = true
	return result, nil
}

func (p *Publisher) objectExists(ctx context.Context, key string) (bool, int64) {
	head, err := p.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, 0
	}
	return true, aws.Int64Value(head.ContentLength)
}

func (p *Publisher) upload(ctx context.Context, key string, data []byte) error {
	if len(data) > multipartThreshold {
		_, err := p.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket:      aws.String(p.config.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(compressors.ZipMIMEType),
		})
		return err
	}

	_, err := p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(compressors.ZipMIMEType),
	})
	return err
}
