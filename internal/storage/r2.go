// Package storage provides the S3-compatible object store client used for
// media payloads. It targets Cloudflare R2 but works against any S3 API.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/spotter-app/backend/internal/media"
	"go.uber.org/zap"
)

// publicPathPrefix is where the API serves stored objects from.
const publicPathPrefix = "/v1/media/"

// ClientConfig carries the bucket coordinates and credentials.
type ClientConfig struct {
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Logger          *zap.Logger
}

// Client stores and retrieves media payloads in an S3-compatible bucket.
type Client struct {
	s3Client *s3.Client
	bucket   string
	logger   *zap.Logger
}

// NewClient builds the bucket client. R2 ignores the region, so "auto" is
// used as the SDK requires one.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("storage: bucket name required")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("storage: endpoint required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	endpoint := cfg.Endpoint
	s3Client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		options.BaseEndpoint = aws.String(endpoint)
	})

	return &Client{s3Client: s3Client, bucket: cfg.Bucket, logger: logger}, nil
}

// Upload stores the payload under a fresh random key and returns the key
// together with the public path the API serves it from.
func (c *Client) Upload(ctx context.Context, data []byte, mimeType string) (media.StoredObject, error) {
	key := uuid.NewString() + extensionForMime(mimeType)
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return media.StoredObject{}, fmt.Errorf("storage: put object: %w", err)
	}

	c.logger.Debug("object stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return media.StoredObject{Key: key, URL: publicPathPrefix + key}, nil
}

// Delete removes the object from the bucket.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: delete object: %w", err)
	}
	return nil
}

// Open streams the object body and reports its content type.
func (c *Client) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	output, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("storage: get object: %w", err)
	}
	return output.Body, aws.ToString(output.ContentType), nil
}

func extensionForMime(mimeType string) string {
	// Prefer the conventional extensions for the common cases; the mime
	// package ordering is platform dependent.
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "video/mp4":
		return ".mp4"
	}
	extensions, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(extensions) == 0 {
		return ""
	}
	return extensions[0]
}
