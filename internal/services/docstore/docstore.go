// Package docstore stores uploaded document files in S3 and hands out
// presigned URLs so clients never touch the bucket directly. Object keys are
// "documents/{id}/{filename}".
package docstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "invoice-audit-engine/internal/config"
	"invoice-audit-engine/internal/utils"
)

const defaultExpiryMinutes = 15

// Service handles S3 operations for document files.
type Service struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucketName string
}

// PresignedURLResult contains the presigned URL details.
type PresignedURLResult struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewService creates a new document store.
func NewService(ctx context.Context, appCfg *appconfig.Config) (*Service, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &Service{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucketName: appCfg.S3Bucket,
	}, nil
}

// Key builds the object key for a stored document file.
func Key(documentID, fileName string) string {
	return fmt.Sprintf("documents/%s/%s", documentID, fileName)
}

// Upload stores a document file.
func (s *Service) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		utils.GetLogger().Error("failed to upload document",
			utils.String("bucket", s.bucketName),
			utils.String("key", key),
			utils.Error(err),
		)
		return fmt.Errorf("failed to upload document: %w", err)
	}

	utils.GetLogger().Info("document uploaded",
		utils.String("bucket", s.bucketName),
		utils.String("key", key),
		utils.Int("size", len(data)),
	)
	return nil
}

// Download fetches a stored document file.
func (s *Service) Download(ctx context.Context, key string) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}

	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		utils.GetLogger().Error("failed to download document",
			utils.String("bucket", s.bucketName),
			utils.String("key", key),
			utils.Error(err),
		)
		return nil, fmt.Errorf("failed to download document: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document content: %w", err)
	}
	return data, nil
}

// Delete removes a stored document file.
func (s *Service) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}

	if _, err := s.client.DeleteObject(ctx, input); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	utils.GetLogger().Info("document deleted",
		utils.String("bucket", s.bucketName),
		utils.String("key", key),
	)
	return nil
}

// PresignUpload creates a presigned URL for clients to upload a document.
func (s *Service) PresignUpload(ctx context.Context, key, contentType string, expiryMinutes int) (*PresignedURLResult, error) {
	if expiryMinutes <= 0 {
		expiryMinutes = defaultExpiryMinutes
	}
	expiry := time.Duration(expiryMinutes) * time.Minute

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}

	presignedReq, err := s.presigner.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		utils.GetLogger().Error("failed to generate presigned upload URL",
			utils.String("bucket", s.bucketName),
			utils.String("key", key),
			utils.Error(err),
		)
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return &PresignedURLResult{
		URL:       presignedReq.URL,
		Key:       key,
		ExpiresAt: time.Now().Add(expiry),
	}, nil
}

// PresignDownload creates a presigned URL for clients to fetch a document.
func (s *Service) PresignDownload(ctx context.Context, key string, expiryMinutes int) (*PresignedURLResult, error) {
	if expiryMinutes <= 0 {
		expiryMinutes = defaultExpiryMinutes
	}
	expiry := time.Duration(expiryMinutes) * time.Minute

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}

	presignedReq, err := s.presigner.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned download URL: %w", err)
	}

	return &PresignedURLResult{
		URL:       presignedReq.URL,
		Key:       key,
		ExpiresAt: time.Now().Add(expiry),
	}, nil
}
