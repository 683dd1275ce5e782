package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"speaker-split/internal/config"
)

// StorageService handles audio file storage operations
type StorageService interface {
	UploadFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, userID string) (*FileUploadResult, error)
	GeneratePresignedURL(ctx context.Context, operation string, userID string, filename string) (*PresignedURLResult, error)
	GetFileURL(key string) string
	DeleteFile(ctx context.Context, key string) error
}

// FileUploadResult contains the result of a file upload
type FileUploadResult struct {
	URL        string    `json:"url"`
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// PresignedURLResult contains a presigned URL for direct uploads
type PresignedURLResult struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expiresAt"`
	Key       string    `json:"key"`
}

// MinioStorageService implements StorageService using MinIO
type MinioStorageService struct {
	client   *minio.Client
	bucket   string
	endpoint string
	useSSL   bool
}

// NewMinioStorageService creates a new MinIO storage service and ensures the
// bucket exists.
func NewMinioStorageService(cfg config.MinioConfig) (StorageService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	service := &MinioStorageService{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: cfg.Endpoint,
		useSSL:   cfg.UseSSL,
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return service, nil
}

// UploadFile uploads an audio file to MinIO storage
func (s *MinioStorageService) UploadFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, userID string) (*FileUploadResult, error) {
	timestamp := time.Now().Unix()
	fileID := uuid.New().String()[:8]
	ext := filepath.Ext(header.Filename)
	key := fmt.Sprintf("audio/%s/%d-%s%s", userID, timestamp, fileID, ext)

	buf := bytes.NewBuffer(nil)
	size, err := io.Copy(buf, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, buf, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"original-name": header.Filename,
			"user-id":       userID,
			"uploaded-at":   time.Now().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file to MinIO: %w", err)
	}

	return &FileUploadResult{
		URL:        s.GetFileURL(key),
		Key:        key,
		Name:       header.Filename,
		Size:       size,
		UploadedAt: time.Now(),
	}, nil
}

// GeneratePresignedURL generates a presigned URL for direct uploads
func (s *MinioStorageService) GeneratePresignedURL(ctx context.Context, operation string, userID string, filename string) (*PresignedURLResult, error) {
	timestamp := time.Now().Unix()
	fileID := uuid.New().String()[:8]
	ext := filepath.Ext(filename)
	key := fmt.Sprintf("audio/%s/%d-%s%s", userID, timestamp, fileID, ext)

	expiration := time.Hour

	var presignedURL *url.URL
	var err error

	switch operation {
	case "PUT", "upload":
		presignedURL, err = s.client.PresignedPutObject(ctx, s.bucket, key, expiration)
	case "GET", "download":
		presignedURL, err = s.client.PresignedGetObject(ctx, s.bucket, key, expiration, url.Values{})
	default:
		return nil, fmt.Errorf("unsupported operation: %s", operation)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return &PresignedURLResult{
		URL:       presignedURL.String(),
		Method:    strings.ToUpper(operation),
		ExpiresAt: time.Now().Add(expiration),
		Key:       key,
	}, nil
}

// GetFileURL returns the URL for accessing a stored file
func (s *MinioStorageService) GetFileURL(key string) string {
	protocol := "http"
	if s.useSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, s.endpoint, s.bucket, key)
}

// DeleteFile deletes a file from storage
func (s *MinioStorageService) DeleteFile(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// MockStorageService implements StorageService with mock responses (for testing)
type MockStorageService struct{}

// NewMockStorageService creates a mock storage service
func NewMockStorageService() StorageService {
	return &MockStorageService{}
}

func (s *MockStorageService) UploadFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, userID string) (*FileUploadResult, error) {
	timestamp := time.Now().Unix()
	key := fmt.Sprintf("audio/%s/%d-%s", userID, timestamp, header.Filename)

	return &FileUploadResult{
		URL:        fmt.Sprintf("/storage/%s", key),
		Key:        key,
		Name:       header.Filename,
		Size:       header.Size,
		UploadedAt: time.Now(),
	}, nil
}

func (s *MockStorageService) GeneratePresignedURL(ctx context.Context, operation string, userID string, filename string) (*PresignedURLResult, error) {
	timestamp := time.Now().Unix()
	key := fmt.Sprintf("audio/%s/%d-%s", userID, timestamp, filename)

	return &PresignedURLResult{
		URL:       fmt.Sprintf("https://mock-storage.example.com/presigned/%s", key),
		Method:    strings.ToUpper(operation),
		ExpiresAt: time.Now().Add(time.Hour),
		Key:       key,
	}, nil
}

func (s *MockStorageService) GetFileURL(key string) string {
	return fmt.Sprintf("/storage/%s", key)
}

func (s *MockStorageService) DeleteFile(ctx context.Context, key string) error {
	return nil
}
