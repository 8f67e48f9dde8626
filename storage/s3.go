package storage

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"educenter_go/config"
	"educenter_go/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// StorageService stores uploaded documents in S3.
type StorageService struct {
	s3Client *s3.S3
	bucket   string
	region   string
	maxSize  int64
	allowed  []string
}

// NewStorageService creates a new storage service
func NewStorageService(cfg *config.Config) (*StorageService, error) {
	if cfg.S3BucketName == "" || cfg.AWSRegion == "" {
		return nil, fmt.Errorf("S3 bucket and region are required")
	}
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		bucket:   cfg.S3BucketName,
		region:   cfg.AWSRegion,
		maxSize:  cfg.MaxFileSize,
		allowed:  splitExtensions(cfg.AllowedExtensions),
	}, nil
}

// UploadFile checks the upload against the size and extension limits and
// stores it under folder/<userID>/<yyyy>/<mm>/<dd>/. It returns the public URL.
func (s *StorageService) UploadFile(file *multipart.FileHeader, folder string, userID uint) (string, error) {
	ext, err := CheckUpload(file.Filename, file.Size, s.maxSize, s.allowed)
	if err != nil {
		return "", err
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %v", err)
	}
	defer src.Close()

	body, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %v", err)
	}

	key := ObjectKey(folder, userID, ext, time.Now())
	_, err = s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(ContentType(ext)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %v", err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

// DeleteFile deletes a file from S3
func (s *StorageService) DeleteFile(fileURL string) error {
	key := KeyFromURL(fileURL)
	if key == "" {
		return fmt.Errorf("invalid file URL")
	}

	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// CheckUpload validates an upload and returns its lower-case extension.
// maxSize <= 0 and an empty allow list disable the respective check.
func CheckUpload(filename string, size, maxSize int64, allowed []string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return "", fmt.Errorf("file has no extension")
	}
	if maxSize > 0 && size > maxSize {
		return "", fmt.Errorf("file exceeds %d bytes", maxSize)
	}
	if len(allowed) > 0 && !utils.IsValidFileExtension(filename, allowed) {
		return "", fmt.Errorf("file type .%s is not allowed", ext)
	}
	return ext, nil
}

// ObjectKey builds a collision-free object key.
func ObjectKey(folder string, userID uint, ext string, now time.Time) string {
	return fmt.Sprintf("%s/%d/%d/%02d/%02d/%s.%s",
		folder, userID, now.Year(), now.Month(), now.Day(), uuid.NewString(), ext)
}

func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "pdf":
		return "application/pdf"
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// KeyFromURL extracts the key from https://bucket.s3.region.amazonaws.com/key.
func KeyFromURL(url string) string {
	parts := strings.SplitN(url, ".amazonaws.com/", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

func splitExtensions(list string) []string {
	var out []string
	for _, e := range strings.Split(list, ",") {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
