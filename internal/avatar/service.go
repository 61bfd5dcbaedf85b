// Package avatar stores user avatar images in S3-compatible object
// storage.
package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrInvalidImage marks uploads rejected before reaching the object
// store: wrong content type, empty, or oversized. Anything else from
// Upload is a storage failure.
var ErrInvalidImage = errors.New("invalid avatar image")

var allowedContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// MaxUploadBytes caps avatar upload size.
const MaxUploadBytes = 2 << 20

// Service uploads avatars to a MinIO bucket and returns public URLs.
type Service struct {
	client   *minio.Client
	bucket   string
	endpoint string
	useSSL   bool
}

// New connects to the object store and ensures the avatar bucket
// exists.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check avatar bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create avatar bucket: %w", err)
		}
	}

	return &Service{
		client:   client,
		bucket:   bucket,
		endpoint: endpoint,
		useSSL:   useSSL,
	}, nil
}

// Upload stores an avatar image and returns its URL. The object name
// is derived from the user id so re-uploads replace the old avatar.
func (s *Service) Upload(ctx context.Context, userID string, data []byte, contentType string) (string, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported content type %q", ErrInvalidImage, contentType)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrInvalidImage, MaxUploadBytes)
	}

	objectName := "avatars/" + userID + ext
	_, err := s.client.PutObject(ctx, s.bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}

	return s.objectURL(objectName), nil
}

func (s *Service) objectURL(objectName string) string {
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, objectName)
}
