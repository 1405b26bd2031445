// Package storage wraps S3-compatible object storage for exported
// coaching artefacts such as the notification box.
package storage

import (
	"context"
	"time"
)

// PresignedURL contains the URL and metadata for a presigned download.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ObjectStore is the subset of object storage the coaching module needs.
type ObjectStore interface {
	// PutJSON writes body under key, replacing any previous object.
	PutJSON(ctx context.Context, bucket, key string, body []byte) error

	// GenerateDownloadURL creates a presigned URL for downloading an object.
	GenerateDownloadURL(ctx context.Context, bucket, key string) (*PresignedURL, error)

	// EnsureBucketExists creates the bucket if it doesn't exist.
	EnsureBucketExists(ctx context.Context, bucket string) error
}
