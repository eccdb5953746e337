package ports

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by GetObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is the key the object can be fetched with. Every provider
	// returns the requested key.
	ObjectKey string
	Size      int64
	// URL is the public (or viewer) URL of the stored object.
	URL string
}

type SignedURLOutput struct {
	URL       string
	ExpiresAt time.Time
}

// StorageProvider is implemented by the s3, localfs and gdrive adapters.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error
	GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (SignedURLOutput, error)
}
