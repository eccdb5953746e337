package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"manimrender/internal/ports"
)

// LocalFS stores objects under a root directory. URLs point back at the
// API's content endpoint (or any base the operator configures).
type LocalFS struct {
	root       string
	publicBase string
}

func New(root, publicBaseURL string) *LocalFS {
	return &LocalFS{root: root, publicBase: publicBaseURL}
}

func (l *LocalFS) Provider() string { return "localfs" }

// publicURL appends objectKey to the base. A base ending in "/" or "="
// (a query such as "?key=") is used as is; any other base gets a "/".
func (l *LocalFS) publicURL(objectKey string) string {
	if l.publicBase == "" || strings.HasSuffix(l.publicBase, "/") || strings.HasSuffix(l.publicBase, "=") {
		return l.publicBase + objectKey
	}
	return l.publicBase + "/" + objectKey
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.path(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, err
	}

	// Write beside the target and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	n, copyErr := io.Copy(tmp, in.Reader)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		return ports.PutObjectOutput{}, errors.Join(copyErr, closeErr)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return ports.PutObjectOutput{}, err
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n, URL: l.publicURL(in.ObjectKey)}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.path(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", 0, ports.ErrObjectNotFound
		}
		return nil, "", 0, err
	}

	if st, statErr := f.Stat(); statErr == nil {
		size = st.Size()
	}
	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return f, contentType, size, nil
}

func (l *LocalFS) DeleteObject(ctx context.Context, objectKey string) error {
	p, err := l.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// GetSignedURL has nothing to sign locally; it returns the public URL.
func (l *LocalFS) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	if _, err := l.path(objectKey); err != nil {
		return ports.SignedURLOutput{}, err
	}
	return ports.SignedURLOutput{URL: l.publicURL(objectKey), ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}

// path resolves objectKey under root, refusing keys that escape it.
func (l *LocalFS) path(objectKey string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("object_key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(objectKey))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object_key escapes storage root: %s", objectKey)
	}
	return filepath.Join(l.root, clean), nil
}
