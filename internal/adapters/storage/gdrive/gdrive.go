package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"manimrender/internal/ports"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// objectKeyProperty is the appProperties entry that maps an object key to
// its Drive file.
const objectKeyProperty = "objectKey"

// Client implements ports.StorageProvider backed by Google Drive.
// Uploads are named after the object key and tagged with it in
// appProperties; reads and deletes resolve the key to the Drive file id.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	file := &drive.File{
		Name:          in.ObjectKey,
		MimeType:      in.ContentType,
		AppProperties: map[string]string{objectKeyProperty: in.ObjectKey},
	}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).Fields("id", "webViewLink", "size")
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload %s: %w", in.ObjectKey, err)
	}

	size := in.Size
	if created.Size > 0 {
		size = created.Size
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: size, URL: created.WebViewLink}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	f, err := c.lookup(ctx, objectKey)
	if err != nil {
		return nil, "", 0, err
	}

	resp, err := c.srv.Files.Get(f.Id).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		if isNotFound(err) {
			return nil, "", 0, ports.ErrObjectNotFound
		}
		return nil, "", 0, fmt.Errorf("gdrive download %s: %w", objectKey, err)
	}

	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	f, err := c.lookup(ctx, objectKey)
	if errors.Is(err, ports.ErrObjectNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = c.srv.Files.Delete(f.Id).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("gdrive delete %s: %w", objectKey, err)
	}
	return nil
}

// GetSignedURL returns the file's web view link. Drive has no expiring
// links, so ExpiresAt is informational only.
func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	f, err := c.lookup(ctx, objectKey)
	if err != nil {
		return ports.SignedURLOutput{}, err
	}
	return ports.SignedURLOutput{URL: f.WebViewLink, ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}

// lookup finds the newest live file tagged with objectKey.
func (c *Client) lookup(ctx context.Context, objectKey string) (*drive.File, error) {
	q := fmt.Sprintf("appProperties has { key='%s' and value='%s' } and trashed = false",
		objectKeyProperty, escapeQuery(objectKey))
	if c.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(c.folderID))
	}

	list, err := c.srv.Files.List().
		Q(q).
		Fields("files(id, webViewLink)").
		OrderBy("createdTime desc").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return nil, ports.ErrObjectNotFound
		}
		return nil, fmt.Errorf("gdrive lookup %s: %w", objectKey, err)
	}
	if len(list.Files) == 0 {
		return nil, ports.ErrObjectNotFound
	}
	return list.Files[0], nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
