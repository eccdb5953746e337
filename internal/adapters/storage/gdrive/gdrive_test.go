package gdrive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"manimrender/internal/ports"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	srv, err := drive.NewService(context.Background(),
		option.WithEndpoint(ts.URL+"/"),
		option.WithHTTPClient(ts.Client()),
	)
	if err != nil {
		t.Fatalf("drive.NewService: %v", err)
	}
	return NewClient(srv, "folder-1")
}

func TestPutObjectKeepsObjectKey(t *testing.T) {
	var body string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/files") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1AbCdriveFileId","webViewLink":"https://drive.google.com/file/d/1AbCdriveFileId/view","size":"3"}`))
	})

	out, err := c.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey:   "videos/abc123_ff.mp4",
		ContentType: "video/mp4",
		Reader:      strings.NewReader("mp4"),
		Size:        3,
	})
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if out.ObjectKey != "videos/abc123_ff.mp4" {
		t.Errorf("object key = %q, want the requested key", out.ObjectKey)
	}
	if out.URL != "https://drive.google.com/file/d/1AbCdriveFileId/view" || out.Size != 3 {
		t.Errorf("unexpected output %+v", out)
	}
	for _, want := range []string{`"name":"videos/abc123_ff.mp4"`, `"objectKey":"videos/abc123_ff.mp4"`, `"folder-1"`} {
		if !strings.Contains(body, want) {
			t.Errorf("upload metadata missing %s in %q", want, body)
		}
	}
}

func TestGetSignedURLResolvesObjectKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasSuffix(r.URL.Path, "/files") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query().Get("q")
		if !strings.Contains(q, "value='videos/abc123_ff.mp4'") || !strings.Contains(q, "'folder-1' in parents") {
			t.Errorf("unexpected query %q", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files":[{"id":"file-1","webViewLink":"https://drive.google.com/file/d/file-1/view"}]}`))
	})

	out, err := c.GetSignedURL(context.Background(), "videos/abc123_ff.mp4", time.Hour)
	if err != nil {
		t.Fatalf("GetSignedURL: %v", err)
	}
	if out.URL != "https://drive.google.com/file/d/file-1/view" {
		t.Errorf("unexpected url %s", out.URL)
	}
}

func TestGetObjectDownloadsResolvedFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/files"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"files":[{"id":"file-1"}]}`))
		case strings.HasSuffix(r.URL.Path, "/files/file-1") && r.URL.Query().Get("alt") == "media":
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("mp4"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	rc, ct, _, err := c.GetObject(context.Background(), "videos/abc123_ff.mp4")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "mp4" || ct != "video/mp4" {
		t.Errorf("got %q %q", b, ct)
	}
}

func TestUnknownKeyMapsToErrObjectNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files":[]}`))
	})

	if _, err := c.GetSignedURL(context.Background(), "videos/missing.mp4", time.Minute); !errors.Is(err, ports.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	if _, _, _, err := c.GetObject(context.Background(), "videos/missing.mp4"); !errors.Is(err, ports.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	if err := c.DeleteObject(context.Background(), "videos/missing.mp4"); err != nil {
		t.Errorf("deleting a missing file should succeed, got %v", err)
	}
}

func TestDeleteObjectPropagatesServerErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"files":[{"id":"file-1"}]}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
	})

	if err := c.DeleteObject(context.Background(), "videos/abc123_ff.mp4"); err == nil {
		t.Error("expected error")
	}
}

func TestEscapeQuery(t *testing.T) {
	if got := escapeQuery(`videos/it's\x`); got != `videos/it\'s\\x` {
		t.Errorf("escapeQuery = %s", got)
	}
}

func TestPutObjectRequiresKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := c.PutObject(context.Background(), ports.PutObjectInput{}); err == nil {
		t.Error("expected error for empty key")
	}
}
