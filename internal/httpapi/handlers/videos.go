package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"manimrender/internal/httpkit"
	"manimrender/internal/pkg/errors"
	"manimrender/internal/ports"
)

// maxSignedURLTTL is the S3 presign ceiling.
const maxSignedURLTTL = 7 * 24 * time.Hour

// GetVideoURL returns a time-limited URL for an uploaded video.
func (h *Handler) GetVideoURL(w http.ResponseWriter, r *http.Request) error {
	key, err := videoKey(r)
	if err != nil {
		return err
	}

	ttl := h.ttl
	if raw := strings.TrimSpace(r.URL.Query().Get("ttl")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxSignedURLTTL {
			return errors.ValidationField("ttl", "ttl must be a positive duration of at most 168h")
		}
		ttl = d
	}

	out, err := h.sp.GetSignedURL(r.Context(), key, ttl)
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			return errors.NotFound("video", key)
		}
		return errors.Wrap(err, "videos.url", "failed to sign video url")
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"key":        key,
		"url":        out.URL,
		"expires_at": out.ExpiresAt,
	})
	return nil
}

// StreamVideo proxies the stored video through the API.
func (h *Handler) StreamVideo(w http.ResponseWriter, r *http.Request) error {
	key, err := videoKey(r)
	if err != nil {
		return err
	}

	rc, ct, size, err := h.sp.GetObject(r.Context(), key)
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			return errors.NotFound("video", key)
		}
		return errors.Wrap(err, "videos.content", "failed to read video")
	}
	defer rc.Close()

	if ct == "" {
		ct = "video/mp4"
	}
	w.Header().Set("Content-Type", ct)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(r.Context()).Warn("video stream interrupted", "key", key, "error", err.Error())
	}
	return nil
}

// videoKey reads ?key= and keeps callers inside the videos/ prefix.
func videoKey(r *http.Request) (string, error) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		return "", errors.ValidationField("key", "key is required")
	}
	if !strings.HasPrefix(key, "videos/") || strings.Contains(key, "..") {
		return "", errors.ValidationField("key", "key must start with videos/ and must not contain '..'")
	}
	return key, nil
}
