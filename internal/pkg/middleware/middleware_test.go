package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"manimrender/internal/httpkit"
	"manimrender/internal/pkg/errors"
	"manimrender/internal/pkg/logger"
)

func newTestLogger(buf *bytes.Buffer, level string) *logger.Logger {
	return logger.New(logger.Config{
		Level:  level,
		Format: "json",
		Output: buf,
	})
}

func TestRequestID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, _ := r.Context().Value(logger.RequestIDKey).(string); id == "" {
			t.Error("expected request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates new request ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		if reqID := rec.Header().Get(RequestIDHeader); len(reqID) != 32 {
			t.Errorf("expected 32-char request ID, got %q", reqID)
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set(RequestIDHeader, "existing-id-123")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if reqID := rec.Header().Get(RequestIDHeader); reqID != "existing-id-123" {
			t.Errorf("expected preserved request ID, got %s", reqID)
		}
	})
}

func TestLogging(t *testing.T) {
	var logBuf bytes.Buffer
	log := newTestLogger(&logBuf, "info")

	handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/render", nil))

	logOutput := logBuf.String()
	for _, want := range []string{"request completed", "POST", "/render", `"status":200`, `"size":5`, "duration_ms"} {
		if !strings.Contains(logOutput, want) {
			t.Errorf("expected %q in log, got: %s", want, logOutput)
		}
	}
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		expectedLevel string
	}{
		{"2xx logs info", 200, "INFO"},
		{"4xx logs warn", 422, "WARN"},
		{"5xx logs error", 502, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuf bytes.Buffer
			handler := Logging(newTestLogger(&logBuf, "debug"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))

			if !strings.Contains(logBuf.String(), `"level":"`+tt.expectedLevel+`"`) {
				t.Errorf("expected log level %s, got: %s", tt.expectedLevel, logBuf.String())
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	var logBuf bytes.Buffer
	handler := Recovery(newTestLogger(&logBuf, "info"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/render", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}

	var body httpkit.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body.Success || body.Code != "INTERNAL_ERROR" || body.Error == "" {
		t.Errorf("unexpected body %+v", body)
	}

	if !strings.Contains(logBuf.String(), "panic recovered") || !strings.Contains(logBuf.String(), "test panic") {
		t.Errorf("expected panic to be logged, got: %s", logBuf.String())
	}
}

func TestTimeoutSetsDeadline(t *testing.T) {
	handler := Timeout(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); !ok {
			t.Error("expected request context to carry a deadline")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	unbounded := Timeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("zero timeout should not add a deadline")
		}
	}))
	unbounded.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status and size", func(t *testing.T) {
		rw := wrapResponseWriter(httptest.NewRecorder())
		rw.WriteHeader(http.StatusCreated)
		_, _ = rw.Write([]byte("hello world"))

		if rw.status != http.StatusCreated || rw.size != 11 {
			t.Errorf("expected 201/11, got %d/%d", rw.status, rw.size)
		}
	})

	t.Run("only writes header once", func(t *testing.T) {
		rw := wrapResponseWriter(httptest.NewRecorder())
		rw.WriteHeader(http.StatusCreated)
		rw.WriteHeader(http.StatusOK)

		if rw.status != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rw.status)
		}
	})
}

func TestWrapHandler(t *testing.T) {
	var logBuf bytes.Buffer
	log := newTestLogger(&logBuf, "info")

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", errors.NotFound("render job", "job_1"), 404, "NOT_FOUND"},
		{"render failed", errors.New(errors.CodeRenderFailed, "scene not found"), 422, "RENDER_FAILED"},
		{"upload failed", errors.New(errors.CodeUploadFailed, "bucket denied"), 502, "UPLOAD_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
				return tt.err
			})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			var body httpkit.ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("expected JSON body: %v", err)
			}
			if body.Code != tt.code || body.Success {
				t.Errorf("unexpected body %+v", body)
			}
		})
	}

	t.Run("success passes through", func(t *testing.T) {
		handler := WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})
}

func TestGenerateRequestID(t *testing.T) {
	id1 := generateRequestID()
	id2 := generateRequestID()

	if id1 == id2 {
		t.Error("expected unique request IDs")
	}
	if len(id1) != 32 {
		t.Errorf("expected length 32, got %d", len(id1))
	}
}
