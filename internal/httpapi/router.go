package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"manimrender/internal/httpapi/handlers"
	"manimrender/internal/httpkit"
	"manimrender/internal/pkg/errors"
	"manimrender/internal/pkg/middleware"
)

type Deps struct {
	Handler        *handlers.Handler
	CORSOrigins    []string
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	h := d.Handler
	log := h.Log()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))
	r.Use(middleware.Timeout(d.RequestTimeout))

	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpkit.WriteErr(w, http.StatusNotFound, errors.CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpkit.WriteErr(w, http.StatusMethodNotAllowed, errors.CodeValidation, "method not allowed", nil)
	})

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- RENDER ----
	r.Post("/render", wrap(h.PostRender))

	// ---- JOBS (async, optional) ----
	if h.AsyncEnabled() {
		r.Post("/render/jobs", wrap(h.PostRenderJob))
		r.Get("/render/jobs", wrap(h.ListRenderJobs))
		r.Get("/render/jobs/{jobId}", wrap(h.GetRenderJob))
	}

	// ---- VIDEOS ----
	r.Get("/videos/url", wrap(h.GetVideoURL))
	r.Get("/videos/content", wrap(h.StreamVideo))

	return r
}
