// Package server exposes the query API over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/tigerroll/bikeshare/internal/metrics"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RouterConfig configures NewRouter.
type RouterConfig struct {
	AllowedOrigins []string
	// MetricsHandler is mounted on /metrics when non-nil.
	MetricsHandler http.Handler
	Recorder       metrics.MetricRecorder
}

// NewRouter builds the chi router of the query API.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe(recorder))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.HealthCheck)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/options", h.GetOptions)
		r.Get("/query", h.GetQuery)
		r.Post("/dataset/reload", h.PostReload)
	})
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}
	return r
}

// requestID takes the caller's X-Request-ID or assigns a UUID, and exposes it
// through middleware.GetReqID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observe logs each request and records it by route pattern.
func observe(recorder metrics.MetricRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			recorder.RecordHTTPRequest(r.Context(), route, r.Method, status, elapsed)
			logger.Debugf("%s %s -> %d (%s, %d bytes, request %s)",
				r.Method, r.URL.RequestURI(), status, elapsed, ww.BytesWritten(), middleware.GetReqID(r.Context()))
		})
	}
}
