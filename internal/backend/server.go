// Package backend is a mock of the mobile tracking API. It answers install
// registrations and records conversion events so the SDK can be exercised end
// to end without the real service.
package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mobiletracking/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Register(ctx context.Context, payload map[string]any) (types.RegisterResponse, error)
	RecordEvent(ctx context.Context, payload map[string]any) (types.EventResponse, error)
	Events() []types.EventRecord
	Ready() bool
}

func NewMux(svc Service, opts Options) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORS.AllowedOrigins,
			AllowedMethods: opts.CORS.AllowedMethods,
			AllowedHeaders: opts.CORS.AllowedHeaders,
			MaxAge:         300,
		}))
	}
	r.Use(MetricsMiddleware)
	if opts.Logger != nil {
		r.Use(requestLogger(*opts.Logger, parseLevel(opts.LogLevel)))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	maxBody := opts.maxBody()

	r.Post("/register", func(w http.ResponseWriter, r *http.Request) {
		payload, ok := decodeJSON(w, r, maxBody)
		if !ok {
			return
		}
		resp, err := svc.Register(r.Context(), payload)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Post("/event", func(w http.ResponseWriter, r *http.Request) {
		payload, ok := decodeJSON(w, r, maxBody)
		if !ok {
			return
		}
		resp, err := svc.RecordEvent(r.Context(), payload)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.EventsResponse{Events: svc.Events()})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !svc.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// decodeJSON reads a JSON object body, writing an error response and
// returning false when the request is unacceptable.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBody int64) (map[string]any, bool) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload == nil {
		// Oversized bodies also land here; report them as plain bad requests.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return payload, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	if he, ok := err.(HTTPError); ok {
		writeJSONError(w, he.StatusCode(), he.Error())
		return
	}
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
