package server

import (
	"context"
	"net/http"
	"slices"
	"sort"

	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/clinic-assessments/internal/config"
	"github.com/gokatarajesh/clinic-assessments/internal/logging"
	httperrors "github.com/gokatarajesh/clinic-assessments/pkg/http/errors"
)

// Pinger is a dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Mount registers a group of routes.
type Mount func(mux *http.ServeMux)

// NewUpgrader builds the WebSocket upgrader, accepting the configured CORS origins.
func NewUpgrader(cfg config.CORS) *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser clients
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// NewHTTPServer wires base routes (health, metrics, dependency ping) plus the
// given mounts, behind CORS and request logging.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, deps map[string]Pinger, mounts ...Mount) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if name, err := pingDependencies(r.Context(), deps); err != nil {
			log := logging.FromContext(r.Context())
			log.Error().Err(err).Str("dependency", name).Msg("dependency ping failed")
			httperrors.RespondError(w, http.StatusBadGateway, httperrors.ErrCodeUpstreamError, name+" unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	for _, mount := range mounts {
		mount(mux)
	}

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: Handler(cfg.CORS, logger, mux),
	}
}

// Handler wraps h with CORS and request logging.
func Handler(cfg config.CORS, logger zerolog.Logger, h http.Handler) http.Handler {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Disposition", logging.RequestIDHeader},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
	return corsHandler(logging.Middleware(logger)(h))
}

// pingDependencies checks every dependency in name order and returns the first failure.
func pingDependencies(ctx context.Context, deps map[string]Pinger) (string, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := deps[name].Ping(ctx); err != nil {
			return name, err
		}
	}
	return "", nil
}
