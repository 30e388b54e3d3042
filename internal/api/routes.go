// Package api provides HTTP handlers for the heatmap server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MarkKlep/planetary/internal/service"
	"github.com/MarkKlep/planetary/internal/telemetry"
)

// Legend defaults, in pixels.
const (
	defaultLegendWidth  = 512
	defaultLegendHeight = 32
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Service        *service.TileService
	Logger         *zap.Logger
	CORSOrigins    []string
	RequestTimeout time.Duration
	// Metrics serves /metrics. Defaults to the Prometheus default registry.
	Metrics http.Handler
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metricsHandler := cfg.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(telemetry.Middleware)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Render-Id"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/data", heatmapHandler(cfg.Service, cfg.RequestTimeout, logger))
		r.Get("/palettes", palettesHandler(cfg.Service))
		r.Get("/legend", legendHandler(cfg.Service, logger))
		r.Get("/status", statusHandler(cfg.Service))
	})

	return r
}

func heatmapHandler(svc *service.TileService, timeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		palette := q.Get("palette")
		refresh := q.Get("refresh") == "1"

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		tile, err := svc.GetHeatmap(ctx, palette, refresh)
		if err != nil {
			switch {
			case r.Context().Err() != nil:
				// Client went away; the shared render carries on without it.
				logger.Debug("heatmap request abandoned",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.Error(err),
				)
			case errors.Is(err, context.DeadlineExceeded):
				w.Header().Set("Retry-After", "5")
				http.Error(w, "Error: heatmap render still in progress", http.StatusServiceUnavailable)
			default:
				http.Error(w, "Error: "+err.Error(), http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", tile.ContentType)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Length", strconv.Itoa(len(tile.Data)))
		w.Header().Set("X-Render-Id", tile.RenderID)
		w.Write(tile.Data)
	}
}

func palettesHandler(svc *service.TileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Palettes())
	}
}

func legendHandler(svc *service.TileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		width, err := intParam(q.Get("width"), defaultLegendWidth)
		if err != nil {
			http.Error(w, "invalid width", http.StatusBadRequest)
			return
		}
		height, err := intParam(q.Get("height"), defaultLegendHeight)
		if err != nil {
			http.Error(w, "invalid height", http.StatusBadRequest)
			return
		}

		data, err := svc.GetLegend(q.Get("palette"), width, height, q.Get("refresh") == "1")
		if err != nil {
			logger.Error("failed to render legend", zap.Error(err))
			http.Error(w, "Error: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}

func statusHandler(svc *service.TileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, svc.Status())
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
