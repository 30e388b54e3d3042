// Package metrics defines the Prometheus collectors of the heatmap service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HeatmapRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heatmap_requests_total",
		Help: "Total number of heatmap requests",
	}, []string{"palette"})

	HeatmapCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heatmap_cache_hits_total",
		Help: "Requests served from a completed render",
	}, []string{"palette"})

	HeatmapCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heatmap_cache_misses_total",
		Help: "Requests that started a new render",
	}, []string{"palette"})

	HeatmapRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heatmap_refreshes_total",
		Help: "Requests that asked for a forced refresh",
	}, []string{"palette"})

	HeatmapCoalesced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heatmap_coalesced_total",
		Help: "Requests that attached to an in-flight render",
	}, []string{"palette"})

	HeatmapRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heatmap_renders_total",
		Help: "Completed render attempts by outcome",
	}, []string{"palette", "outcome"})

	HeatmapRenderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heatmap_render_duration_seconds",
		Help:    "Duration of heatmap renders, including grid load",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"palette"})

	GridLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heatmap_grid_loaded",
		Help: "1 once the temperature grid is resident",
	})

	LegendRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heatmap_legend_requests_total",
		Help: "Total number of legend requests",
	})

	LegendCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heatmap_legend_cache_hits_total",
		Help: "Legend requests served from cache",
	})
)
