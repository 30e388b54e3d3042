// Package service provides business logic for the heatmap server.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/MarkKlep/planetary/internal/cache"
	"github.com/MarkKlep/planetary/internal/grid"
	"github.com/MarkKlep/planetary/internal/metrics"
	"github.com/MarkKlep/planetary/internal/render"
	"github.com/MarkKlep/planetary/pkg/colormap"
)

// TileServiceConfig contains tile service configuration.
type TileServiceConfig struct {
	Store    *grid.Store
	Renderer *render.TileRenderer
	Cache    *cache.Manager
	Logger   *zap.Logger
}

// TileService serves heatmaps and their legends.
type TileService struct {
	store    *grid.Store
	renderer *render.TileRenderer
	renders  *cache.RenderCache
	legends  *cache.Manager
	logger   *zap.Logger
}

// NewTileService creates a new tile service.
func NewTileService(cfg TileServiceConfig) (*TileService, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &TileService{
		store:    cfg.Store,
		renderer: cfg.Renderer,
		legends:  cfg.Cache,
		logger:   logger,
	}

	renders, err := cache.NewRenderCache(s.renderHeatmap, len(colormap.Palettes()), logger)
	if err != nil {
		return nil, err
	}
	s.renders = renders
	return s, nil
}

func (s *TileService) renderHeatmap(ctx context.Context, p colormap.Palette) (*render.Tile, error) {
	g, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load grid: %w", err)
	}
	metrics.GridLoaded.Set(1)

	tile, err := s.renderer.Render(ctx, g, p)
	if err != nil {
		return nil, fmt.Errorf("failed to render heatmap: %w", err)
	}
	return tile, nil
}

// ResolvePalette maps a request parameter to a palette. Empty or unknown
// names select viridis.
func (s *TileService) ResolvePalette(name string) colormap.Palette {
	return colormap.ParsePalette(name)
}

// GetHeatmap returns the heatmap for the named palette. With refresh set a
// completed tile is re-rendered; concurrent callers share one render.
func (s *TileService) GetHeatmap(ctx context.Context, palette string, refresh bool) (*render.Tile, error) {
	p := s.ResolvePalette(palette)
	metrics.HeatmapRequests.WithLabelValues(p.String()).Inc()
	return s.renders.Get(ctx, cache.RenderConfig{Palette: p, ForceRefresh: refresh})
}

// GetLegend returns a PNG color bar for the named palette. With refresh set
// the cached bar is evicted and drawn again.
func (s *TileService) GetLegend(palette string, width, height int, refresh bool) ([]byte, error) {
	p := s.ResolvePalette(palette)
	width = render.ClampLegendSize(width)
	height = render.ClampLegendSize(height)
	metrics.LegendRequests.Inc()

	key := cache.LegendKey(p, width, height)
	if refresh {
		if err := s.legends.DeleteLegend(key); err != nil {
			s.logger.Warn("legend eviction failed", zap.String("key", key), zap.Error(err))
		}
	} else if data, ok := s.legends.GetLegend(key); ok {
		metrics.LegendCacheHits.Inc()
		return data, nil
	}

	data, err := render.RenderLegend(p, width, height)
	if err != nil {
		return nil, err
	}
	if err := s.legends.SetLegend(key, data); err != nil {
		s.logger.Warn("legend not cached",
			zap.String("key", key),
			zap.String("size", humanize.Bytes(uint64(len(data)))),
			zap.Error(err),
		)
	}
	return data, nil
}

// BandInfo is the JSON form of a temperature band. Open ends are null.
type BandInfo struct {
	Name string   `json:"name"`
	Hex  string   `json:"hex"`
	MinC *float64 `json:"min_c"`
	MaxC *float64 `json:"max_c"`
}

// PaletteCatalog lists the palettes a client may request.
type PaletteCatalog struct {
	Default  colormap.Palette   `json:"default"`
	Palettes []colormap.Palette `json:"palettes"`
	MinC     float64            `json:"min_c"`
	MaxC     float64            `json:"max_c"`
	Bands    []BandInfo         `json:"bands"`
}

// Palettes returns the palette catalogue.
func (s *TileService) Palettes() PaletteCatalog {
	bands := make([]BandInfo, 0, len(colormap.Bands))
	for _, b := range colormap.Bands {
		bands = append(bands, BandInfo{
			Name: b.Name,
			Hex:  b.Hex,
			MinC: finite(b.MinC),
			MaxC: finite(b.MaxC),
		})
	}
	return PaletteCatalog{
		Default:  colormap.Default,
		Palettes: colormap.Palettes(),
		MinC:     colormap.MinCelsius,
		MaxC:     colormap.MaxCelsius,
		Bands:    bands,
	}
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// Dimensions is a width and height pair.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Status describes the grid and the per-palette cache state.
type Status struct {
	GridLoaded bool                   `json:"grid_loaded"`
	Grid       Dimensions             `json:"grid"`
	Output     Dimensions             `json:"output"`
	Palettes   []cache.EntryStatus    `json:"palettes"`
	Legends    map[string]interface{} `json:"legend_cache"`
}

// Status returns a snapshot of the service state.
func (s *TileService) Status() Status {
	gw, gh := s.store.Dimensions()
	ow, oh := s.renderer.Dimensions()
	return Status{
		GridLoaded: s.store.Loaded(),
		Grid:       Dimensions{Width: gw, Height: gh},
		Output:     Dimensions{Width: ow, Height: oh},
		Palettes:   s.renders.Status(),
		Legends:    s.legends.Stats(),
	}
}

// Warm renders the given palettes one after another so the first client
// request for each is served from cache.
func (s *TileService) Warm(ctx context.Context, palettes []colormap.Palette) error {
	var errs []error
	for _, p := range palettes {
		if err := ctx.Err(); err != nil {
			return err
		}
		tile, err := s.renders.Get(ctx, cache.RenderConfig{Palette: p})
		if err != nil {
			s.logger.Warn("warm-up render failed", zap.String("palette", p.String()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		s.logger.Info("warm-up render done",
			zap.String("palette", p.String()),
			zap.String("render_id", tile.RenderID),
		)
	}
	return errors.Join(errs...)
}

// Close releases cache resources.
func (s *TileService) Close() error {
	return s.legends.Close()
}
