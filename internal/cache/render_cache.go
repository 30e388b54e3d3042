package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/MarkKlep/planetary/internal/metrics"
	"github.com/MarkKlep/planetary/internal/render"
	"github.com/MarkKlep/planetary/pkg/colormap"
)

const tracerName = "github.com/MarkKlep/planetary/internal/cache"

// RenderConfig selects a heatmap. Only Palette is part of the cache key.
type RenderConfig struct {
	Palette      colormap.Palette
	ForceRefresh bool
}

// Key returns the cache key of the configuration.
func (c RenderConfig) Key() colormap.Palette {
	return c.Palette
}

// RenderFunc produces a fresh tile for a palette.
type RenderFunc func(ctx context.Context, p colormap.Palette) (*render.Tile, error)

// State is the lifecycle state of one cache key.
type State string

const (
	StateEmpty   State = "empty"
	StatePending State = "pending"
	StateReady   State = "ready"
)

// EntryStatus describes one key for status reporting.
type EntryStatus struct {
	Palette    colormap.Palette `json:"palette"`
	State      State            `json:"state"`
	RenderID   string           `json:"render_id,omitempty"`
	Size       int              `json:"size,omitempty"`
	RenderedAt *time.Time       `json:"rendered_at,omitempty"`
}

// call is one in-flight render attempt shared by every caller that arrives
// while it runs.
type call struct {
	done    chan struct{}
	waiters int
	tile    *render.Tile
	err     error
}

// RenderCache memoizes the latest completed tile per key and guarantees at
// most one in-flight render per key.
//
//	Empty   --request--------> Pending
//	Pending --any request----> Pending (attach)
//	Pending --completion-----> Ready   (failure: back to previous state)
//	Ready   --request--------> Ready   (hit)
//	Ready   --refresh--------> Pending
type RenderCache struct {
	render RenderFunc
	logger *zap.Logger

	mu       sync.Mutex
	ready    *lru.Cache[colormap.Palette, *render.Tile]
	inflight map[colormap.Palette]*call
}

// NewRenderCache creates a cache holding at most capacity completed tiles.
// With capacity >= the number of palettes nothing is ever evicted.
func NewRenderCache(fn RenderFunc, capacity int, logger *zap.Logger) (*RenderCache, error) {
	ready, err := lru.New[colormap.Palette, *render.Tile](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create render cache: %w", err)
	}
	return &RenderCache{
		render:   fn,
		logger:   logger,
		ready:    ready,
		inflight: make(map[colormap.Palette]*call),
	}, nil
}

// Get returns the tile for cfg, rendering it if needed. Cancelling ctx stops
// the wait but not a render already started, which still populates the cache.
func (c *RenderCache) Get(ctx context.Context, cfg RenderConfig) (*render.Tile, error) {
	key := cfg.Key()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("palette", key.String()),
		attribute.Bool("refresh", cfg.ForceRefresh),
	)

	if cfg.ForceRefresh {
		metrics.HeatmapRefreshes.WithLabelValues(key.String()).Inc()
	}

	c.mu.Lock()
	if cl, ok := c.inflight[key]; ok {
		cl.waiters++
		c.mu.Unlock()
		metrics.HeatmapCoalesced.WithLabelValues(key.String()).Inc()
		span.SetAttributes(attribute.String("outcome", "coalesced"))
		return c.wait(ctx, cl)
	}
	if !cfg.ForceRefresh {
		if tile, ok := c.ready.Get(key); ok {
			c.mu.Unlock()
			metrics.HeatmapCacheHits.WithLabelValues(key.String()).Inc()
			span.SetAttributes(attribute.String("outcome", "hit"))
			return tile, nil
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	metrics.HeatmapCacheMisses.WithLabelValues(key.String()).Inc()
	span.SetAttributes(attribute.String("outcome", "render"))

	go c.run(context.WithoutCancel(ctx), key, cl)
	return c.wait(ctx, cl)
}

func (c *RenderCache) wait(ctx context.Context, cl *call) (*render.Tile, error) {
	select {
	case <-cl.done:
		return cl.tile, cl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *RenderCache) run(ctx context.Context, key colormap.Palette, cl *call) {
	start := time.Now()
	tile, err := c.safeRender(ctx, key)
	elapsed := time.Since(start)

	c.mu.Lock()
	if err == nil {
		c.ready.Add(key, tile)
	}
	delete(c.inflight, key)
	waiters := cl.waiters
	c.mu.Unlock()

	cl.tile, cl.err = tile, err
	close(cl.done)

	metrics.HeatmapRenderLatency.WithLabelValues(key.String()).Observe(elapsed.Seconds())
	if err != nil {
		metrics.HeatmapRenders.WithLabelValues(key.String(), "error").Inc()
		c.logger.Error("heatmap render failed",
			zap.String("palette", key.String()),
			zap.Int("waiters", waiters),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}
	metrics.HeatmapRenders.WithLabelValues(key.String(), "ok").Inc()
	c.logger.Debug("heatmap cached",
		zap.String("palette", key.String()),
		zap.String("render_id", tile.RenderID),
		zap.Int("waiters", waiters),
	)
}

func (c *RenderCache) safeRender(ctx context.Context, key colormap.Palette) (tile *render.Tile, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", render.ErrRender, r)
		}
	}()
	tile, err = c.render(ctx, key)
	if err == nil && tile == nil {
		err = fmt.Errorf("%w: renderer returned no tile", render.ErrRender)
	}
	return tile, err
}

// State returns the current state of key.
func (c *RenderCache) State(key colormap.Palette) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(key)
}

func (c *RenderCache) stateLocked(key colormap.Palette) State {
	if _, ok := c.inflight[key]; ok {
		return StatePending
	}
	if c.ready.Contains(key) {
		return StateReady
	}
	return StateEmpty
}

// Status reports every palette, in palette order.
func (c *RenderCache) Status() []EntryStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	palettes := colormap.Palettes()
	out := make([]EntryStatus, 0, len(palettes))
	for _, p := range palettes {
		st := EntryStatus{Palette: p, State: c.stateLocked(p)}
		if tile, ok := c.ready.Peek(p); ok {
			renderedAt := tile.RenderedAt
			st.RenderID = tile.RenderID
			st.Size = len(tile.Data)
			st.RenderedAt = &renderedAt
		}
		out = append(out, st)
	}
	return out
}

// waiting returns how many callers attached to the in-flight render of key,
// excluding the one that started it.
func (c *RenderCache) waiting(key colormap.Palette) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.inflight[key]; ok {
		return cl.waiters
	}
	return -1
}
