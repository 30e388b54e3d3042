// Package cache provides the heatmap render cache and a byte cache for
// legend images.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/MarkKlep/planetary/pkg/colormap"
)

// Config contains cache configuration.
type Config struct {
	LegendCacheSizeMB int
	LegendTTL         time.Duration
}

// Manager holds encoded legend images.
type Manager struct {
	legendCache *bigcache.BigCache
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.LegendTTL <= 0 {
		cfg.LegendTTL = time.Hour
	}

	legendCacheConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.LegendTTL,
		CleanWindow:        cfg.LegendTTL / 2,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       64 * 1024,
		HardMaxCacheSize:   cfg.LegendCacheSizeMB,
		Verbose:            false,
	}

	legendCache, err := bigcache.New(context.Background(), legendCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create legend cache: %w", err)
	}

	return &Manager{legendCache: legendCache}, nil
}

// GetLegend retrieves a legend image from cache.
func (m *Manager) GetLegend(key string) ([]byte, bool) {
	data, err := m.legendCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetLegend stores a legend image in cache.
func (m *Manager) SetLegend(key string, data []byte) error {
	return m.legendCache.Set(key, data)
}

// DeleteLegend drops a legend image. Missing keys are not an error.
func (m *Manager) DeleteLegend(key string) error {
	err := m.legendCache.Delete(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

// LegendKey generates a cache key for a legend of the given size.
func LegendKey(p colormap.Palette, width, height int) string {
	return fmt.Sprintf("legend:%s:%dx%d", p, width, height)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	stats := m.legendCache.Stats()
	return map[string]interface{}{
		"legend_cache_len":    m.legendCache.Len(),
		"legend_cache_cap":    m.legendCache.Capacity(),
		"legend_cache_hits":   stats.Hits,
		"legend_cache_misses": stats.Misses,
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.legendCache.Close()
}
