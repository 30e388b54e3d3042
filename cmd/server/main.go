// Package main is the entry point for the heatmap server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MarkKlep/planetary/internal/cache"
	"github.com/MarkKlep/planetary/internal/config"
	"github.com/MarkKlep/planetary/internal/grid"
	"github.com/MarkKlep/planetary/internal/logger"
	"github.com/MarkKlep/planetary/internal/render"
	"github.com/MarkKlep/planetary/internal/service"
)

// Version is set at build time.
var Version = "dev"

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "Sea-surface temperature heatmap server",
		Long:          "Serves the global sea-surface temperature heatmap over HTTP. Runs serve when no command is given.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file (default $HEATMAP_CONFIG or "+config.DefaultPath+")")
	rootCmd.AddCommand(serveCmd(), renderCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "NOTICE: .env file not loaded: %v\n", err)
	}

	path := configFile
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	log.Info("configuration loaded", zap.String("path", path))
	return cfg, log, nil
}

// newTileService wires the grid store, renderer and caches.
func newTileService(cfg *config.Config, log *zap.Logger) (*service.TileService, error) {
	cacheManager, err := cache.NewManager(cache.Config{
		LegendCacheSizeMB: cfg.Cache.LegendSizeMB,
		LegendTTL:         time.Duration(cfg.Cache.LegendTTLMinutes) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	store := grid.NewStore(cfg.GridConfig(), log.Named("grid"))
	tileRenderer := render.NewTileRenderer(render.Config{
		Width:         cfg.Render.Width,
		Height:        cfg.Render.Height,
		BaseImagePath: cfg.Data.BaseImagePath,
		JPEGQuality:   cfg.Render.JPEGQuality,
		Workers:       cfg.Render.Workers,
	}, log.Named("render"))

	svc, err := service.NewTileService(service.TileServiceConfig{
		Store:    store,
		Renderer: tileRenderer,
		Cache:    cacheManager,
		Logger:   log.Named("cache"),
	})
	if err != nil {
		cacheManager.Close()
		return nil, err
	}
	return svc, nil
}
