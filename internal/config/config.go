// Package config handles configuration loading for the heatmap server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MarkKlep/planetary/internal/grid"
	"github.com/MarkKlep/planetary/pkg/colormap"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "HEATMAP_"

// DefaultPath is used when HEATMAP_CONFIG is unset.
const DefaultPath = "config/server.yaml"

// Config represents the server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Data      DataConfig      `yaml:"data" envPrefix:"DATA_"`
	Render    RenderConfig    `yaml:"render" envPrefix:"RENDER_"`
	Cache     CacheConfig     `yaml:"cache" envPrefix:"CACHE_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port           int           `yaml:"port" env:"PORT"`
	CORSOrigins    []string      `yaml:"cors_origins" env:"CORS_ORIGINS"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// DataConfig contains data source settings.
type DataConfig struct {
	GridPath        string `yaml:"grid_path" env:"GRID_PATH"`
	BaseImagePath   string `yaml:"base_image_path" env:"BASE_IMAGE_PATH"`
	GridWidth       int    `yaml:"grid_width" env:"GRID_WIDTH"`
	GridHeight      int    `yaml:"grid_height" env:"GRID_HEIGHT"`
	GridCompression string `yaml:"grid_compression" env:"GRID_COMPRESSION"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	Width        int      `yaml:"width" env:"WIDTH"`
	Height       int      `yaml:"height" env:"HEIGHT"`
	JPEGQuality  int      `yaml:"jpeg_quality" env:"JPEG_QUALITY"`
	Workers      int      `yaml:"workers" env:"WORKERS"`
	WarmPalettes []string `yaml:"warm_palettes" env:"WARM_PALETTES"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	LegendSizeMB     int `yaml:"legend_size_mb" env:"LEGEND_SIZE_MB"`
	LegendTTLMinutes int `yaml:"legend_ttl_minutes" env:"LEGEND_TTL_MINUTES"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`
	Encoding string `yaml:"encoding" env:"ENCODING"`
}

// TelemetryConfig contains OTLP trace export settings.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
	TLS         bool    `yaml:"tls" env:"TLS"`
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate  float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Path returns the config file location, honouring HEATMAP_CONFIG.
func Path() string {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// LoadDotEnv loads a .env file into the process environment if present.
func LoadDotEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads configuration from a YAML file, then applies HEATMAP_*
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Keys absent from the file keep their defaults.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(cfg)

	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           3002,
			CORSOrigins:    []string{"*"},
			RequestTimeout: 60 * time.Second,
			ReadTimeout:    15 * time.Second,
			IdleTimeout:    60 * time.Second,
		},
		Data: DataConfig{
			GridPath:        "./data/sst.grid",
			BaseImagePath:   "./data/empty-map.jpg",
			GridWidth:       36000,
			GridHeight:      17999,
			GridCompression: string(grid.CompressionAuto),
		},
		Render: RenderConfig{
			Width:       3600,
			Height:      1800,
			JPEGQuality: 75,
		},
		Cache: CacheConfig{
			LegendSizeMB:     16,
			LegendTTLMinutes: 60,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "heatmap-server",
			SampleRate:  1.0,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = defaults.Server.RequestTimeout
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaults.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = cfg.Server.RequestTimeout + 30*time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaults.Server.IdleTimeout
	}
	if cfg.Data.GridPath == "" {
		cfg.Data.GridPath = defaults.Data.GridPath
	}
	if cfg.Data.BaseImagePath == "" {
		cfg.Data.BaseImagePath = defaults.Data.BaseImagePath
	}
	if cfg.Data.GridWidth == 0 {
		cfg.Data.GridWidth = defaults.Data.GridWidth
	}
	if cfg.Data.GridHeight == 0 {
		cfg.Data.GridHeight = defaults.Data.GridHeight
	}
	if cfg.Data.GridCompression == "" {
		cfg.Data.GridCompression = defaults.Data.GridCompression
	}
	if cfg.Render.Width == 0 {
		cfg.Render.Width = defaults.Render.Width
	}
	if cfg.Render.Height == 0 {
		cfg.Render.Height = defaults.Render.Height
	}
	if cfg.Render.JPEGQuality == 0 {
		cfg.Render.JPEGQuality = defaults.Render.JPEGQuality
	}
	if cfg.Cache.LegendSizeMB == 0 {
		cfg.Cache.LegendSizeMB = defaults.Cache.LegendSizeMB
	}
	if cfg.Cache.LegendTTLMinutes == 0 {
		cfg.Cache.LegendTTLMinutes = defaults.Cache.LegendTTLMinutes
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Encoding == "" {
		cfg.Log.Encoding = defaults.Log.Encoding
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = defaults.Telemetry.Endpoint
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RequestTimeout < 0 {
		errs = append(errs, errors.New("server.request_timeout must not be negative"))
	}
	if c.Data.GridWidth <= 0 || c.Data.GridHeight <= 0 {
		errs = append(errs, fmt.Errorf("data grid dimensions %dx%d must be positive", c.Data.GridWidth, c.Data.GridHeight))
	}
	if _, err := grid.ParseCompression(c.Data.GridCompression); err != nil {
		errs = append(errs, fmt.Errorf("data.grid_compression: %w", err))
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		errs = append(errs, fmt.Errorf("render dimensions %dx%d must be positive", c.Render.Width, c.Render.Height))
	}
	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("render.jpeg_quality %d not in [1, 100]", c.Render.JPEGQuality))
	}
	for _, p := range c.Render.WarmPalettes {
		if !knownPalette(p) {
			errs = append(errs, fmt.Errorf("render.warm_palettes: unknown palette %q", p))
		}
	}
	if c.Cache.LegendSizeMB < 0 || c.Cache.LegendTTLMinutes < 0 {
		errs = append(errs, errors.New("cache sizes must not be negative"))
	}
	if c.Log.Encoding != "json" && c.Log.Encoding != "console" {
		errs = append(errs, fmt.Errorf("log.encoding %q must be json or console", c.Log.Encoding))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate %v not in [0, 1]", c.Telemetry.SampleRate))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

// GridConfig returns the grid store settings.
func (c *Config) GridConfig() grid.Config {
	compression, _ := grid.ParseCompression(c.Data.GridCompression)
	return grid.Config{
		Path:        c.Data.GridPath,
		Width:       c.Data.GridWidth,
		Height:      c.Data.GridHeight,
		Compression: compression,
	}
}

// WarmPalettes returns the palettes rendered at startup.
func (c *Config) WarmPalettes() []colormap.Palette {
	out := make([]colormap.Palette, 0, len(c.Render.WarmPalettes))
	for _, p := range c.Render.WarmPalettes {
		out = append(out, colormap.ParsePalette(p))
	}
	return out
}

func knownPalette(name string) bool {
	_, ok := colormap.LookupPalette(name)
	return ok
}
