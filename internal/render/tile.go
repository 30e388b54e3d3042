// Package render turns the temperature grid into a color-mapped heatmap.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MarkKlep/planetary/internal/grid"
	"github.com/MarkKlep/planetary/pkg/colormap"
	"github.com/dustin/go-humanize"
	"github.com/fogleman/gg"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// BlendAlpha is the weight of the overlay color over the base map.
const BlendAlpha = 0.65

// ContentTypeJPEG is the content type of rendered heatmaps.
const ContentTypeJPEG = "image/jpeg"

// DefaultJPEGQuality is used when Config.JPEGQuality is unset.
const DefaultJPEGQuality = 75

// ErrRender reports a failure to composite or encode a heatmap.
var ErrRender = errors.New("render failure")

const tracerName = "github.com/MarkKlep/planetary/internal/render"

// Config contains renderer configuration.
type Config struct {
	Width         int
	Height        int
	BaseImagePath string
	JPEGQuality   int
	Workers       int
}

// Tile is an encoded heatmap. It is immutable once returned.
type Tile struct {
	Data        []byte
	ContentType string
	Palette     colormap.Palette
	RenderID    string
	RenderedAt  time.Time
	Elapsed     time.Duration
}

// TileRenderer renders heatmaps over a base map.
type TileRenderer struct {
	config     Config
	logger     *zap.Logger
	bufferPool sync.Pool

	base      atomic.Pointer[image.RGBA]
	baseGroup singleflight.Group
}

// NewTileRenderer creates a new tile renderer.
func NewTileRenderer(cfg Config, logger *zap.Logger) *TileRenderer {
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = DefaultJPEGQuality
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &TileRenderer{
		config: cfg,
		logger: logger,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 1024*1024))
			},
		},
	}
}

// Render composites g onto the base map with palette p and encodes it as JPEG.
func (r *TileRenderer) Render(ctx context.Context, g *grid.Grid, p colormap.Palette) (*Tile, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "render.Render")
	defer span.End()
	span.SetAttributes(attribute.String("palette", p.String()))

	start := time.Now()
	img, err := r.Rasterize(ctx, g, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	data, err := r.encodeJPEG(img)
	if err != nil {
		err = fmt.Errorf("%w: encode jpeg: %w", ErrRender, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tile := &Tile{
		Data:        data,
		ContentType: ContentTypeJPEG,
		Palette:     p,
		RenderID:    uuid.NewString(),
		RenderedAt:  time.Now(),
		Elapsed:     time.Since(start),
	}
	span.SetAttributes(
		attribute.String("render_id", tile.RenderID),
		attribute.Int("size_bytes", len(data)),
	)
	r.logger.Info("heatmap rendered",
		zap.String("palette", p.String()),
		zap.String("render_id", tile.RenderID),
		zap.String("size", humanize.Bytes(uint64(len(data)))),
		zap.Duration("elapsed", tile.Elapsed),
	)
	return tile, nil
}

// Rasterize returns the composited raster before encoding.
func (r *TileRenderer) Rasterize(ctx context.Context, g *grid.Grid, p colormap.Palette) (*image.RGBA, error) {
	base, err := r.Base(ctx)
	if err != nil {
		return nil, err
	}

	out := image.NewRGBA(base.Rect)
	copy(out.Pix, base.Pix)

	if err := composite(ctx, out, g, newColorLUT(p), r.config.Workers); err != nil {
		return nil, fmt.Errorf("%w: composite: %w", ErrRender, err)
	}
	return out, nil
}

// Dimensions returns the output raster size.
func (r *TileRenderer) Dimensions() (width, height int) {
	return r.config.Width, r.config.Height
}

// Base returns the base map scaled to the output size, loading it on first use.
// Load failures are not memoized.
func (r *TileRenderer) Base(ctx context.Context) (*image.RGBA, error) {
	if b := r.base.Load(); b != nil {
		return b, nil
	}

	ch := r.baseGroup.DoChan("base", func() (interface{}, error) {
		if b := r.base.Load(); b != nil {
			return b, nil
		}
		src, err := gg.LoadImage(r.config.BaseImagePath)
		if err != nil {
			return nil, fmt.Errorf("%w: base image: %w: %s: %w", ErrRender, grid.ErrIO, r.config.BaseImagePath, err)
		}
		b := r.fitBase(src)
		r.base.Store(b)
		r.logger.Info("base image loaded",
			zap.String("path", r.config.BaseImagePath),
			zap.Int("source_width", src.Bounds().Dx()),
			zap.Int("source_height", src.Bounds().Dy()),
		)
		return b, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*image.RGBA), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetBase installs an in-memory base map, scaled to the output size.
func (r *TileRenderer) SetBase(src image.Image) {
	r.base.Store(r.fitBase(src))
}

func (r *TileRenderer) fitBase(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	sb := src.Bounds()
	if sb.Dx() == r.config.Width && sb.Dy() == r.config.Height {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	}
	return dst
}

func (r *TileRenderer) encodeJPEG(img image.Image) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: r.config.JPEGQuality}); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// composite blends the heatmap into out in place. Rows are split into bands
// rendered concurrently; each band writes a disjoint slice of out.Pix.
func composite(ctx context.Context, out *image.RGBA, g *grid.Grid, lut *colorLUT, workers int) error {
	height := out.Rect.Dy()
	band := (height + workers*4 - 1) / (workers * 4)
	if band < 1 {
		band = 1
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for y0 := 0; y0 < height; y0 += band {
		y1 := min(y0+band, height)
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			compositeRows(out, g, lut, y0, y1)
			return nil
		})
	}
	return eg.Wait()
}

func compositeRows(out *image.RGBA, g *grid.Grid, lut *colorLUT, y0, y1 int) {
	samples := g.Samples()
	gw, gh := g.Width(), g.Height()
	width, height := out.Rect.Dx(), out.Rect.Dy()
	scaleX := float64(gw) / float64(width)
	scaleY := float64(gh) / float64(height)

	for y := y0; y < y1; y++ {
		// Output rows run north to south; grid rows run south to north.
		baseY := clampIndex(int(float64(height-1-y)*scaleY), gh)
		row := out.Pix[y*out.Stride : y*out.Stride+width*4]

		for x := 0; x < width; x++ {
			baseX := clampIndex(int(float64(x)*scaleX), gw)

			sum, count := 0, 0
			for dy := 0; dy <= 1; dy++ {
				sy := baseY + dy
				if sy >= gh {
					continue
				}
				off := sy * gw
				for dx := 0; dx <= 1; dx++ {
					sx := baseX + dx
					if sx >= gw {
						continue
					}
					v := samples[off+sx]
					if v == grid.NoData {
						continue
					}
					sum += int(v)
					count++
				}
			}
			if count == 0 {
				continue
			}

			c := lut.at(sum, count)
			i := x * 4
			row[i] = blendTable[row[i]][c.R]
			row[i+1] = blendTable[row[i+1]][c.G]
			row[i+2] = blendTable[row[i+2]][c.B]
			row[i+3] = 255
		}
	}
}

func clampIndex(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
