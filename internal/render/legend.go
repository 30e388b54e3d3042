package render

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/MarkKlep/planetary/pkg/colormap"
	"github.com/fogleman/gg"
)

// Legend size limits, in pixels.
const (
	MinLegendSize = 16
	MaxLegendSize = 2048
)

// RenderLegend draws a horizontal color bar for p spanning
// colormap.MinCelsius..MaxCelsius, with tick marks at band boundaries.
func RenderLegend(p colormap.Palette, width, height int) ([]byte, error) {
	width = ClampLegendSize(width)
	height = ClampLegendSize(height)

	dc := gg.NewContext(width, height)
	cm := p.Colormap()

	for x := 0; x < width; x++ {
		t := float64(x) / float64(width-1)
		dc.SetColor(cm.At(t))
		dc.DrawRectangle(float64(x), 0, 1, float64(height))
		dc.Fill()
	}

	dc.SetRGBA(0, 0, 0, 0.6)
	dc.SetLineWidth(1)
	for _, b := range colormap.Bands[1:] {
		t := (b.MinC - colormap.MinCelsius) / (colormap.MaxCelsius - colormap.MinCelsius)
		if t <= 0 || t >= 1 {
			continue
		}
		x := t * float64(width-1)
		dc.DrawLine(x, float64(height)*0.6, x, float64(height))
		dc.Stroke()
	}

	return encodeContext(dc)
}

func encodeContext(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("%w: encode png: %w", ErrRender, err)
	}
	return buf.Bytes(), nil
}

// ClampLegendSize limits a legend dimension to [MinLegendSize, MaxLegendSize].
func ClampLegendSize(v int) int {
	if v < MinLegendSize {
		return MinLegendSize
	}
	if v > MaxLegendSize {
		return MaxLegendSize
	}
	return v
}
