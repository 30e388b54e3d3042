package render

import (
	"image/color"

	"github.com/MarkKlep/planetary/pkg/colormap"
)

// A 2x2 box sample holds at most four signed samples, none equal to -1, so
// the sum lies in [-512, 508]. Every (sum, count) pair maps to one mean and
// one color, which lets a render precompute all of them.
const (
	maxSamples = 4
	minSum     = -128 * maxSamples
	maxSum     = 127 * maxSamples
	sumRange   = maxSum - minSum + 1
)

type colorLUT struct {
	colors [maxSamples][sumRange]color.RGBA
}

func newColorLUT(p colormap.Palette) *colorLUT {
	cm := p.Colormap()
	lut := &colorLUT{}
	for n := 1; n <= maxSamples; n++ {
		for sum := minSum; sum <= maxSum; sum++ {
			mean := float64(sum) / float64(n)
			lut.colors[n-1][sum-minSum] = cm.At(colormap.Normalize(mean))
		}
	}
	return lut
}

func (l *colorLUT) at(sum, count int) color.RGBA {
	return l.colors[count-1][sum-minSum]
}

// blendTable[base][overlay] is base blended toward overlay by BlendAlpha,
// rounded and clamped.
var blendTable = buildBlendTable()

func buildBlendTable() *[256][256]uint8 {
	var t [256][256]uint8
	for b := 0; b < 256; b++ {
		for o := 0; o < 256; o++ {
			t[b][o] = Blend(uint8(b), uint8(o))
		}
	}
	return &t
}

// Blend mixes one channel: base*(1-BlendAlpha) + overlay*BlendAlpha.
func Blend(base, overlay uint8) uint8 {
	return colormap.ClampChannel(float64(base)*(1-BlendAlpha) + float64(overlay)*BlendAlpha)
}
