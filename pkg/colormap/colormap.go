// Package colormap maps normalized sea-surface temperatures to colors.
package colormap

import (
	"image/color"
	"math"
)

// Physical range assumed for sea-surface temperature, in degrees Celsius.
const (
	MinCelsius = -2.0
	MaxCelsius = 35.0
)

// Palette identifies one of the supported color schemes.
type Palette string

const (
	Viridis  Palette = "viridis"
	Turbo    Palette = "turbo"
	Spectral Palette = "spectral"
)

// Default is used whenever palette input is absent or unrecognized.
const Default = Viridis

var palettes = []Palette{Viridis, Turbo, Spectral}

// Palettes returns all palette identifiers, default first.
func Palettes() []Palette {
	out := make([]Palette, len(palettes))
	copy(out, palettes)
	return out
}

// LookupPalette reports whether s names a palette.
func LookupPalette(s string) (Palette, bool) {
	switch Palette(s) {
	case Viridis, Turbo, Spectral:
		return Palette(s), true
	default:
		return "", false
	}
}

// ParsePalette resolves external input to a palette. It never fails.
func ParsePalette(s string) Palette {
	if p, ok := LookupPalette(s); ok {
		return p
	}
	return Default
}

func (p Palette) String() string {
	return string(p)
}

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	At(t float64) color.RGBA
}

// Colormap returns the color scheme behind p. Unknown palettes map to Default.
func (p Palette) Colormap() Colormap {
	switch p {
	case Turbo:
		return TurboColormap{}
	case Spectral:
		return SpectralStops
	default:
		return ViridisStops
	}
}

// ColorFor returns the color of p at t. t is clamped to [0, 1].
func ColorFor(p Palette, t float64) color.RGBA {
	return p.Colormap().At(t)
}

// FahrenheitToCelsius converts a raw grid sample to Celsius.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) / 1.8
}

// Normalize maps a Fahrenheit temperature onto the [MinCelsius, MaxCelsius]
// range. The result is not clamped.
func Normalize(tempF float64) float64 {
	c := FahrenheitToCelsius(tempF)
	return (c - MinCelsius) / (MaxCelsius - MinCelsius)
}

// TemperatureColor colors a Fahrenheit temperature with palette p.
func TemperatureColor(p Palette, tempF float64) color.RGBA {
	return ColorFor(p, Normalize(tempF))
}

// Stop is a control point of a piecewise-linear colormap.
type Stop struct {
	T float64
	C color.RGBA
}

// StopColormap interpolates linearly between ordered stops spanning [0, 1].
type StopColormap []Stop

// At returns the color at position t (0-1).
func (s StopColormap) At(t float64) color.RGBA {
	t = clamp01(t)
	for i := 0; i < len(s)-1; i++ {
		a, b := s[i], s[i+1]
		if t < a.T || t > b.T {
			continue
		}
		span := b.T - a.T
		if span == 0 {
			span = 1
		}
		return interpolate(a.C, b.C, (t-a.T)/span)
	}
	return s[len(s)-1].C
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: lerpChannel(c1.R, c2.R, t),
		G: lerpChannel(c1.G, c2.G, t),
		B: lerpChannel(c1.B, c2.B, t),
		A: 255,
	}
}

func lerpChannel(a, b uint8, t float64) uint8 {
	return ClampChannel(float64(a) + (float64(b)-float64(a))*t)
}

// ClampChannel rounds v to the nearest integer and clamps it to [0, 255].
func ClampChannel(v float64) uint8 {
	v = math.Round(v)
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func clamp01(t float64) float64 {
	if t > 0 && t < 1 {
		return t
	}
	if t >= 1 {
		return 1
	}
	// t <= 0 or NaN
	return 0
}

// ViridisStops approximates matplotlib viridis.
var ViridisStops = StopColormap{
	{0.0, color.RGBA{68, 1, 84, 255}},
	{0.1, color.RGBA{72, 40, 120, 255}},
	{0.2, color.RGBA{62, 74, 137, 255}},
	{0.35, color.RGBA{49, 104, 142, 255}},
	{0.5, color.RGBA{38, 130, 142, 255}},
	{0.65, color.RGBA{31, 158, 137, 255}},
	{0.78, color.RGBA{53, 183, 121, 255}},
	{0.88, color.RGBA{109, 205, 89, 255}},
	{0.95, color.RGBA{180, 222, 44, 255}},
	{1.0, color.RGBA{253, 231, 37, 255}},
}

// SpectralStops is a reversed ColorBrewer spectral ramp, cold blue to hot red.
var SpectralStops = StopColormap{
	{0.0, color.RGBA{49, 54, 149, 255}},
	{0.2, color.RGBA{69, 117, 180, 255}},
	{0.4, color.RGBA{116, 173, 209, 255}},
	{0.55, color.RGBA{171, 221, 164, 255}},
	{0.7, color.RGBA{253, 174, 97, 255}},
	{0.85, color.RGBA{244, 109, 67, 255}},
	{1.0, color.RGBA{165, 0, 38, 255}},
}

// TurboColormap is the polynomial approximation of Google's Turbo.
type TurboColormap struct{}

// At evaluates the per-channel fifth-degree polynomials at t.
func (TurboColormap) At(t float64) color.RGBA {
	x := clamp01(t)
	r := 34.61 + x*(1172.33+x*(-10793.56+x*(33300.12+x*(-38394.49+x*14825.05))))
	g := 23.31 + x*(557.33+x*(1225.33+x*(-3574.96+x*(1501.88+x*0.00))))
	b := 27.2 + x*(3211.1+x*(-15327.97+x*(27814.0+x*(-22569.18+x*6838.66))))
	return color.RGBA{
		R: ClampChannel(r),
		G: ClampChannel(g),
		B: ClampChannel(b),
		A: 255,
	}
}
