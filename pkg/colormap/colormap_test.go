package colormap

import (
	"image/color"
	"math"
	"testing"
)

func TestParsePalette(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Palette
	}{
		{"viridis", Viridis},
		{"turbo", Turbo},
		{"spectral", Spectral},
		{"plasma", Viridis},
		{"", Viridis},
		{"TURBO", Viridis},
		{"undefined", Viridis},
	}
	for _, tt := range tests {
		if got := ParsePalette(tt.in); got != tt.want {
			t.Errorf("ParsePalette(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestColorForClamps(t *testing.T) {
	t.Parallel()

	for _, p := range Palettes() {
		if got, want := ColorFor(p, -5), ColorFor(p, 0); got != want {
			t.Errorf("%s: ColorFor(-5) = %v, want %v", p, got, want)
		}
		if got, want := ColorFor(p, 5), ColorFor(p, 1); got != want {
			t.Errorf("%s: ColorFor(5) = %v, want %v", p, got, want)
		}
		if got, want := ColorFor(p, math.NaN()), ColorFor(p, 0); got != want {
			t.Errorf("%s: ColorFor(NaN) = %v, want %v", p, got, want)
		}
	}
}

func TestColorForOpaqueAcrossRange(t *testing.T) {
	t.Parallel()

	// Channels are uint8 so [0,255] holds by construction; alpha must stay opaque.
	for _, p := range Palettes() {
		for i := 0; i <= 1000; i++ {
			c := ColorFor(p, float64(i)/1000)
			if c.A != 255 {
				t.Fatalf("%s at %d: alpha %d", p, i, c.A)
			}
		}
	}
}

func TestStopEndpoints(t *testing.T) {
	t.Parallel()

	if got := ColorFor(Viridis, 0); got != (color.RGBA{68, 1, 84, 255}) {
		t.Fatalf("viridis(0) = %v", got)
	}
	if got := ColorFor(Viridis, 1); got != (color.RGBA{253, 231, 37, 255}) {
		t.Fatalf("viridis(1) = %v", got)
	}
	if got := ColorFor(Spectral, 0); got != (color.RGBA{49, 54, 149, 255}) {
		t.Fatalf("spectral(0) = %v", got)
	}
	if got := ColorFor(Spectral, 1); got != (color.RGBA{165, 0, 38, 255}) {
		t.Fatalf("spectral(1) = %v", got)
	}
	// Exactly on an interior stop.
	if got := ColorFor(Viridis, 0.5); got != (color.RGBA{38, 130, 142, 255}) {
		t.Fatalf("viridis(0.5) = %v", got)
	}
}

func TestFreezingPointViridis(t *testing.T) {
	t.Parallel()

	tn := Normalize(32)
	if math.Abs(tn-2.0/37.0) > 1e-12 {
		t.Fatalf("Normalize(32) = %v, want %v", tn, 2.0/37.0)
	}

	got := TemperatureColor(Viridis, 32)
	want := color.RGBA{70, 22, 103, 255}
	if absDiff(got.R, want.R) > 1 || absDiff(got.G, want.G) > 1 || absDiff(got.B, want.B) > 1 {
		t.Fatalf("viridis(32F) = %v, want ~%v", got, want)
	}
}

func TestZeroWidthSegment(t *testing.T) {
	t.Parallel()

	cm := StopColormap{
		{0, color.RGBA{0, 0, 0, 255}},
		{0.5, color.RGBA{10, 10, 10, 255}},
		{0.5, color.RGBA{200, 200, 200, 255}},
		{1, color.RGBA{255, 255, 255, 255}},
	}
	if got := cm.At(0.5); got != (color.RGBA{10, 10, 10, 255}) {
		t.Fatalf("At(0.5) = %v", got)
	}

	leading := StopColormap{
		{0, color.RGBA{20, 30, 40, 255}},
		{0, color.RGBA{100, 100, 100, 255}},
		{1, color.RGBA{200, 200, 200, 255}},
	}
	if got := leading.At(0); got != (color.RGBA{20, 30, 40, 255}) {
		t.Fatalf("At(0) on zero-width segment = %v", got)
	}
}

func TestTurboKnownValues(t *testing.T) {
	t.Parallel()

	// r(0) = 34.61, g(0) = 23.31, b(0) = 27.2
	if got := ColorFor(Turbo, 0); got != (color.RGBA{35, 23, 27, 255}) {
		t.Fatalf("turbo(0) = %v", got)
	}
	// At t=1 the raw polynomials give r~144.1, g~-267.1 (clamped), b~-6.2 (clamped).
	got := ColorFor(Turbo, 1)
	if got.G != 0 || got.B != 0 {
		t.Fatalf("turbo(1) = %v, want clamped green and blue", got)
	}
}

func TestBandFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tempF float64
		want  string
	}{
		{1, "blue"},
		{32, "blue"},
		{40, "lightblue"},
		{50, "lime"},
		{75, "yellow"},
		{90, "orange"},
		{120, "red"},
	}
	for _, tt := range tests {
		if got := BandFor(tt.tempF).Name; got != tt.want {
			t.Errorf("BandFor(%v) = %q, want %q", tt.tempF, got, tt.want)
		}
	}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
