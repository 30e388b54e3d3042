// Package grid loads the raw sea-surface temperature grid.
package grid

import (
	"errors"
	"fmt"
)

// NoData marks a cell without a measurement (land or missing).
const NoData int8 = -1

var (
	// ErrIO reports that the backing blob could not be read.
	ErrIO = errors.New("grid io failure")
	// ErrMalformedGrid reports a blob whose size does not match the configured dimensions.
	ErrMalformedGrid = errors.New("malformed grid")
)

// MalformedGridError carries the size mismatch. It matches ErrMalformedGrid.
type MalformedGridError struct {
	Path string
	Want int64
	Got  int64 // -1 when the blob is longer than Want
}

func (e *MalformedGridError) Error() string {
	if e.Got < 0 {
		return fmt.Sprintf("malformed grid %s: want %d bytes, blob is longer", e.Path, e.Want)
	}
	return fmt.Sprintf("malformed grid %s: want %d bytes, got %d", e.Path, e.Want, e.Got)
}

func (e *MalformedGridError) Is(target error) bool {
	return target == ErrMalformedGrid
}

// Grid is an immutable row-major array of signed 8-bit Fahrenheit samples.
// It is safe for concurrent reads.
type Grid struct {
	width   int
	height  int
	samples []int8
}

// New wraps samples as a grid. len(samples) must equal width*height.
func New(width, height int, samples []int8) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid grid dimensions %dx%d", width, height)
	}
	if want := int64(width) * int64(height); int64(len(samples)) != want {
		return nil, &MalformedGridError{Path: "<memory>", Want: want, Got: int64(len(samples))}
	}
	return &Grid{width: width, height: height, samples: samples}, nil
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// Samples returns the backing slice. Callers must not modify it.
func (g *Grid) Samples() []int8 { return g.samples }

// At returns the sample at column x, row y. It does not bounds check beyond
// the slice itself.
func (g *Grid) At(x, y int) int8 {
	return g.samples[y*g.width+x]
}

// Size returns width*height.
func (g *Grid) Size() int64 {
	return int64(g.width) * int64(g.height)
}
