package colormap

import (
	"image/color"
	"math"
)

// Band is a coarse temperature class used to label legends.
// MinC is inclusive except for the first band; MaxC is exclusive. The outer
// bands are unbounded.
type Band struct {
	Name string
	MinC float64
	MaxC float64
	RGBA color.RGBA
	Hex  string
}

// Bands lists the classes from coldest to hottest.
var Bands = []Band{
	{Name: "blue", MinC: math.Inf(-1), MaxC: 0, RGBA: color.RGBA{0, 0, 255, 255}, Hex: "#0000ff"},
	{Name: "lightblue", MinC: 0, MaxC: 10, RGBA: color.RGBA{173, 216, 230, 255}, Hex: "#add8e6"},
	{Name: "lime", MinC: 10, MaxC: 20, RGBA: color.RGBA{0, 255, 0, 255}, Hex: "#00ff00"},
	{Name: "yellow", MinC: 20, MaxC: 30, RGBA: color.RGBA{255, 255, 0, 255}, Hex: "#ffff00"},
	{Name: "orange", MinC: 30, MaxC: 40, RGBA: color.RGBA{255, 165, 0, 255}, Hex: "#ffa500"},
	{Name: "red", MinC: 40, MaxC: math.Inf(1), RGBA: color.RGBA{255, 0, 0, 255}, Hex: "#ff0000"},
}

// BandFor classifies a Fahrenheit temperature. Zero degrees Celsius and
// below is "blue".
func BandFor(tempF float64) Band {
	c := FahrenheitToCelsius(tempF)
	if c <= 0 {
		return Bands[0]
	}
	for _, b := range Bands[1:] {
		if c < b.MaxC {
			return b
		}
	}
	return Bands[len(Bands)-1]
}
