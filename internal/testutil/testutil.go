// Package testutil provides shared test utilities and fixtures.
//
// Image fixtures are analytic, so a shifted copy is exact at any
// sub-pixel offset.
package testutil

import (
	"math"
	"math/rand"

	"github.com/banshee-data/featuretrack/internal/vision/l1image"
)

// Wave is one plane sinusoid of a Texture.
type Wave struct {
	Amplitude  float64
	Wavelength float64 // pixels
	Angle      float64 // radians, direction of travel
	Phase      float64
}

// Texture is a smooth, band-limited intensity field: a mean level plus a
// sum of plane waves in different directions. It has gradient diversity
// everywhere, so KLT is well conditioned at any point and any level of a
// [1, 2, 4] pyramid.
type Texture struct {
	Mean  float64
	Waves []Wave
}

// DefaultTexture stays within [0, 255] and uses wavelengths of 17–37 px.
func DefaultTexture() Texture {
	return Texture{
		Mean: 128,
		Waves: []Wave{
			{Amplitude: 30, Wavelength: 24, Angle: 0.3, Phase: 0.1},
			{Amplitude: 25, Wavelength: 31, Angle: 1.4, Phase: 1.7},
			{Amplitude: 22, Wavelength: 20, Angle: 2.3, Phase: 0.6},
			{Amplitude: 18, Wavelength: 37, Angle: 0.9, Phase: 2.9},
			{Amplitude: 15, Wavelength: 17, Angle: 2.8, Phase: 4.1},
			{Amplitude: 15, Wavelength: 28, Angle: 1.9, Phase: 5.3},
		},
	}
}

// RandomTexture draws a texture with the same envelope as DefaultTexture
// from a seeded source.
func RandomTexture(seed int64) Texture {
	rng := rand.New(rand.NewSource(seed))
	tex := Texture{Mean: 128}
	for _, amp := range []float64{30, 25, 22, 18, 15, 15} {
		tex.Waves = append(tex.Waves, Wave{
			Amplitude:  amp,
			Wavelength: 17 + 20*rng.Float64(),
			Angle:      math.Pi * rng.Float64(),
			Phase:      2 * math.Pi * rng.Float64(),
		})
	}
	return tex
}

// At evaluates the texture at continuous (x, y).
func (tex Texture) At(x, y float64) float64 {
	v := tex.Mean
	for _, w := range tex.Waves {
		k := 2 * math.Pi / w.Wavelength
		v += w.Amplitude * math.Sin(k*(x*math.Cos(w.Angle)+y*math.Sin(w.Angle))+w.Phase)
	}
	return v
}

// Render samples the texture translated by (dx, dy): pixel (x, y) holds
// At(x-dx, y-dy), so content at p in the unshifted image appears at
// p+(dx, dy).
func (tex Texture) Render(width, height int, dx, dy float64) *l1image.Image[float32] {
	img := l1image.New[float32](width, height)
	for y := 0; y < height; y++ {
		row := img.Row(y)
		for x := range row {
			row[x] = float32(tex.At(float64(x)-dx, float64(y)-dy))
		}
	}
	return img
}

// RenderU8 is Render quantised to 8 bits.
func (tex Texture) RenderU8(width, height int, dx, dy float64) *l1image.Image[uint8] {
	img := l1image.New[uint8](width, height)
	for y := 0; y < height; y++ {
		row := img.Row(y)
		for x := range row {
			v := math.Round(tex.At(float64(x)-dx, float64(y)-dy))
			row[x] = uint8(math.Max(0, math.Min(255, v)))
		}
	}
	return img
}

// Uniform returns a textureless float image.
func Uniform(width, height int, v float32) *l1image.Image[float32] {
	img := l1image.New[float32](width, height)
	img.Fill(v)
	return img
}

// Grid returns the points of a regular lattice from lo to hi inclusive
// in both axes.
func Grid(lo, hi, step int) [][2]float64 {
	var pts [][2]float64
	for y := lo; y <= hi; y += step {
		for x := lo; x <= hi; x += step {
			pts = append(pts, [2]float64{float64(x), float64(y)})
		}
	}
	return pts
}
