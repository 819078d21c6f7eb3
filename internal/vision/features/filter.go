package features

import (
	"github.com/banshee-data/featuretrack/internal/vision/l1image"
	"github.com/banshee-data/featuretrack/internal/vision/l2pyramid"
)

// binomial5 is the [1 4 6 4 1]/16 kernel, a close Gaussian approximation
// with σ = 1.
var binomial5 = [5]float32{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

// BinomialBlur is a separable 5-tap binomial low-pass filter with clamped
// borders. It keeps a scratch row buffer, so each pyramid builder needs
// its own instance.
type BinomialBlur struct {
	tmp l1image.Image[float32]
}

var _ l2pyramid.Blurrer = (*BinomialBlur)(nil)

// Blur implements l2pyramid.Blurrer.
func (b *BinomialBlur) Blur(src, dst *l1image.Image[float32]) {
	w, h := src.Width, src.Height
	b.tmp.Reshape(w, h)
	dst.Reshape(w, h)

	for y := 0; y < h; y++ {
		in := src.Row(y)
		out := b.tmp.Row(y)
		for x := 0; x < w; x++ {
			var sum float32
			for k, c := range binomial5 {
				sum += c * in[clamp(x+k-2, w)]
			}
			out[x] = sum
		}
	}
	for y := 0; y < h; y++ {
		out := dst.Row(y)
		for x := 0; x < w; x++ {
			var sum float32
			for k, c := range binomial5 {
				sum += c * b.tmp.At(x, clamp(y+k-2, h))
			}
			out[x] = sum
		}
	}
}

// Sobel computes 3×3 Sobel derivatives normalised by 1/8, so a linear
// ramp of slope s yields exactly s. Borders are clamped.
type Sobel struct{}

var _ l2pyramid.GradientProvider = Sobel{}

// Gradient implements l2pyramid.GradientProvider.
func (Sobel) Gradient(src, dx, dy *l1image.Image[float32]) {
	w, h := src.Width, src.Height
	dx.Reshape(w, h)
	dy.Reshape(w, h)
	for y := 0; y < h; y++ {
		ym, yp := clamp(y-1, h), clamp(y+1, h)
		for x := 0; x < w; x++ {
			xm, xp := clamp(x-1, w), clamp(x+1, w)
			a := src.At(xm, ym)
			b := src.At(x, ym)
			c := src.At(xp, ym)
			d := src.At(xm, y)
			f := src.At(xp, y)
			g := src.At(xm, yp)
			hh := src.At(x, yp)
			i := src.At(xp, yp)
			dx.Set(x, y, ((c+2*f+i)-(a+2*d+g))/8)
			dy.Set(x, y, ((g+2*hh+i)-(a+2*b+c))/8)
		}
	}
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
