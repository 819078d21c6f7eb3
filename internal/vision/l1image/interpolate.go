package l1image

import "math"

// cubicWeights returns the Keys cubic convolution (a = -0.5) weights for
// taps -1, 0, 1, 2 at fractional position a in [0, 1). They are exact at
// a = 0 and reproduce quadratics.
func cubicWeights(a float32) (w0, w1, w2, w3 float32) {
	w0 = ((-0.5*a+1)*a - 0.5) * a
	w1 = (1.5*a-2.5)*a*a + 1
	w2 = ((-1.5*a+2)*a + 0.5) * a
	w3 = (0.5*a - 0.5) * a * a
	return
}

// CanInterpolate reports whether cubic sampling at (x, y) stays inside img,
// including the -1 and +2 neighbours on each axis.
func CanInterpolate(img *Image[float32], x, y float64) bool {
	return x >= 1 && y >= 1 && x < float64(img.Width-2) && y < float64(img.Height-2)
}

// Bicubic samples img at sub-pixel (x, y). The caller guarantees
// CanInterpolate(img, x, y).
func Bicubic(img *Image[float32], x, y float64) float32 {
	xt := int(x)
	yt := int(y)
	wx0, wx1, wx2, wx3 := cubicWeights(float32(x - float64(xt)))
	wy0, wy1, wy2, wy3 := cubicWeights(float32(y - float64(yt)))

	p := img.Pix
	row := func(yy int) float32 {
		i := yy*img.Stride + xt
		return wx0*p[i-1] + wx1*p[i] + wx2*p[i+1] + wx3*p[i+2]
	}
	return wy0*row(yt-1) + wy1*row(yt) + wy2*row(yt+1) + wy3*row(yt+2)
}

// RegionInBounds reports whether a (2r+1)×(2r+1) window centred on (cx, cy)
// can be sampled.
func RegionInBounds(img *Image[float32], cx, cy float64, r int) bool {
	if math.IsNaN(cx) || math.IsNaN(cy) {
		return false
	}
	fr := float64(r)
	return CanInterpolate(img, cx-fr, cy-fr) && CanInterpolate(img, cx+fr, cy+fr)
}

// Region samples a (2r+1)×(2r+1) window centred on (cx, cy) into out, row
// major. It returns false without writing when the window is out of bounds
// or out is too short.
func Region(img *Image[float32], cx, cy float64, r int, out []float32) bool {
	w := 2*r + 1
	if len(out) < w*w || !RegionInBounds(img, cx, cy, r) {
		return false
	}
	x0 := cx - float64(r)
	y0 := cy - float64(r)
	xt := int(x0)
	yt := int(y0)
	// All samples share the same fractional offsets.
	wx0, wx1, wx2, wx3 := cubicWeights(float32(x0 - float64(xt)))
	wy0, wy1, wy2, wy3 := cubicWeights(float32(y0 - float64(yt)))

	p := img.Pix
	s := img.Stride
	k := 0
	for j := 0; j < w; j++ {
		i := (yt+j)*s + xt
		for ii := 0; ii < w; ii++ {
			r0 := wx0*p[i-s-1] + wx1*p[i-s] + wx2*p[i-s+1] + wx3*p[i-s+2]
			r1 := wx0*p[i-1] + wx1*p[i] + wx2*p[i+1] + wx3*p[i+2]
			r2 := wx0*p[i+s-1] + wx1*p[i+s] + wx2*p[i+s+1] + wx3*p[i+s+2]
			r3 := wx0*p[i+2*s-1] + wx1*p[i+2*s] + wx2*p[i+2*s+1] + wx3*p[i+2*s+2]
			out[k] = wy0*r0 + wy1*r1 + wy2*r2 + wy3*r3
			i++
			k++
		}
	}
	return true
}
