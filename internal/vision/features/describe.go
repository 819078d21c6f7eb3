package features

import (
	"math"
	"math/rand"

	"github.com/banshee-data/featuretrack/internal/vision/l1image"
	"github.com/banshee-data/featuretrack/internal/vision/l4dda"
)

// DescriberConfig holds the parameters shared by describer variants.
type DescriberConfig struct {
	// Radius is the half-width of the described region.
	Radius int
	// Bits is the BRIEF descriptor length; it is rounded up to a
	// multiple of 64.
	Bits int
	// Seed fixes the BRIEF sampling pattern. Descriptors are only
	// comparable between describers built with the same seed.
	Seed int64
}

// DefaultDescriberConfig returns a 256-bit BRIEF over a 33×33 region.
func DefaultDescriberConfig() DescriberConfig {
	return DescriberConfig{Radius: 16, Bits: 256, Seed: 0x5eed}
}

// Brief is the binary BRIEF describer: each bit compares the 3×3 mean
// intensity at two offsets drawn once from an isotropic Gaussian. It is
// immutable after construction and safe for concurrent use.
type Brief struct {
	radius int
	pairs  [][4]int // ax, ay, bx, by
	words  int
}

var _ l4dda.Describer = (*Brief)(nil)

// NewBrief builds the sampling pattern for cfg.
func NewBrief(cfg DescriberConfig) *Brief {
	r := max(cfg.Radius, 2)
	n := max(cfg.Bits, 64)
	words := (n + 63) / 64
	n = words * 64

	rng := rand.New(rand.NewSource(cfg.Seed))
	sigma := float64(r) / 2
	limit := r - 1 // leave room for the 3×3 mean
	draw := func() int {
		v := int(math.Round(rng.NormFloat64() * sigma))
		return max(-limit, min(limit, v))
	}
	pairs := make([][4]int, n)
	for i := range pairs {
		pairs[i] = [4]int{draw(), draw(), draw(), draw()}
	}
	return &Brief{radius: r, pairs: pairs, words: words}
}

// Metric implements l4dda.Describer.
func (b *Brief) Metric() l4dda.Metric { return l4dda.Hamming }

// Describe implements l4dda.Describer.
func (b *Brief) Describe(img *l1image.Image[float32], p l4dda.Point) (l4dda.Descriptor, bool) {
	cx, cy := int(math.Round(p.X)), int(math.Round(p.Y))
	if !boxFits(img, cx, cy, b.radius) {
		return l4dda.Descriptor{}, false
	}
	bits := make([]uint64, b.words)
	for i, pr := range b.pairs {
		if mean3(img, cx+pr[0], cy+pr[1]) < mean3(img, cx+pr[2], cy+pr[3]) {
			bits[i/64] |= 1 << uint(i%64)
		}
	}
	return l4dda.Descriptor{Bits: bits}, true
}

func boxFits(img *l1image.Image[float32], cx, cy, r int) bool {
	return cx-r >= 0 && cy-r >= 0 && cx+r < img.Width && cy+r < img.Height
}

func mean3(img *l1image.Image[float32], x, y int) float32 {
	var s float32
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			s += img.At(x+i, y+j)
		}
	}
	return s / 9
}

// Template describes a point by its raw (2r+1)² intensity window, sampled
// bicubically, compared with normalised cross-correlation.
type Template struct {
	radius int
}

var _ l4dda.Describer = (*Template)(nil)

// NewTemplate returns an NCC template describer.
func NewTemplate(cfg DescriberConfig) *Template {
	return &Template{radius: max(cfg.Radius, 1)}
}

// Metric implements l4dda.Describer.
func (d *Template) Metric() l4dda.Metric { return l4dda.NCC }

// Describe implements l4dda.Describer.
func (d *Template) Describe(img *l1image.Image[float32], p l4dda.Point) (l4dda.Descriptor, bool) {
	w := 2*d.radius + 1
	buf := make([]float32, w*w)
	if !l1image.Region(img, p.X, p.Y, d.radius, buf) {
		return l4dda.Descriptor{}, false
	}
	values := make([]float64, len(buf))
	for i, v := range buf {
		values[i] = float64(v)
	}
	return l4dda.Descriptor{Values: values}, true
}
