package l2pyramid

import (
	"errors"
	"fmt"

	"github.com/banshee-data/featuretrack/internal/vision/l1image"
)

var (
	// ErrInvalidScales reports a scale sequence that is empty, non-positive,
	// not strictly increasing, or whose consecutive ratios are not integral.
	ErrInvalidScales = errors.New("l2pyramid: invalid scale sequence")
	// ErrInconsistentPyramid reports base and derivative pyramids that
	// disagree on level count or level dimensions.
	ErrInconsistentPyramid = errors.New("l2pyramid: inconsistent pyramid")
	// ErrFrameTooSmall reports a frame whose coarsest level would be empty.
	ErrFrameTooSmall = errors.New("l2pyramid: frame too small for scale sequence")
	// ErrNilFrame reports a nil input frame.
	ErrNilFrame = errors.New("l2pyramid: nil frame")
)

// Config holds pyramid construction parameters. It is immutable once a
// Builder has been created from it.
type Config struct {
	// Scales is the down-sampling factor of each level relative to the
	// input frame, e.g. [1, 2, 4].
	Scales []int
}

// DefaultConfig returns the usual three-level [1, 2, 4] pyramid.
func DefaultConfig() Config {
	return Config{Scales: []int{1, 2, 4}}
}

// Validate checks the scale sequence.
func (c Config) Validate() error {
	if len(c.Scales) == 0 {
		return fmt.Errorf("%w: no levels", ErrInvalidScales)
	}
	for i, s := range c.Scales {
		if s <= 0 {
			return fmt.Errorf("%w: scale[%d]=%d must be positive", ErrInvalidScales, i, s)
		}
		if i == 0 {
			continue
		}
		prev := c.Scales[i-1]
		if s <= prev {
			return fmt.Errorf("%w: scale[%d]=%d must exceed scale[%d]=%d", ErrInvalidScales, i, s, i-1, prev)
		}
		if s%prev != 0 {
			return fmt.Errorf("%w: scale[%d]=%d is not a multiple of scale[%d]=%d", ErrInvalidScales, i, s, i-1, prev)
		}
	}
	return nil
}

// Ratio returns the down-sampling factor between level k-1 and level k.
// For k == 0 it is the factor between the input frame and level 0.
func (c Config) Ratio(k int) int {
	if k == 0 {
		return c.Scales[0]
	}
	return c.Scales[k] / c.Scales[k-1]
}

// Pyramid is the multi-resolution view of one frame. Levels[k] is the
// intensity image at Scales[k]; DerivX[k] and DerivY[k] are its gradients.
// All three sequences are read-only once returned by Builder.Update.
type Pyramid struct {
	Scales []int
	Levels []*l1image.Image[float32]
	DerivX []*l1image.Image[float32]
	DerivY []*l1image.Image[float32]
}

func newPyramid(scales []int) *Pyramid {
	p := &Pyramid{
		Scales: append([]int(nil), scales...),
		Levels: make([]*l1image.Image[float32], len(scales)),
		DerivX: make([]*l1image.Image[float32], len(scales)),
		DerivY: make([]*l1image.Image[float32], len(scales)),
	}
	for i := range scales {
		p.Levels[i] = &l1image.Image[float32]{}
		p.DerivX[i] = &l1image.Image[float32]{}
		p.DerivY[i] = &l1image.Image[float32]{}
	}
	return p
}

// NumLevels returns the number of pyramid levels.
func (p *Pyramid) NumLevels() int {
	return len(p.Levels)
}

// Scale returns the scale factor of level k as a float.
func (p *Pyramid) Scale(k int) float64 {
	return float64(p.Scales[k])
}

// Check verifies that the base and derivative pyramids agree on level
// count and on every level's dimensions.
func (p *Pyramid) Check() error {
	n := len(p.Scales)
	if len(p.Levels) != n || len(p.DerivX) != n || len(p.DerivY) != n {
		return fmt.Errorf("%w: %d scales, %d levels, %d dx, %d dy",
			ErrInconsistentPyramid, n, len(p.Levels), len(p.DerivX), len(p.DerivY))
	}
	for k := 0; k < n; k++ {
		w, h := p.Levels[k].Dims()
		dxw, dxh := p.DerivX[k].Dims()
		dyw, dyh := p.DerivY[k].Dims()
		if dxw != w || dxh != h || dyw != w || dyh != h {
			return fmt.Errorf("%w: level %d is %dx%d, dx %dx%d, dy %dx%d",
				ErrInconsistentPyramid, k, w, h, dxw, dxh, dyw, dyh)
		}
	}
	return nil
}

// LevelDims returns the dimensions of every level for an input of the
// given size: each level is the previous one divided by the scale ratio,
// rounded down.
func LevelDims(cfg Config, width, height int) [][2]int {
	dims := make([][2]int, len(cfg.Scales))
	w, h := width, height
	for k := range cfg.Scales {
		r := cfg.Ratio(k)
		w /= r
		h /= r
		dims[k] = [2]int{w, h}
	}
	return dims
}
