package l2pyramid

import (
	"errors"
	"fmt"

	"github.com/banshee-data/featuretrack/internal/vision/l1image"
)

// ErrMissingCapability is returned when a Builder is created without a
// blur or gradient provider.
var ErrMissingCapability = errors.New("l2pyramid: missing capability")

// Blurrer low-pass filters src into dst before sub-sampling. dst is
// reshaped to src's dimensions.
type Blurrer interface {
	Blur(src, dst *l1image.Image[float32])
}

// GradientProvider computes the horizontal and vertical derivative of src.
// dx and dy are reshaped to src's dimensions.
type GradientProvider interface {
	Gradient(src, dx, dy *l1image.Image[float32])
}

// Builder rebuilds a Pyramid in place for every frame of a session.
// It is not safe for concurrent use.
type Builder struct {
	cfg  Config
	blur Blurrer
	grad GradientProvider

	pyr     *Pyramid
	input   *l1image.Image[float32]
	scratch *l1image.Image[float32]

	width  int
	height int
	frames uint64
}

// NewBuilder validates cfg and returns a Builder. Scale problems are fatal
// here and never surface again during tracking.
func NewBuilder(cfg Config, blur Blurrer, grad GradientProvider) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		opsf("rejecting pyramid config %v: %v", cfg.Scales, err)
		return nil, err
	}
	if blur == nil || grad == nil {
		return nil, fmt.Errorf("%w: blur=%t gradient=%t", ErrMissingCapability, blur != nil, grad != nil)
	}
	cfg.Scales = append([]int(nil), cfg.Scales...)
	return &Builder{
		cfg:     cfg,
		blur:    blur,
		grad:    grad,
		pyr:     newPyramid(cfg.Scales),
		input:   &l1image.Image[float32]{},
		scratch: &l1image.Image[float32]{},
	}, nil
}

// Config returns the builder's configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// Pyramid returns the most recently built pyramid, or nil before the first
// Update.
func (b *Builder) Pyramid() *Pyramid {
	if b.frames == 0 {
		return nil
	}
	return b.pyr
}

// Update builds the pyramid for frame. The returned Pyramid is owned by the
// Builder and is overwritten by the next call.
func (b *Builder) Update(frame l1image.Frame) (*Pyramid, error) {
	if frame == nil {
		return nil, ErrNilFrame
	}
	w, h := frame.Dims()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", l1image.ErrEmptyImage, w, h)
	}
	dims := LevelDims(b.cfg, w, h)
	last := dims[len(dims)-1]
	if last[0] == 0 || last[1] == 0 {
		return nil, fmt.Errorf("%w: %dx%d with scales %v", ErrFrameTooSmall, w, h, b.cfg.Scales)
	}
	if w != b.width || h != b.height {
		diagf("reshaping pyramid for %dx%d %s input: levels %v", w, h, frame.Kind(), dims)
		b.width, b.height = w, h
	}

	for k := range b.cfg.Scales {
		level := b.pyr.Levels[k]
		r := b.cfg.Ratio(k)
		switch {
		case k == 0 && r == 1:
			frame.ConvertTo(level)
		case k == 0:
			frame.ConvertTo(b.input)
			b.blur.Blur(b.input, b.scratch)
			subsample(b.scratch, level, r, dims[k])
		default:
			b.blur.Blur(b.pyr.Levels[k-1], b.scratch)
			subsample(b.scratch, level, r, dims[k])
		}
		b.grad.Gradient(level, b.pyr.DerivX[k], b.pyr.DerivY[k])
	}
	b.frames++

	if err := b.pyr.Check(); err != nil {
		opsf("gradient provider produced inconsistent pyramid: %v", err)
		return nil, err
	}
	tracef("frame %d pyramid built: %d levels", b.frames, len(dims))
	return b.pyr, nil
}

// subsample keeps every r-th pixel of src in both axes.
func subsample(src, dst *l1image.Image[float32], r int, dim [2]int) {
	dst.Reshape(dim[0], dim[1])
	for y := 0; y < dim[1]; y++ {
		in := src.Row(y * r)
		out := dst.Row(y)
		for x := range out {
			out[x] = in[x*r]
		}
	}
}
