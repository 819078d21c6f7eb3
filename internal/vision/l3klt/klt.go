package l3klt

import (
	"fmt"
	"math"

	"github.com/banshee-data/featuretrack/internal/vision/l1image"
	"github.com/banshee-data/featuretrack/internal/vision/l2pyramid"
	"gonum.org/v1/gonum/mat"
)

// Fault classifies why a feature could not be tracked.
type Fault int

const (
	// Success means the feature converged at every level.
	Success Fault = iota
	// FaultSingular means the template lacks gradient diversity.
	FaultSingular
	// FaultOutOfBounds means the window left a level.
	FaultOutOfBounds
	// FaultNotConverged means the iteration budget ran out at some level.
	FaultNotConverged
	// FaultLargeError means the converged window differs too much from
	// the template.
	FaultLargeError
	// FaultDegenerate means NaN or Inf appeared in the solve.
	FaultDegenerate
)

func (f Fault) String() string {
	switch f {
	case Success:
		return "success"
	case FaultSingular:
		return "singular"
	case FaultOutOfBounds:
		return "out_of_bounds"
	case FaultNotConverged:
		return "not_converged"
	case FaultLargeError:
		return "large_error"
	case FaultDegenerate:
		return "degenerate"
	default:
		return fmt.Sprintf("fault(%d)", int(f))
	}
}

// Faults lists every fault value, for metrics labelling.
var Faults = []Fault{Success, FaultSingular, FaultOutOfBounds, FaultNotConverged, FaultLargeError, FaultDegenerate}

// Result is the outcome of one Track call. X and Y are in input-frame
// pixels and are only meaningful when Fault is Success.
type Result struct {
	X, Y       float64
	Fault      Fault
	Level      int // level that failed, or 0 on success
	Iterations int // summed over all levels visited
	Error      float64
}

// Converged reports whether the track succeeded.
func (r Result) Converged() bool {
	return r.Fault == Success
}

// levelTemplate is the appearance of a feature at one pyramid level.
type levelTemplate struct {
	intensity []float32
	dx, dy    []float32
}

// Feature is the KLT appearance model of one track: the template window
// sampled at every pyramid level of the frame it was described in.
type Feature struct {
	radius int
	levels []levelTemplate
}

// NewFeature allocates a feature for cfg.Radius. Call
// Tracker.SetDescription before tracking it.
func NewFeature(cfg Config) *Feature {
	return &Feature{radius: cfg.Radius}
}

// Described reports whether the feature holds a template.
func (f *Feature) Described() bool {
	return f != nil && len(f.levels) > 0
}

// Tracker tracks features in a pyramid. It owns the gonum workspaces for
// the 2×2 solve and a window buffer, so each goroutine needs its own
// Tracker. Features may be shared between trackers as long as only one
// tracker uses a given feature at a time.
type Tracker struct {
	cfg Config

	window []float32
	g      *mat.SymDense
	chol   mat.Cholesky
	b      *mat.VecDense
	d      *mat.VecDense
}

// NewTracker validates cfg and returns a Tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{
		cfg:    cfg,
		window: make([]float32, cfg.WindowSize()),
		g:      mat.NewSymDense(2, nil),
		b:      mat.NewVecDense(2, nil),
		d:      mat.NewVecDense(2, nil),
	}, nil
}

// Config returns the tracker's configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// SetDescription samples f's template at input-frame position (x, y) on
// every level of pyr. It returns false, leaving f undescribed, when the
// window does not fit on some level.
func (t *Tracker) SetDescription(f *Feature, x, y float64, pyr *l2pyramid.Pyramid) bool {
	if f.radius != t.cfg.Radius {
		opsf("feature radius %d does not match tracker radius %d", f.radius, t.cfg.Radius)
		return false
	}
	n := pyr.NumLevels()
	if cap(f.levels) < n {
		f.levels = make([]levelTemplate, n)
	}
	f.levels = f.levels[:n]
	size := t.cfg.WindowSize()
	for k := 0; k < n; k++ {
		s := pyr.Scale(k)
		lx, ly := x/s, y/s
		tpl := &f.levels[k]
		if len(tpl.intensity) != size {
			tpl.intensity = make([]float32, size)
			tpl.dx = make([]float32, size)
			tpl.dy = make([]float32, size)
		}
		if !l1image.Region(pyr.Levels[k], lx, ly, f.radius, tpl.intensity) ||
			!l1image.Region(pyr.DerivX[k], lx, ly, f.radius, tpl.dx) ||
			!l1image.Region(pyr.DerivY[k], lx, ly, f.radius, tpl.dy) {
			f.levels = f.levels[:0]
			return false
		}
	}
	return true
}

// Track refines the position of f, last seen at input-frame (x, y), in
// pyr. Levels are processed coarse to fine and the first failing level
// aborts the track.
func (t *Tracker) Track(f *Feature, x, y float64, pyr *l2pyramid.Pyramid) Result {
	if !isFinite(x, y) {
		return Result{Fault: FaultDegenerate}
	}
	n := pyr.NumLevels()
	if len(f.levels) != n {
		opsf("feature has %d template levels, pyramid has %d", len(f.levels), n)
		return Result{Fault: FaultOutOfBounds}
	}

	res := Result{}
	top := n - 1
	px, py := x/pyr.Scale(top), y/pyr.Scale(top)
	for k := top; k >= 0; k-- {
		if k < top {
			ratio := pyr.Scale(k+1) / pyr.Scale(k)
			px *= ratio
			py *= ratio
		}
		var iters int
		var fault Fault
		px, py, iters, fault = t.trackLevel(&f.levels[k], pyr.Levels[k], px, py)
		res.Iterations += iters
		tracef("level %d: %d iterations, %s", k, iters, fault)
		if fault != Success {
			res.Fault = fault
			res.Level = k
			return res
		}
	}

	// Residual against the finest template at the converged position.
	if !l1image.Region(pyr.Levels[0], px, py, t.cfg.Radius, t.window) {
		res.Fault = FaultOutOfBounds
		return res
	}
	res.Error = meanAbsDiff(f.levels[0].intensity, t.window)
	if t.cfg.MaxTrackingError > 0 && res.Error > t.cfg.MaxTrackingError {
		res.Fault = FaultLargeError
		return res
	}
	s := pyr.Scale(0)
	res.X, res.Y = px*s, py*s
	return res
}

// trackLevel runs Gauss-Newton at one level starting from (px, py) in
// that level's pixels.
func (t *Tracker) trackLevel(tpl *levelTemplate, img *l1image.Image[float32], px, py float64) (float64, float64, int, Fault) {
	var gxx, gxy, gyy float64
	for i := range tpl.dx {
		dx, dy := float64(tpl.dx[i]), float64(tpl.dy[i])
		gxx += dx * dx
		gxy += dx * dy
		gyy += dy * dy
	}
	n := float64(len(tpl.dx))
	t.g.SetSym(0, 0, gxx/n)
	t.g.SetSym(0, 1, gxy/n)
	t.g.SetSym(1, 1, gyy/n)
	det := mat.Det(t.g)
	if math.IsNaN(det) {
		return px, py, 0, FaultDegenerate
	}
	if det < t.cfg.MinDeterminant {
		return px, py, 0, FaultSingular
	}
	if ok := t.chol.Factorize(t.g); !ok {
		return px, py, 0, FaultSingular
	}

	tol := t.cfg.ConvergenceTol
	for iter := 1; iter <= t.cfg.MaxIterations; iter++ {
		if !l1image.Region(img, px, py, t.cfg.Radius, t.window) {
			return px, py, iter - 1, FaultOutOfBounds
		}
		var bx, by float64
		for i, v := range t.window {
			e := float64(tpl.intensity[i] - v)
			bx += e * float64(tpl.dx[i])
			by += e * float64(tpl.dy[i])
		}
		t.b.SetVec(0, bx/n)
		t.b.SetVec(1, by/n)
		if err := t.chol.SolveVecTo(t.d, t.b); err != nil {
			return px, py, iter, FaultSingular
		}
		dx, dy := t.d.AtVec(0), t.d.AtVec(1)
		if !isFinite(dx, dy) {
			return px, py, iter, FaultDegenerate
		}
		px += dx
		py += dy
		if math.Hypot(dx, dy) < tol {
			return px, py, iter, Success
		}
	}
	return px, py, t.cfg.MaxIterations, FaultNotConverged
}

func meanAbsDiff(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i] - b[i]))
	}
	return sum / float64(len(a))
}

func isFinite(x, y float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0) && !math.IsNaN(y) && !math.IsInf(y, 0)
}
