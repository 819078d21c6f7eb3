package l3klt

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidRadius reports a template radius below one pixel.
	ErrInvalidRadius = errors.New("l3klt: invalid template radius")
	// ErrInvalidConfig reports any other unusable tracker parameter.
	ErrInvalidConfig = errors.New("l3klt: invalid config")
)

// Config holds KLT parameters. It is immutable once a Tracker has been
// created from it.
type Config struct {
	// Radius is the template half-width; the window is (2r+1)² pixels.
	Radius int
	// MaxIterations bounds the Gauss-Newton iterations at each level.
	MaxIterations int
	// ConvergenceTol stops iterating at a level once the update step is
	// shorter than this, in that level's pixels.
	ConvergenceTol float64
	// MinDeterminant is the smallest structure-matrix determinant (mean
	// squared gradient units) considered well conditioned.
	MinDeterminant float64
	// MaxTrackingError is the largest mean absolute template residual
	// accepted at the finest level. Zero or negative disables the check.
	MaxTrackingError float64
}

// DefaultConfig returns the usual 7×7 template tracker.
func DefaultConfig() Config {
	return Config{
		Radius:           3,
		MaxIterations:    15,
		ConvergenceTol:   0.01,
		MinDeterminant:   1e-2,
		MaxTrackingError: 25,
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	if c.Radius < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidRadius, c.Radius)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations %d must be at least 1", ErrInvalidConfig, c.MaxIterations)
	}
	if !(c.ConvergenceTol > 0) || math.IsInf(c.ConvergenceTol, 0) {
		return fmt.Errorf("%w: convergence tolerance %v must be positive", ErrInvalidConfig, c.ConvergenceTol)
	}
	if c.MinDeterminant < 0 || math.IsNaN(c.MinDeterminant) {
		return fmt.Errorf("%w: min determinant %v must not be negative", ErrInvalidConfig, c.MinDeterminant)
	}
	if math.IsNaN(c.MaxTrackingError) {
		return fmt.Errorf("%w: max tracking error is NaN", ErrInvalidConfig)
	}
	return nil
}

// WindowSize returns the number of pixels in one template window.
func (c Config) WindowSize() int {
	w := 2*c.Radius + 1
	return w * w
}
