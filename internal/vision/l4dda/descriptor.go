package l4dda

import (
	"fmt"
	"math"
	"math/bits"

	"gonum.org/v1/gonum/floats"
)

// Point is an interest point in level-0 pixel coordinates.
type Point struct {
	X, Y float64
	// Response is the detector's corner strength; higher is stronger.
	Response float64
}

// Descriptor is a region description. Exactly one of Bits (binary
// descriptors such as BRIEF or ORB) and Values (real-valued descriptors
// such as NCC templates) is set.
type Descriptor struct {
	Bits   []uint64
	Values []float64
}

// Binary reports whether d is a bit-string descriptor.
func (d Descriptor) Binary() bool {
	return d.Bits != nil
}

// Len returns the number of elements: bits for binary descriptors,
// values otherwise.
func (d Descriptor) Len() int {
	if d.Binary() {
		return 64 * len(d.Bits)
	}
	return len(d.Values)
}

// Empty reports whether d carries no data.
func (d Descriptor) Empty() bool {
	return len(d.Bits) == 0 && len(d.Values) == 0
}

// Clone returns a deep copy so the caller may retain d after the
// describer reuses its buffers.
func (d Descriptor) Clone() Descriptor {
	out := Descriptor{}
	if d.Bits != nil {
		out.Bits = append([]uint64(nil), d.Bits...)
	}
	if d.Values != nil {
		out.Values = append([]float64(nil), d.Values...)
	}
	return out
}

// Metric selects how two descriptors are compared. All metrics are
// "lower is better".
type Metric int

const (
	// Hamming counts differing bits of binary descriptors.
	Hamming Metric = iota
	// Euclidean is the L2 distance between real-valued descriptors.
	Euclidean
	// NCC is one minus the normalised cross-correlation, in [0, 2].
	NCC
)

func (m Metric) String() string {
	switch m {
	case Hamming:
		return "hamming"
	case Euclidean:
		return "euclidean"
	case NCC:
		return "ncc"
	default:
		return fmt.Sprintf("metric(%d)", int(m))
	}
}

// ParseMetric maps a configuration string onto a Metric.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "hamming":
		return Hamming, nil
	case "euclidean":
		return Euclidean, nil
	case "ncc":
		return NCC, nil
	}
	return 0, fmt.Errorf("l4dda: unknown metric %q", s)
}

// Score compares a and b under metric m. Descriptors of the wrong kind or
// of different lengths score +Inf and can never be matched.
func Score(m Metric, a, b Descriptor) float64 {
	switch m {
	case Hamming:
		if !a.Binary() || !b.Binary() || len(a.Bits) != len(b.Bits) {
			return math.Inf(1)
		}
		n := 0
		for i, w := range a.Bits {
			n += bits.OnesCount64(w ^ b.Bits[i])
		}
		return float64(n)
	case Euclidean:
		if a.Binary() || b.Binary() || len(a.Values) != len(b.Values) || len(a.Values) == 0 {
			return math.Inf(1)
		}
		return floats.Distance(a.Values, b.Values, 2)
	case NCC:
		if a.Binary() || b.Binary() || len(a.Values) != len(b.Values) || len(a.Values) == 0 {
			return math.Inf(1)
		}
		return 1 - correlation(a.Values, b.Values)
	default:
		return math.Inf(1)
	}
}

// correlation returns the normalised cross-correlation of a and b. A
// constant input has no defined correlation and is treated as uncorrelated.
func correlation(a, b []float64) float64 {
	n := float64(len(a))
	ma := floats.Sum(a) / n
	mb := floats.Sum(b) / n
	var sab, saa, sbb float64
	for i := range a {
		da := a[i] - ma
		db := b[i] - mb
		sab += da * db
		saa += da * da
		sbb += db * db
	}
	if saa == 0 || sbb == 0 {
		return 0
	}
	return sab / math.Sqrt(saa*sbb)
}
