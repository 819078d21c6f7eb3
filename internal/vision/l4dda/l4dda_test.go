package l4dda

import (
	"math"
	"sync/atomic"
	"testing"

	"github.com/banshee-data/featuretrack/internal/vision/l1image"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bin(words ...uint64) Descriptor { return Descriptor{Bits: words} }

func vec(values ...float64) Descriptor { return Descriptor{Values: values} }

func greedy(t *testing.T, cfg AssociationConfig) *Greedy {
	t.Helper()
	g, err := NewGreedy(cfg)
	require.NoError(t, err)
	return g
}

// ---------------------------------------------------------------------------
// Scores
// ---------------------------------------------------------------------------

func TestScoreHamming(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Score(Hamming, bin(0xFF, 1), bin(0xFF, 1)))
	assert.Equal(t, 9.0, Score(Hamming, bin(0xFF, 0), bin(0x00, 1)))
	assert.True(t, math.IsInf(Score(Hamming, bin(1), bin(1, 2)), 1), "length mismatch")
	assert.True(t, math.IsInf(Score(Hamming, bin(1), vec(1)), 1), "kind mismatch")
}

func TestScoreEuclidean(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 5.0, Score(Euclidean, vec(0, 0), vec(3, 4)), 1e-12)
	assert.True(t, math.IsInf(Score(Euclidean, vec(), vec()), 1))
	assert.True(t, math.IsInf(Score(Euclidean, bin(1), bin(1)), 1))
}

func TestScoreNCC(t *testing.T) {
	t.Parallel()

	a := vec(1, 2, 3, 4)
	assert.InDelta(t, 0.0, Score(NCC, a, vec(10, 20, 30, 40)), 1e-12, "scaled copy is perfectly correlated")
	assert.InDelta(t, 0.0, Score(NCC, a, vec(6, 7, 8, 9)), 1e-12, "offset copy is perfectly correlated")
	assert.InDelta(t, 2.0, Score(NCC, a, vec(4, 3, 2, 1)), 1e-12, "reversed ramp is anti-correlated")
	assert.InDelta(t, 1.0, Score(NCC, a, vec(5, 5, 5, 5)), 1e-12, "constant patch is uncorrelated")
}

func TestParseMetric(t *testing.T) {
	t.Parallel()

	for _, m := range []Metric{Hamming, Euclidean, NCC} {
		got, err := ParseMetric(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMetric("surf")
	assert.Error(t, err)
}

func TestDescriptorClone(t *testing.T) {
	t.Parallel()

	d := bin(1, 2)
	c := d.Clone()
	d.Bits[0] = 99
	assert.Equal(t, uint64(1), c.Bits[0])
	assert.Equal(t, 128, c.Len())
	assert.True(t, Descriptor{}.Empty())
}

// ---------------------------------------------------------------------------
// Greedy association
// ---------------------------------------------------------------------------

func TestGreedyMatchesNearest(t *testing.T) {
	t.Parallel()

	g := greedy(t, AssociationConfig{Metric: Euclidean})
	src := []Descriptor{vec(0, 0), vec(10, 10), vec(20, 0)}
	dst := []Descriptor{vec(19, 1), vec(0.5, 0), vec(11, 9)}

	got := g.Associate(src, dst)
	want := []Match{
		{Src: 0, Dst: 1, Score: 0.5},
		{Src: 1, Dst: 2, Score: math.Sqrt2},
		{Src: 2, Dst: 0, Score: math.Sqrt2},
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-12 })); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

func TestGreedyRejectsAboveMaxError(t *testing.T) {
	t.Parallel()

	g := greedy(t, AssociationConfig{Metric: Hamming, MaxError: 2})
	got := g.Associate([]Descriptor{bin(0x0), bin(0xFF)}, []Descriptor{bin(0x1)})
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Src)
}

func TestGreedyRejectsAmbiguous(t *testing.T) {
	t.Parallel()

	src := []Descriptor{vec(0)}
	dst := []Descriptor{vec(10), vec(10.5)}

	g := greedy(t, AssociationConfig{Metric: Euclidean, AmbiguityRatio: 0.1})
	assert.Empty(t, g.Associate(src, dst), "10 and 10.5 are within 10% of each other")

	g = greedy(t, AssociationConfig{Metric: Euclidean, AmbiguityRatio: 0.01})
	assert.Len(t, g.Associate(src, dst), 1)

	// A single destination has no second best and is never ambiguous.
	g = greedy(t, AssociationConfig{Metric: Euclidean, AmbiguityRatio: 0.5})
	assert.Len(t, g.Associate(src, dst[:1]), 1)
}

func TestGreedyExclusiveAssignment(t *testing.T) {
	t.Parallel()

	// Both sources prefer dst 0; the better score wins it.
	g := greedy(t, AssociationConfig{Metric: Euclidean})
	got := g.Associate([]Descriptor{vec(2), vec(1)}, []Descriptor{vec(0), vec(100)})
	require.Len(t, got, 1)
	assert.Equal(t, Match{Src: 1, Dst: 0, Score: 1}, got[0])
}

func TestGreedyBackwardsValidation(t *testing.T) {
	t.Parallel()

	// A1's best is B1, but B1's best is A2 (whose own best is B2).
	a1, a2 := bin(0x07), bin(0x00)
	b1, b2 := bin(0x01), bin(0x00)
	src := []Descriptor{a1, a2}
	dst := []Descriptor{b1, b2}

	forward := greedy(t, AssociationConfig{Metric: Hamming})
	got := forward.Associate(src, dst)
	require.Len(t, got, 2)
	assert.Contains(t, got, Match{Src: 0, Dst: 0, Score: 2})

	strict := greedy(t, AssociationConfig{Metric: Hamming, BackwardsValidation: true})
	got = strict.Associate(src, dst)
	assert.Equal(t, []Match{{Src: 1, Dst: 1, Score: 0}}, got)

	tolerant := greedy(t, AssociationConfig{Metric: Hamming, BackwardsValidation: true, BackwardsTolerance: 1})
	assert.Len(t, tolerant.Associate(src, dst), 2, "B1 prefers A2 by exactly the tolerance")
}

func TestGreedyEmptyInputs(t *testing.T) {
	t.Parallel()

	g := greedy(t, DefaultAssociationConfig())
	assert.Nil(t, g.Associate(nil, []Descriptor{bin(1)}))
	assert.Nil(t, g.Associate([]Descriptor{bin(1)}, nil))
}

func TestAssociationConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultAssociationConfig().Validate())
	_, err := NewGreedy(AssociationConfig{Metric: Metric(9)})
	assert.ErrorIs(t, err, ErrInvalidAssociation)
	_, err = NewOptimal(AssociationConfig{AmbiguityRatio: 1})
	assert.ErrorIs(t, err, ErrInvalidAssociation)
	_, err = NewGreedy(AssociationConfig{BackwardsTolerance: -1})
	assert.ErrorIs(t, err, ErrInvalidAssociation)
}

// ---------------------------------------------------------------------------
// Optimal association
// ---------------------------------------------------------------------------

func TestAssignSquareOptimal(t *testing.T) {
	t.Parallel()

	//   [1 2 3]   optimal: 0→0, 1→1, 2→2 = 10
	//   [4 4 6]
	//   [9 8 5]
	cost := [][]float64{{1, 2, 3}, {4, 4, 6}, {9, 8, 5}}
	assert.Equal(t, []int{0, 1, 2}, Assign(cost))
}

func TestAssignRectangularAndForbidden(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Assign(nil))
	assert.Equal(t, []int{-1, -1}, Assign([][]float64{{}, {}}))

	// More rows than columns: one row stays unassigned.
	got := Assign([][]float64{{1}, {0.5}, {3}})
	assert.Equal(t, []int{-1, 0, -1}, got)

	// More columns than rows.
	got = Assign([][]float64{{4, 0.25, 2}})
	assert.Equal(t, []int{1}, got)

	// A fully forbidden row is never assigned.
	got = Assign([][]float64{{1, 2}, {forbidden, forbidden}})
	assert.Equal(t, []int{0, -1}, got)

	got = Assign([][]float64{{math.Inf(1), 1}, {math.NaN(), 2}})
	assert.Equal(t, []int{1, -1}, got)
}

// Small costs next to the forbidden marker must still be ordered exactly.
func TestAssignTallMatrixKeepsSmallCostsDistinct(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int{-1, 0, -1}, Assign([][]float64{{1}, {0}, {3}}))
	assert.Equal(t, []int{-1, -1, 0, -1}, Assign([][]float64{{1e-3}, {2e-3}, {1e-4}, {forbidden}}))
	assert.Equal(t, []int{-1, 1, 0}, Assign([][]float64{{0.3, 0.2}, {0.2, 0.1}, {0.1, 0.3}}))
}

// Allowed pairs are maximised before cost: taking the cheap 0→0 pair
// would strand row 1.
func TestAssignPrefersMoreAllowedPairs(t *testing.T) {
	t.Parallel()

	cost := [][]float64{{0, 3}, {1, forbidden}}
	assert.Equal(t, []int{1, 0}, Assign(cost))
}

func TestOptimalMatchesWhereGreedyCannot(t *testing.T) {
	t.Parallel()

	// Both sources prefer dst 0. Greedy gives it to src 0 and leaves src 1
	// unmatched; optimal pairs everything at total score 5 (vs 7).
	src := []Descriptor{vec(0), vec(3)}
	dst := []Descriptor{vec(1), vec(-3)}

	o, err := NewOptimal(AssociationConfig{Metric: Euclidean})
	require.NoError(t, err)
	got := o.Associate(src, dst)
	assert.Equal(t, []Match{{Src: 0, Dst: 1, Score: 3}, {Src: 1, Dst: 0, Score: 2}}, got)

	g := greedy(t, AssociationConfig{Metric: Euclidean})
	assert.Equal(t, []Match{{Src: 0, Dst: 0, Score: 1}}, g.Associate(src, dst))
}

// Several fresh detections competing for one retained descriptor: the
// closest one wins.
func TestOptimalManyCandidatesOneTarget(t *testing.T) {
	t.Parallel()

	o, err := NewOptimal(AssociationConfig{Metric: Euclidean})
	require.NoError(t, err)
	got := o.Associate([]Descriptor{vec(1), vec(0), vec(3)}, []Descriptor{vec(0)})
	assert.Equal(t, []Match{{Src: 1, Dst: 0, Score: 0}}, got)

	got = o.Associate([]Descriptor{vec(5), vec(2.5), vec(2), vec(9)}, []Descriptor{vec(2.25)})
	require.Len(t, got, 1)
	assert.Contains(t, []int{1, 2}, got[0].Src)
	assert.InDelta(t, 0.25, got[0].Score, 1e-12)
}

func TestOptimalHonoursMaxError(t *testing.T) {
	t.Parallel()

	o, err := NewOptimal(AssociationConfig{Metric: Euclidean, MaxError: 1})
	require.NoError(t, err)
	got := o.Associate([]Descriptor{vec(0), vec(50)}, []Descriptor{vec(0.5), vec(10)})
	assert.Equal(t, []Match{{Src: 0, Dst: 0, Score: 0.5}}, got)
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

type fixedDetector []Point

func (d fixedDetector) Detect(*l1image.Image[float32]) []Point { return d }

// pixelDescriber describes a point by the intensity under it and refuses
// points outside the image.
type pixelDescriber struct{ calls atomic.Int32 }

func (d *pixelDescriber) Describe(img *l1image.Image[float32], p Point) (Descriptor, bool) {
	d.calls.Add(1)
	x, y := int(p.X), int(p.Y)
	if !img.InBounds(x, y) {
		return Descriptor{}, false
	}
	return vec(float64(img.At(x, y))), true
}

func (d *pixelDescriber) Metric() Metric { return Euclidean }

func TestPipelineDetectAndAssociate(t *testing.T) {
	t.Parallel()

	img := l1image.New[float32](8, 8)
	for i := range img.Pix {
		img.Pix[i] = float32(i)
	}
	det := fixedDetector{{X: 1, Y: 0}, {X: 20, Y: 20}, {X: 3, Y: 2}, {X: 7, Y: 7}}
	desc := &pixelDescriber{}
	assoc := greedy(t, AssociationConfig{Metric: Euclidean, MaxError: 0.5})

	p, err := NewPipeline(det, desc, assoc, 2)
	require.NoError(t, err)
	assert.Equal(t, Euclidean, p.Metric())

	previous := []Descriptor{vec(63), vec(19.2), vec(500)}
	candidates, pairs := p.DetectAndAssociate(img, previous)

	assert.EqualValues(t, 4, desc.calls.Load())
	require.Len(t, candidates, 3, "the out-of-image point is dropped")
	assert.Equal(t, Point{X: 1, Y: 0}, candidates[0].Point, "detector order is kept")
	assert.Equal(t, Point{X: 3, Y: 2}, candidates[1].Point)

	require.Len(t, pairs, 2)
	byPrev := map[int]MatchedPair{}
	for _, pr := range pairs {
		byPrev[pr.Previous] = pr
	}
	assert.Equal(t, Point{X: 7, Y: 7}, byPrev[0].Candidate.Point)
	assert.Equal(t, Point{X: 3, Y: 2}, byPrev[1].Candidate.Point)
}

func TestNewPipelineRequiresCapabilities(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(nil, &pixelDescriber{}, greedy(t, DefaultAssociationConfig()), 1)
	assert.ErrorIs(t, err, ErrMissingCapability)
}
