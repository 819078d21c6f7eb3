package l4dda

import (
	"errors"
	"fmt"

	"github.com/banshee-data/featuretrack/internal/vision/l1image"
	"golang.org/x/sync/errgroup"
)

// ErrMissingCapability is returned when a Pipeline is created without a
// detector, describer or associator.
var ErrMissingCapability = errors.New("l4dda: missing capability")

// Detector finds candidate interest points in a level-0 image.
type Detector interface {
	Detect(img *l1image.Image[float32]) []Point
}

// Describer computes the region descriptor around p. It returns false
// when the region does not fit in img. Describe is called concurrently
// for distinct points and must not mutate shared state.
type Describer interface {
	Describe(img *l1image.Image[float32], p Point) (Descriptor, bool)
	// Metric is the score the descriptors are meant to be compared with.
	Metric() Metric
}

// Candidate is a detected and described interest point.
type Candidate struct {
	Point      Point
	Descriptor Descriptor
}

// MatchedPair links a current-frame candidate to the index of the
// previous descriptor it was associated with.
type MatchedPair struct {
	Candidate Candidate
	Previous  int
	Score     float64
}

// Pipeline runs detection, description and association for one image.
type Pipeline struct {
	detector   Detector
	describer  Describer
	associator Associator
	workers    int
}

// NewPipeline wires the three capabilities together. workers bounds the
// number of concurrent Describe calls; zero or negative means unbounded.
func NewPipeline(det Detector, desc Describer, assoc Associator, workers int) (*Pipeline, error) {
	if det == nil || desc == nil || assoc == nil {
		return nil, fmt.Errorf("%w: detector=%t describer=%t associator=%t",
			ErrMissingCapability, det != nil, desc != nil, assoc != nil)
	}
	return &Pipeline{detector: det, describer: desc, associator: assoc, workers: workers}, nil
}

// Metric returns the describer's metric.
func (p *Pipeline) Metric() Metric {
	return p.describer.Metric()
}

// Describe describes a single point. Used when a track is spawned at an
// externally chosen location.
func (p *Pipeline) Describe(img *l1image.Image[float32], pt Point) (Descriptor, bool) {
	d, ok := p.describer.Describe(img, pt)
	if !ok {
		return Descriptor{}, false
	}
	return d.Clone(), true
}

// DetectAndDescribe detects interest points and describes each one. The
// result keeps detector order; points that cannot be described are
// dropped.
func (p *Pipeline) DetectAndDescribe(img *l1image.Image[float32]) []Candidate {
	points := p.detector.Detect(img)
	if len(points) == 0 {
		return nil
	}

	descs := make([]Descriptor, len(points))
	ok := make([]bool, len(points))
	var g errgroup.Group
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}
	for i := range points {
		g.Go(func() error {
			d, described := p.describer.Describe(img, points[i])
			if described {
				descs[i] = d.Clone()
				ok[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Candidate, 0, len(points))
	for i, pt := range points {
		if ok[i] {
			out = append(out, Candidate{Point: pt, Descriptor: descs[i]})
		}
	}
	diagf("detected %d points, described %d", len(points), len(out))
	return out
}

// DetectAndAssociate detects and describes candidates in img and
// associates them against previous. It returns every candidate along
// with the matched subset.
func (p *Pipeline) DetectAndAssociate(img *l1image.Image[float32], previous []Descriptor) ([]Candidate, []MatchedPair) {
	candidates := p.DetectAndDescribe(img)
	return candidates, p.Associate(candidates, previous)
}

// Associate matches already described candidates against previous.
func (p *Pipeline) Associate(candidates []Candidate, previous []Descriptor) []MatchedPair {
	if len(candidates) == 0 || len(previous) == 0 {
		return nil
	}
	src := make([]Descriptor, len(candidates))
	for i, c := range candidates {
		src[i] = c.Descriptor
	}
	matches := p.associator.Associate(src, previous)
	pairs := make([]MatchedPair, 0, len(matches))
	for _, m := range matches {
		if m.Src < 0 || m.Src >= len(candidates) || m.Dst < 0 || m.Dst >= len(previous) {
			opsf("associator returned out-of-range match %+v for %d×%d", m, len(candidates), len(previous))
			continue
		}
		pairs = append(pairs, MatchedPair{Candidate: candidates[m.Src], Previous: m.Dst, Score: m.Score})
	}
	return pairs
}
