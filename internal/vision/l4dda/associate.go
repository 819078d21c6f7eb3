package l4dda

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidAssociation reports an associator configuration that cannot
// be used.
var ErrInvalidAssociation = errors.New("l4dda: invalid association config")

// Match pairs source descriptor Src with destination descriptor Dst.
type Match struct {
	Src   int
	Dst   int
	Score float64
}

// Associator matches a source descriptor set against a destination set.
// Every source and every destination index appears in at most one Match.
type Associator interface {
	Associate(src, dst []Descriptor) []Match
}

// AssociationConfig holds the gates shared by Greedy and Optimal.
type AssociationConfig struct {
	Metric Metric
	// MaxError rejects any pair scoring above it. Zero or negative
	// disables the gate.
	MaxError float64
	// AmbiguityRatio rejects a source whose best and second-best scores
	// satisfy second-best − best ≤ AmbiguityRatio·second-best. Zero
	// disables the check.
	AmbiguityRatio float64
	// BackwardsValidation enables reciprocal checking: the destination's
	// own best source must agree with the forward match.
	BackwardsValidation bool
	// BackwardsTolerance is how much better the destination's best source
	// may score than the forward pair before the match is rejected.
	BackwardsTolerance float64
	// Workers bounds score-matrix parallelism. Zero or negative means one
	// goroutine per row.
	Workers int
}

// DefaultAssociationConfig returns the Hamming defaults used for BRIEF.
func DefaultAssociationConfig() AssociationConfig {
	return AssociationConfig{
		Metric:              Hamming,
		MaxError:            64,
		AmbiguityRatio:      0.1,
		BackwardsValidation: true,
		BackwardsTolerance:  0,
		Workers:             4,
	}
}

// Validate checks cfg for values that can never produce a match.
func (c AssociationConfig) Validate() error {
	if c.Metric < Hamming || c.Metric > NCC {
		return fmt.Errorf("%w: %s", ErrInvalidAssociation, c.Metric)
	}
	if c.AmbiguityRatio < 0 || c.AmbiguityRatio >= 1 {
		return fmt.Errorf("%w: ambiguity ratio %v outside [0, 1)", ErrInvalidAssociation, c.AmbiguityRatio)
	}
	if c.BackwardsTolerance < 0 || math.IsNaN(c.BackwardsTolerance) {
		return fmt.Errorf("%w: backwards tolerance %v", ErrInvalidAssociation, c.BackwardsTolerance)
	}
	return nil
}

func (c AssociationConfig) accepts(score float64) bool {
	if math.IsNaN(score) || math.IsInf(score, 1) {
		return false
	}
	return c.MaxError <= 0 || score <= c.MaxError
}

// ScoreMatrix computes score[i][j] = Score(metric, src[i], dst[j]). Rows
// are filled concurrently; each goroutine owns its row.
func ScoreMatrix(metric Metric, src, dst []Descriptor, workers int) [][]float64 {
	scores := make([][]float64, len(src))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range src {
		g.Go(func() error {
			row := make([]float64, len(dst))
			for j := range dst {
				row[j] = Score(metric, src[i], dst[j])
			}
			scores[i] = row
			return nil
		})
	}
	_ = g.Wait()
	return scores
}

// Greedy is nearest-neighbour association with optional ambiguity and
// reciprocal rejection. Candidate matches are assigned best score first;
// a destination already taken is not offered to a later source.
type Greedy struct {
	cfg AssociationConfig
}

// NewGreedy returns a greedy associator.
func NewGreedy(cfg AssociationConfig) (*Greedy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Greedy{cfg: cfg}, nil
}

// Config returns the associator's configuration.
func (g *Greedy) Config() AssociationConfig {
	return g.cfg
}

// Associate implements Associator.
func (g *Greedy) Associate(src, dst []Descriptor) []Match {
	if len(src) == 0 || len(dst) == 0 {
		return nil
	}
	scores := ScoreMatrix(g.cfg.Metric, src, dst, g.cfg.Workers)

	var reverse []int
	if g.cfg.BackwardsValidation {
		reverse = bestPerColumn(scores, len(dst))
	}

	candidates := make([]Match, 0, len(src))
	var rejectedError, rejectedAmbiguous, rejectedBackwards int
	for i, row := range scores {
		best, second := bestTwo(row)
		if best < 0 || !g.cfg.accepts(row[best]) {
			rejectedError++
			continue
		}
		if g.ambiguous(row, best, second) {
			rejectedAmbiguous++
			tracef("src %d ambiguous: best %.4g second %.4g", i, row[best], row[second])
			continue
		}
		if reverse != nil {
			r := reverse[best]
			if r != i && row[best]-scores[r][best] > g.cfg.BackwardsTolerance {
				rejectedBackwards++
				tracef("src %d → dst %d rejected: dst prefers src %d (%.4g < %.4g)", i, best, r, scores[r][best], row[best])
				continue
			}
		}
		candidates = append(candidates, Match{Src: i, Dst: best, Score: row[best]})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score < candidates[b].Score
		}
		return candidates[a].Src < candidates[b].Src
	})
	taken := make([]bool, len(dst))
	matches := candidates[:0]
	for _, m := range candidates {
		if taken[m.Dst] {
			continue
		}
		taken[m.Dst] = true
		matches = append(matches, m)
	}
	diagf("greedy: %d×%d → %d matches (error %d, ambiguous %d, backwards %d)",
		len(src), len(dst), len(matches), rejectedError, rejectedAmbiguous, rejectedBackwards)
	return matches
}

func (g *Greedy) ambiguous(row []float64, best, second int) bool {
	if g.cfg.AmbiguityRatio <= 0 || second < 0 {
		return false
	}
	b, s := row[best], row[second]
	if math.IsInf(s, 1) {
		return false
	}
	return s-b <= g.cfg.AmbiguityRatio*s
}

// bestTwo returns the indices of the lowest and second-lowest scores in
// row, or -1 when absent. Ties resolve to the lower index.
func bestTwo(row []float64) (best, second int) {
	best, second = -1, -1
	for j, v := range row {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case best < 0 || v < row[best]:
			second = best
			best = j
		case second < 0 || v < row[second]:
			second = j
		}
	}
	return best, second
}

// bestPerColumn returns, for each destination, the source index with the
// lowest score.
func bestPerColumn(scores [][]float64, cols int) []int {
	out := make([]int, cols)
	for j := 0; j < cols; j++ {
		out[j] = -1
		for i := range scores {
			v := scores[i][j]
			if math.IsNaN(v) {
				continue
			}
			if out[j] < 0 || v < scores[out[j]][j] {
				out[j] = i
			}
		}
	}
	return out
}
