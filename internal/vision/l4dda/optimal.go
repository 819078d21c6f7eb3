package l4dda

import "math"

// forbidden marks a pair that must not be assigned. Callers may also pass
// +Inf or NaN.
const forbidden = 1e18

func allowed(c float64) bool { return c < forbidden }

// Optimal associates by minimising the total score over all accepted
// pairs (Kuhn–Munkres). Pairs scoring above MaxError are forbidden.
// Ambiguity and reciprocal checks do not apply: the global assignment
// already resolves competition between sources.
type Optimal struct {
	cfg AssociationConfig
}

// NewOptimal returns an optimal associator.
func NewOptimal(cfg AssociationConfig) (*Optimal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Optimal{cfg: cfg}, nil
}

// Associate implements Associator. Matches are returned in source order.
func (o *Optimal) Associate(src, dst []Descriptor) []Match {
	if len(src) == 0 || len(dst) == 0 {
		return nil
	}
	scores := ScoreMatrix(o.cfg.Metric, src, dst, o.cfg.Workers)
	cost := make([][]float64, len(scores))
	for i, row := range scores {
		cost[i] = make([]float64, len(row))
		for j, v := range row {
			if o.cfg.accepts(v) {
				cost[i][j] = v
			} else {
				cost[i][j] = forbidden
			}
		}
	}

	assign := Assign(cost)
	var matches []Match
	for i, j := range assign {
		if j >= 0 {
			matches = append(matches, Match{Src: i, Dst: j, Score: scores[i][j]})
		}
	}
	diagf("optimal: %d×%d → %d matches", len(src), len(dst), len(matches))
	return matches
}

// Assign solves the rectangular assignment problem for an n×m cost
// matrix. It returns assign[i] = column assigned to row i, or -1 when row
// i is unassigned. Costs ≥ 1e18, +Inf and NaN are forbidden.
//
// The solver maximises the number of allowed pairs, then minimises their
// total cost. The matrix is padded to square with zero-cost dummy cells,
// and forbidden cells carry a penalty larger than any achievable spread of
// allowed costs.
func Assign(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	if m == 0 {
		return result
	}

	dim := max(n, m)
	var maxAbs float64
	for _, row := range cost {
		for _, c := range row {
			if allowed(c) {
				maxAbs = max(maxAbs, math.Abs(c))
			}
		}
	}
	penalty := (2*maxAbs + 1) * float64(dim)
	at := func(i, j int) float64 {
		switch {
		case i >= n || j >= m:
			return 0
		case allowed(cost[i][j]):
			return cost[i][j]
		default:
			return penalty
		}
	}

	// Jonker-Volgenant shortest augmenting path with row/column
	// potentials; index 0 is a virtual column, so arrays are 1-based.
	const inf = math.MaxFloat64 / 2
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1)
	way := make([]int, dim+1)
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := at(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	for j := 1; j <= dim; j++ {
		i := p[j] - 1
		if i < 0 || i >= n || j-1 >= m {
			continue
		}
		if allowed(cost[i][j-1]) {
			result[i] = j - 1
		}
	}
	return result
}
