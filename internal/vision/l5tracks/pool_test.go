package l5tracks

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/banshee-data/featuretrack/internal/vision/l3klt"
	"github.com/banshee-data/featuretrack/internal/vision/l4dda"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p, err := NewPool(cfg)
	require.NoError(t, err)
	return p
}

func spawnAt(t *testing.T, p *Pool, x, y float64) Track {
	t.Helper()
	tr, ok := p.Spawn(SpawnRequest{X: x, Y: y})
	require.True(t, ok, "spawn at (%v, %v)", x, y)
	return tr
}

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

func TestIDsStrictlyIncreasingAndNeverReused(t *testing.T) {
	t.Parallel()

	p := newPool(t, Config{})
	rng := rand.New(rand.NewSource(42))
	seen := map[int64]bool{}
	last := int64(0)

	for round := 0; round < 50; round++ {
		for i := 0; i < 1+rng.Intn(5); i++ {
			tr := spawnAt(t, p, rng.Float64()*100, rng.Float64()*100)
			assert.Greater(t, tr.ID, last)
			assert.False(t, seen[tr.ID], "id %d reused", tr.ID)
			seen[tr.ID] = true
			last = tr.ID
		}
		// Lose a random subset.
		var updates []Update
		for _, tr := range p.Live() {
			updates = append(updates, Update{ID: tr.ID, X: tr.X, Y: tr.Y, OK: rng.Intn(3) > 0})
		}
		p.Apply(updates)
		if round%10 == 9 {
			p.DropAll()
		}
	}
	assert.Equal(t, int64(1), minKey(seen))
	assert.Equal(t, last+1, p.NextID())
}

func minKey(m map[int64]bool) int64 {
	out := int64(math.MaxInt64)
	for k := range m {
		out = min(out, k)
	}
	return out
}

// ---------------------------------------------------------------------------
// Spawn rules
// ---------------------------------------------------------------------------

func TestSpawnBudget(t *testing.T) {
	t.Parallel()

	p := newPool(t, Config{MaxTracks: 3})
	for i := 0; i < 3; i++ {
		spawnAt(t, p, float64(10*i), 0)
	}
	_, ok := p.Spawn(SpawnRequest{X: 50, Y: 50})
	assert.False(t, ok)
	assert.False(t, p.CanSpawn(50, 50))
	assert.Equal(t, 1, p.Stats().RejectedBudget)

	require.True(t, p.Drop(1))
	assert.True(t, p.CanSpawn(50, 50))
	tr := spawnAt(t, p, 50, 50)
	assert.Equal(t, int64(4), tr.ID)
}

func TestSpawnSeparation(t *testing.T) {
	t.Parallel()

	p := newPool(t, Config{MinSeparation: 5})
	spawnAt(t, p, 20, 20)

	for _, pt := range [][2]float64{{20, 20}, {23, 23}, {24.9, 20}, {20, 15.1}} {
		_, ok := p.Spawn(SpawnRequest{X: pt[0], Y: pt[1]})
		assert.False(t, ok, "point %v is within 5 px", pt)
	}
	// Exactly MinSeparation away is allowed, across a cell boundary too.
	spawnAt(t, p, 25, 20)
	spawnAt(t, p, 20, 26)
	assert.Equal(t, 4, p.Stats().RejectedSeparation)
}

func TestSeparationFollowsMovedTracks(t *testing.T) {
	t.Parallel()

	p := newPool(t, Config{MinSeparation: 4})
	a := spawnAt(t, p, 10, 10)
	assert.False(t, p.CanSpawn(12, 10))

	p.Apply([]Update{{ID: a.ID, X: 40, Y: 40, OK: true}})
	assert.True(t, p.CanSpawn(12, 10), "old neighbourhood is free after the move")
	assert.False(t, p.CanSpawn(41, 41))
}

func TestSeparationMatchesBruteForce(t *testing.T) {
	t.Parallel()

	const sep = 7.0
	p := newPool(t, Config{MinSeparation: sep})
	rng := rand.New(rand.NewSource(7))
	var accepted [][2]float64
	for i := 0; i < 400; i++ {
		x, y := rng.Float64()*200-50, rng.Float64()*200-50
		want := true
		for _, q := range accepted {
			if math.Hypot(q[0]-x, q[1]-y) < sep {
				want = false
				break
			}
		}
		_, ok := p.Spawn(SpawnRequest{X: x, Y: y})
		require.Equal(t, want, ok, "point (%v, %v)", x, y)
		if ok {
			accepted = append(accepted, [2]float64{x, y})
		}
	}
	assert.Equal(t, len(accepted), p.Len())
}

func TestSpawnRejectsNaN(t *testing.T) {
	t.Parallel()

	p := newPool(t, DefaultConfig())
	_, ok := p.Spawn(SpawnRequest{X: math.NaN(), Y: 1})
	assert.False(t, ok)
	assert.Zero(t, p.Len())
}

// ---------------------------------------------------------------------------
// Status machine
// ---------------------------------------------------------------------------

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	p := newPool(t, DefaultConfig())
	desc := &l4dda.Descriptor{Bits: []uint64{7}}
	a, ok := p.Spawn(SpawnRequest{X: 10, Y: 10, Frame: 3, Descriptor: desc})
	require.True(t, ok)
	b := spawnAt(t, p, 50, 50)
	assert.Equal(t, StatusNew, a.Status)
	assert.Equal(t, uint64(3), a.SpawnFrame)

	dropped := p.Apply([]Update{
		{ID: a.ID, X: 11, Y: 9.5, OK: true},
		{ID: b.ID, OK: false, Fault: l3klt.FaultSingular},
		{ID: 99, OK: true},
	})
	require.Len(t, dropped, 1)
	assert.Equal(t, b.ID, dropped[0].ID)
	assert.Equal(t, StatusLost, dropped[0].Status)
	assert.Equal(t, l3klt.FaultSingular, dropped[0].Fault)

	got, ok := p.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, 1, got.Age)
	assert.Equal(t, 11.0, got.X)
	assert.Same(t, desc, got.Descriptor)

	_, ok = p.Get(b.ID)
	assert.False(t, ok, "lost tracks are removed")
	assert.Equal(t, 1, p.Stats().IgnoredUnknownUpdates)

	// A lost track never returns: further updates are ignored.
	assert.Empty(t, p.Apply([]Update{{ID: b.ID, X: 1, Y: 1, OK: true}}))
	_, ok = p.Get(b.ID)
	assert.False(t, ok)
}

func TestNaNUpdateLosesTrack(t *testing.T) {
	t.Parallel()

	p := newPool(t, DefaultConfig())
	a := spawnAt(t, p, 10, 10)
	dropped := p.Apply([]Update{{ID: a.ID, X: math.NaN(), Y: 3, OK: true}})
	require.Len(t, dropped, 1)
	assert.Zero(t, p.Len())
}

func TestDropAndDropAll(t *testing.T) {
	t.Parallel()

	p := newPool(t, DefaultConfig())
	for i := 0; i < 4; i++ {
		spawnAt(t, p, float64(20*i), 0)
	}
	assert.True(t, p.Drop(2))
	assert.False(t, p.Drop(2))

	all := p.DropAll()
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 3, 4}, []int64{all[0].ID, all[1].ID, all[2].ID})
	for _, tr := range all {
		assert.Equal(t, StatusLost, tr.Status)
	}
	assert.Zero(t, p.Len())
	assert.Equal(t, 4, p.Stats().TracksDropped)
	assert.Equal(t, int64(5), spawnAt(t, p, 0, 0).ID)
}

func TestKeyFrame(t *testing.T) {
	t.Parallel()

	p := newPool(t, DefaultConfig())
	a := spawnAt(t, p, 10, 10)
	p.SetKeyFrame()
	b := spawnAt(t, p, 40, 40)
	p.Apply([]Update{{ID: a.ID, X: 12, Y: 13, OK: true}, {ID: b.ID, X: 41, Y: 41, OK: true}})

	live := p.Live()
	require.Len(t, live, 2)
	assert.True(t, live[0].HasKey)
	assert.Equal(t, [2]float64{10, 10}, [2]float64{live[0].KeyX, live[0].KeyY})
	assert.False(t, live[1].HasKey)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	_, err := NewPool(Config{MinSeparation: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewPool(Config{MinSeparation: math.Inf(1)})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConcurrentReaders(t *testing.T) {
	t.Parallel()

	p := newPool(t, Config{MinSeparation: 1})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = p.Live()
				_ = p.Len()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		p.Spawn(SpawnRequest{X: float64(i * 2), Y: 0})
	}
	wg.Wait()
	assert.Equal(t, 100, p.Len())
}
