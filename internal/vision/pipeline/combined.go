package pipeline

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/banshee-data/featuretrack/internal/vision/debug"
	"github.com/banshee-data/featuretrack/internal/vision/l1image"
	"github.com/banshee-data/featuretrack/internal/vision/l2pyramid"
	"github.com/banshee-data/featuretrack/internal/vision/l3klt"
	"github.com/banshee-data/featuretrack/internal/vision/l4dda"
	"github.com/banshee-data/featuretrack/internal/vision/l5tracks"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Spawn sources recorded by the debug collector.
const (
	SourceManual       = "manual"
	SourceDetection    = "detection"
	SourceReactivation = "reactivation"
	SourceRespawn      = "respawn"
)

// retained is the descriptor of a track dropped since the last DDA pass.
type retained struct {
	trackID    int64
	descriptor l4dda.Descriptor
}

// CombinedTracker fuses per-frame KLT refinement with periodic
// detect-describe-associate reactivation. It owns the pyramid buffers and
// the track pool for one frame sequence. All methods are safe for
// concurrent use; ProcessFrame serialises with every other call.
type CombinedTracker struct {
	cfg       Config
	normalize func(x, y float64) (float64, float64)

	builder  *l2pyramid.Builder
	pool     *l5tracks.Pool
	dda      *l4dda.Pipeline // nil when no detector/describer is configured
	trackers []*l3klt.Tracker

	debug    *debug.DebugCollector
	observer FrameObserver

	pyr        *l2pyramid.Pyramid
	frames     uint64
	spawned    []l5tracks.Track
	dropped    []l5tracks.Track
	candidates []l4dda.Candidate
	detected   bool // candidates is valid for the current pyramid

	retained      []retained
	dropsSinceDDA int

	metrics Metrics

	mu sync.Mutex
}

// NewCombinedTracker validates cfg and wires the capabilities together.
// Configuration problems are reported here and never during tracking.
func NewCombinedTracker(cfg Config, caps Capabilities) (*CombinedTracker, error) {
	if err := cfg.Validate(); err != nil {
		opsf("rejecting tracker config: %v", err)
		return nil, err
	}
	builder, err := l2pyramid.NewBuilder(cfg.Pyramid, caps.Blurrer, caps.Gradient)
	if err != nil {
		return nil, err
	}
	pool, err := l5tracks.NewPool(cfg.Pool)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	cfg.Workers = workers
	trackers := make([]*l3klt.Tracker, workers)
	for i := range trackers {
		if trackers[i], err = l3klt.NewTracker(cfg.KLT); err != nil {
			return nil, err
		}
	}

	var dda *l4dda.Pipeline
	switch {
	case caps.Detector != nil && caps.Describer != nil:
		assoc := caps.Associator
		if assoc == nil {
			if assoc, err = newAssociator(cfg, caps.Describer.Metric()); err != nil {
				return nil, err
			}
		}
		if dda, err = l4dda.NewPipeline(caps.Detector, caps.Describer, assoc, workers); err != nil {
			return nil, err
		}
	case cfg.needsDDA():
		return nil, fmt.Errorf("%w: reactivation and respawn need a detector and a describer", ErrMissingCapability)
	}

	normalize := caps.Normalize
	if normalize == nil {
		normalize = func(x, y float64) (float64, float64) { return x, y }
	}

	return &CombinedTracker{
		cfg:       cfg,
		normalize: normalize,
		builder:   builder,
		pool:      pool,
		dda:       dda,
		trackers:  trackers,
		metrics:   Metrics{Faults: make(map[string]int)},
	}, nil
}

// Config returns the tracker's configuration.
func (c *CombinedTracker) Config() Config {
	return c.cfg
}

// SetDebugCollector attaches a collector that records per-frame
// internals. Pass nil to detach.
func (c *CombinedTracker) SetDebugCollector(d *debug.DebugCollector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debug = d
}

// SetFrameObserver attaches an observer notified after every frame.
func (c *CombinedTracker) SetFrameObserver(o FrameObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// ProcessFrame builds the pyramid for frame, refines every live track and
// commits the results. Per-track failures never surface as errors; only a
// frame the pyramid builder rejects does.
func (c *CombinedTracker) ProcessFrame(frame l1image.Frame) (*FrameResult, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	pyr, err := c.builder.Update(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to build pyramid: %w", err)
	}
	c.pyr = pyr
	c.frames++
	c.spawned = nil
	c.dropped = nil
	c.candidates = nil
	c.detected = false
	if c.debug != nil {
		c.debug.BeginFrame(c.frames)
	}

	result := &FrameResult{FrameIndex: c.frames, Faults: make(map[string]int)}

	live := c.pool.Live()
	results := c.trackAll(live, pyr)

	updates := make([]l5tracks.Update, len(live))
	var moved []float64
	for i, tr := range live {
		res := results[i]
		updates[i] = l5tracks.Update{ID: tr.ID, X: res.X, Y: res.Y, OK: res.Converged(), Fault: res.Fault}
		if res.Converged() {
			moved = append(moved, math.Hypot(res.X-tr.X, res.Y-tr.Y))
		} else {
			result.Faults[res.Fault.String()]++
			c.metrics.Faults[res.Fault.String()]++
		}
		if c.debug != nil {
			c.debug.RecordKLT(tr.ID, float32(tr.X), float32(tr.Y), float32(res.X), float32(res.Y),
				res.Fault.String(), res.Iterations)
		}
	}
	dropped := c.pool.Apply(updates)
	for _, tr := range dropped {
		if tr.Descriptor != nil {
			c.retained = append(c.retained, retained{trackID: tr.ID, descriptor: *tr.Descriptor})
		}
	}
	c.dropsSinceDDA += len(dropped)
	c.dropped = dropped

	if len(moved) > 0 {
		result.MeanDisplacement = stat.Mean(moved, nil)
	}
	if len(moved) > 1 {
		result.StdDisplacement = stat.StdDev(moved, nil)
	}

	if c.cfg.ReactivateThreshold > 0 && c.dropsSinceDDA >= c.cfg.ReactivateThreshold {
		result.DDAPass = true
		result.Reactivated = c.reactivate()
	}
	if c.cfg.MinTracks > 0 && c.pool.Len() < c.cfg.MinTracks {
		result.Respawned = len(c.spawnDetections(SourceRespawn))
	}

	result.Active = c.pool.Live()
	result.Spawned = append([]l5tracks.Track(nil), c.spawned...)
	result.Dropped = append([]l5tracks.Track(nil), dropped...)

	c.metrics.Frames = c.frames
	c.metrics.Respawned += result.Respawned
	diagf("frame %d: %d live, %d dropped, %d spawned, mean displacement %.3f px",
		c.frames, len(result.Active), len(dropped), len(result.Spawned), result.MeanDisplacement)

	if c.observer != nil {
		c.observer.ObserveFrame(result, time.Since(start))
	}
	return result, nil
}

// trackAll runs KLT for every track on the worker pool. Worker w owns
// trackers[w] and the result slots w, w+W, w+2W and so on.
func (c *CombinedTracker) trackAll(live []l5tracks.Track, pyr *l2pyramid.Pyramid) []l3klt.Result {
	results := make([]l3klt.Result, len(live))
	if len(live) == 0 {
		return results
	}
	workers := min(len(c.trackers), len(live))

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		kt := c.trackers[w]
		g.Go(func() error {
			for i := w; i < len(live); i += workers {
				results[i] = trackOne(kt, live[i], pyr)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// trackOne refines one track and re-describes its template at the new
// position so the next frame tracks against current appearance.
func trackOne(kt *l3klt.Tracker, tr l5tracks.Track, pyr *l2pyramid.Pyramid) l3klt.Result {
	if tr.Template == nil || !tr.Template.Described() {
		return l3klt.Result{Fault: l3klt.FaultDegenerate}
	}
	res := kt.Track(tr.Template, tr.X, tr.Y, pyr)
	if !res.Converged() {
		return res
	}
	if !kt.SetDescription(tr.Template, res.X, res.Y, pyr) {
		res.Fault = l3klt.FaultOutOfBounds
	}
	return res
}

// reactivate runs the DDA pass against the retained descriptors, spawns a
// new track for every match and resets the drop counter. It returns the
// number of tracks spawned.
func (c *CombinedTracker) reactivate() int {
	defer func() {
		c.dropsSinceDDA = 0
		c.retained = nil
		c.metrics.ReactivationPasses++
	}()

	candidates := c.detections()
	previous := make([]l4dda.Descriptor, len(c.retained))
	for i, r := range c.retained {
		previous[i] = r.descriptor
	}
	pairs := c.dda.Associate(candidates, previous)

	n := 0
	for _, p := range pairs {
		tr, ok := c.spawnCandidate(p.Candidate, SourceReactivation)
		if !ok {
			continue
		}
		n++
		retainedID := c.retained[p.Previous].trackID
		tracef("reactivated track %d as %d (score %.3f)", retainedID, tr.ID, p.Score)
		if c.debug != nil {
			c.debug.RecordReactivation(retainedID, float32(tr.X), float32(tr.Y), float32(p.Score))
		}
	}
	c.metrics.Reactivated += n
	diagf("reactivation pass: %d candidates, %d retained, %d matched, %d spawned",
		len(candidates), len(previous), len(pairs), n)
	return n
}

// detections returns the described candidates of the current pyramid's
// finest level, computing them at most once per frame.
func (c *CombinedTracker) detections() []l4dda.Candidate {
	if c.detected {
		return c.candidates
	}
	c.candidates = c.dda.DetectAndDescribe(c.pyr.Levels[0])
	c.detected = true
	return c.candidates
}

// spawnDetections spawns a track for every current detection that the
// pool accepts.
func (c *CombinedTracker) spawnDetections(source string) []l5tracks.Track {
	if c.dda == nil || c.pyr == nil {
		return nil
	}
	var out []l5tracks.Track
	for _, cand := range c.detections() {
		if tr, ok := c.spawnCandidate(cand, source); ok {
			out = append(out, tr)
		}
	}
	return out
}

// spawnCandidate spawns a DDA-sourced track. Candidate coordinates are in
// level-0 pixels.
func (c *CombinedTracker) spawnCandidate(cand l4dda.Candidate, source string) (l5tracks.Track, bool) {
	s := c.pyr.Scale(0)
	desc := cand.Descriptor.Clone()
	return c.spawn(cand.Point.X*s, cand.Point.Y*s, &desc, source)
}

// spawn creates a track at input-frame (x, y) with a freshly described KLT
// template. It fails when the pool rejects the position or the template
// window does not fit every level.
func (c *CombinedTracker) spawn(x, y float64, desc *l4dda.Descriptor, source string) (l5tracks.Track, bool) {
	if !c.pool.CanSpawn(x, y) {
		return l5tracks.Track{}, false
	}
	tpl := l3klt.NewFeature(c.cfg.KLT)
	if !c.trackers[0].SetDescription(tpl, x, y, c.pyr) {
		return l5tracks.Track{}, false
	}
	tr, ok := c.pool.Spawn(l5tracks.SpawnRequest{
		X:          x,
		Y:          y,
		Frame:      c.frames,
		Descriptor: desc,
		Template:   tpl,
	})
	if !ok {
		return l5tracks.Track{}, false
	}
	c.spawned = append(c.spawned, tr)
	tracef("spawned track %d at (%.2f, %.2f) from %s", tr.ID, x, y, source)
	if c.debug != nil {
		c.debug.RecordSpawn(tr.ID, float32(x), float32(y), source)
	}
	return tr, true
}

// SpawnTracks detects features in the current frame and spawns a track
// for every one the pool accepts. It returns nil before the first frame
// or when no detector is configured.
func (c *CombinedTracker) SpawnTracks() []l5tracks.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spawnDetections(SourceDetection)
}

// SpawnAt spawns a track at input-frame (x, y). Manually spawned tracks
// carry no descriptor and so are never reactivated.
func (c *CombinedTracker) SpawnAt(x, y float64) (l5tracks.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pyr == nil {
		opsf("SpawnAt(%.2f, %.2f) before the first frame", x, y)
		return l5tracks.Track{}, false
	}
	return c.spawn(x, y, nil, SourceManual)
}

// DropTrack removes a track. Manual drops do not count towards
// reactivation.
func (c *CombinedTracker) DropTrack(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool.Drop(id)
}

// DropAllTracks removes every track and forgets retained descriptors.
func (c *CombinedTracker) DropAllTracks() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pool.DropAll()
	c.retained = nil
	c.dropsSinceDDA = 0
}

// ActiveTracks returns the live tracks in ID order.
func (c *CombinedTracker) ActiveTracks() []l5tracks.Track {
	return c.pool.Live()
}

// SpawnedTracks returns the tracks created since the last ProcessFrame
// began, including manual spawns made after it returned.
func (c *CombinedTracker) SpawnedTracks() []l5tracks.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]l5tracks.Track(nil), c.spawned...)
}

// DroppedTracks returns the tracks lost during the last ProcessFrame.
func (c *CombinedTracker) DroppedTracks() []l5tracks.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]l5tracks.Track(nil), c.dropped...)
}

// SetKeyFrame records every live track's position as its key-frame
// observation.
func (c *CombinedTracker) SetKeyFrame() {
	c.pool.SetKeyFrame()
}

// AssociatedPairs returns a normalized key-frame/current pair for every
// live track observed at the last key frame, in track ID order.
func (c *CombinedTracker) AssociatedPairs() []AssociatedPair {
	live := c.pool.Live()
	pairs := make([]AssociatedPair, 0, len(live))
	for _, tr := range live {
		if !tr.HasKey {
			continue
		}
		kx, ky := c.normalize(tr.KeyX, tr.KeyY)
		x, y := c.normalize(tr.X, tr.Y)
		pairs = append(pairs, AssociatedPair{TrackID: tr.ID, Key: Point2D{kx, ky}, Curr: Point2D{x, y}})
	}
	return pairs
}

// PendingDrops returns the number of drops counted towards the next
// reactivation pass.
func (c *CombinedTracker) PendingDrops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropsSinceDDA
}

// Metrics returns cumulative session counters.
func (c *CombinedTracker) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.pool.Stats()
	m := c.metrics
	m.Live = stats.Live
	m.TracksCreated = stats.TracksCreated
	m.TracksDropped = stats.TracksDropped
	m.Faults = make(map[string]int, len(c.metrics.Faults))
	for k, v := range c.metrics.Faults {
		m.Faults[k] = v
	}
	return m
}
