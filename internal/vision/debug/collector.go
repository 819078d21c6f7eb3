// Package debug provides instrumentation for the feature tracker.
// The DebugCollector captures algorithm internals (per-track KLT outcomes,
// reactivation matches, spawns) for offline inspection and tuning.
package debug

// Pre-allocation capacities for debug frame slices, sized for a few
// hundred live tracks with a handful of spawns per frame.
const (
	defaultKLTCapacity          = 256
	defaultReactivationCapacity = 16
	defaultSpawnCapacity        = 32
)

// DebugCollector accumulates debug artifacts during a single frame's processing.
//
// The collector is stateful: call Record*() methods during processing, then
// Emit() at frame completion to extract the artifacts. It is not safe for
// concurrent use; the tracker records from its single-writer phase only.
type DebugCollector struct {
	enabled bool
	current *DebugFrame
}

// DebugFrame contains all debug artifacts for a single frame.
type DebugFrame struct {
	FrameID uint64

	// KLT stage: one record per tracked feature
	KLT []KLTRecord

	// Reactivation stage: accepted DDA matches against retained tracks
	Reactivations []ReactivationRecord

	// Spawns: tracks created this frame and where they came from
	Spawns []SpawnRecord
}

// KLTRecord captures one feature's tracking outcome.
type KLTRecord struct {
	TrackID    int64
	FromX      float32
	FromY      float32
	ToX        float32 // Zero when the track failed
	ToY        float32
	Fault      string
	Iterations int
}

// ReactivationRecord captures a candidate matched to a dropped track's
// retained descriptor.
type ReactivationRecord struct {
	RetainedTrackID int64
	CandidateX      float32
	CandidateY      float32
	Score           float32
}

// SpawnRecord captures a newly created track.
type SpawnRecord struct {
	TrackID int64
	X       float32
	Y       float32
	Source  string // "respawn", "reactivation" or "manual"
}

// NewDebugCollector creates a collector that's initially disabled.
// Call SetEnabled(true) to begin collecting artifacts.
func NewDebugCollector() *DebugCollector {
	return &DebugCollector{}
}

// SetEnabled controls whether the collector records artifacts.
// When disabled, all Record*() calls are no-ops.
func (c *DebugCollector) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// IsEnabled returns true if the collector is actively recording.
func (c *DebugCollector) IsEnabled() bool {
	return c.enabled
}

// BeginFrame initialises collection for a new frame.
// Must be called before any Record*() calls.
func (c *DebugCollector) BeginFrame(frameID uint64) {
	if !c.enabled {
		return
	}
	c.current = &DebugFrame{
		FrameID:       frameID,
		KLT:           make([]KLTRecord, 0, defaultKLTCapacity),
		Reactivations: make([]ReactivationRecord, 0, defaultReactivationCapacity),
		Spawns:        make([]SpawnRecord, 0, defaultSpawnCapacity),
	}
}

// RecordKLT captures one feature's KLT result.
func (c *DebugCollector) RecordKLT(trackID int64, fromX, fromY, toX, toY float32, fault string, iterations int) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.KLT = append(c.current.KLT, KLTRecord{
		TrackID:    trackID,
		FromX:      fromX,
		FromY:      fromY,
		ToX:        toX,
		ToY:        toY,
		Fault:      fault,
		Iterations: iterations,
	})
}

// RecordReactivation captures an accepted reactivation match.
func (c *DebugCollector) RecordReactivation(retainedTrackID int64, candidateX, candidateY, score float32) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Reactivations = append(c.current.Reactivations, ReactivationRecord{
		RetainedTrackID: retainedTrackID,
		CandidateX:      candidateX,
		CandidateY:      candidateY,
		Score:           score,
	})
}

// RecordSpawn captures a track creation.
func (c *DebugCollector) RecordSpawn(trackID int64, x, y float32, source string) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Spawns = append(c.current.Spawns, SpawnRecord{TrackID: trackID, X: x, Y: y, Source: source})
}

// Emit returns the accumulated debug frame and prepares for the next frame.
// Returns nil if collection is disabled or no frame was begun.
func (c *DebugCollector) Emit() *DebugFrame {
	if !c.enabled || c.current == nil {
		return nil
	}
	frame := c.current
	c.current = nil
	return frame
}

// Reset clears any pending artifacts without emitting them.
func (c *DebugCollector) Reset() {
	c.current = nil
}

// FaultCounts tallies the KLT records of a frame by fault name.
func (f *DebugFrame) FaultCounts() map[string]int {
	out := make(map[string]int)
	for _, r := range f.KLT {
		out[r.Fault]++
	}
	return out
}
