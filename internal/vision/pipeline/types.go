package pipeline

import (
	"time"

	"github.com/banshee-data/featuretrack/internal/vision/l1image"
	"github.com/banshee-data/featuretrack/internal/vision/l5tracks"
)

// PointTracker defines the interface for the frame-synchronous sparse
// point tracker. It lets callers such as the CLI and the recorder be
// exercised against test doubles.
type PointTracker interface {
	// ProcessFrame advances every live track to frame and runs
	// reactivation and respawn when they are due.
	ProcessFrame(frame l1image.Frame) (*FrameResult, error)

	// SpawnTracks detects features in the current frame and spawns a
	// track for every one that passes the budget and separation rules.
	SpawnTracks() []l5tracks.Track

	// SpawnAt spawns one track at a caller-chosen position.
	SpawnAt(x, y float64) (l5tracks.Track, bool)

	// DropTrack removes one track without retaining its descriptor.
	DropTrack(id int64) bool

	// DropAllTracks removes every track.
	DropAllTracks()

	// ActiveTracks returns the live tracks in ID order.
	ActiveTracks() []l5tracks.Track

	// SpawnedTracks returns the tracks created since the last ProcessFrame.
	SpawnedTracks() []l5tracks.Track

	// DroppedTracks returns the tracks lost in the last ProcessFrame.
	DroppedTracks() []l5tracks.Track

	// SetKeyFrame marks the current positions as key-frame observations.
	SetKeyFrame()

	// AssociatedPairs returns one pair per live track that has a
	// key-frame observation.
	AssociatedPairs() []AssociatedPair

	// Metrics returns cumulative session counters.
	Metrics() Metrics
}

// Compile-time check that CombinedTracker implements PointTracker.
var _ PointTracker = (*CombinedTracker)(nil)

// FrameObserver is notified after every processed frame.
type FrameObserver interface {
	ObserveFrame(result *FrameResult, elapsed time.Duration)
}

// Point2D is a 2-D observation.
type Point2D struct {
	X, Y float64
}

// AssociatedPair links a track's key-frame observation to its current
// one, both passed through Capabilities.Normalize.
type AssociatedPair struct {
	TrackID int64
	Key     Point2D
	Curr    Point2D
}

// FrameResult summarises one ProcessFrame call.
type FrameResult struct {
	// FrameIndex counts processed frames from 1.
	FrameIndex uint64
	// Active is the live track list after the frame, in ID order.
	Active []l5tracks.Track
	// Spawned holds tracks created during the frame by reactivation or
	// respawn.
	Spawned []l5tracks.Track
	// Dropped holds tracks lost to KLT failures during the frame.
	Dropped []l5tracks.Track
	// Faults counts KLT outcomes other than success by fault name.
	Faults map[string]int

	// DDAPass is true when reactivation ran this frame.
	DDAPass bool
	// Reactivated is the number of tracks spawned from matches against
	// retained descriptors.
	Reactivated int
	// Respawned is the number of tracks spawned because the live count
	// fell under Config.MinTracks.
	Respawned int

	// MeanDisplacement and StdDisplacement describe how far the tracks
	// that survived the frame moved, in pixels. StdDisplacement is zero
	// with fewer than two survivors.
	MeanDisplacement float64
	StdDisplacement  float64
}

// Metrics holds cumulative counters for a session.
type Metrics struct {
	Frames             uint64
	Live               int
	TracksCreated      int
	TracksDropped      int
	ReactivationPasses int
	Reactivated        int
	Respawned          int
	Faults             map[string]int
}

// Observers fans one frame out to several observers in order.
type Observers []FrameObserver

// ObserveFrame implements FrameObserver.
func (obs Observers) ObserveFrame(result *FrameResult, elapsed time.Duration) {
	for _, o := range obs {
		o.ObserveFrame(result, elapsed)
	}
}
