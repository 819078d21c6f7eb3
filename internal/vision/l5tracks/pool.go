package l5tracks

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/banshee-data/featuretrack/internal/vision/l3klt"
	"github.com/banshee-data/featuretrack/internal/vision/l4dda"
)

// ErrInvalidConfig reports an unusable pool configuration.
var ErrInvalidConfig = errors.New("l5tracks: invalid config")

// TrackStatus represents the lifecycle state of a track.
type TrackStatus string

const (
	// StatusNew is a track spawned this frame or not yet updated.
	StatusNew TrackStatus = "new"
	// StatusActive is a track with at least one successful update.
	StatusActive TrackStatus = "active"
	// StatusLost is a track whose tracker failed; it has been removed.
	StatusLost TrackStatus = "lost"
)

// Config holds pool parameters.
type Config struct {
	// MaxTracks is the track budget. Zero or negative means unlimited.
	MaxTracks int
	// MinSeparation is the minimum pixel distance between a new track and
	// every live track. Zero disables the check.
	MinSeparation float64
}

// DefaultConfig returns a 300-track budget with 5 px separation.
func DefaultConfig() Config {
	return Config{MaxTracks: 300, MinSeparation: 5}
}

// Validate checks cfg.
func (c Config) Validate() error {
	if c.MinSeparation < 0 || math.IsNaN(c.MinSeparation) || math.IsInf(c.MinSeparation, 0) {
		return fmt.Errorf("%w: min separation %v", ErrInvalidConfig, c.MinSeparation)
	}
	return nil
}

// Track is one tracked feature. Values returned by the pool are
// snapshots; Template and Descriptor are shared with the pool's copy.
type Track struct {
	ID     int64
	X, Y   float64
	Status TrackStatus
	// Age counts successful updates.
	Age int
	// SpawnFrame is the frame index the track was created in.
	SpawnFrame uint64

	// Descriptor is set for tracks sourced from the DDA pipeline.
	Descriptor *l4dda.Descriptor
	// Template is the KLT appearance model owned with the track.
	Template *l3klt.Feature

	// KeyX, KeyY is the observation at the last key frame; HasKey is
	// false for tracks spawned after it.
	KeyX, KeyY float64
	HasKey     bool

	// Fault is the tracker fault that made the track lost.
	Fault l3klt.Fault
}

// SpawnRequest asks the pool to create a track at (X, Y).
type SpawnRequest struct {
	X, Y       float64
	Frame      uint64
	Descriptor *l4dda.Descriptor
	Template   *l3klt.Feature
}

// Update is one track's per-frame tracking result.
type Update struct {
	ID    int64
	X, Y  float64
	OK    bool
	Fault l3klt.Fault
}

// Stats summarises pool activity since creation.
type Stats struct {
	Live                  int
	TracksCreated         int
	TracksDropped         int
	RejectedBudget        int
	RejectedSeparation    int
	IgnoredUnknownUpdates int
}

// Pool owns the live track table. All methods are safe for concurrent
// use; structural changes happen only in Spawn, Apply and the Drop
// methods.
type Pool struct {
	Config Config

	tracks      map[int64]*Track
	nextTrackID int64

	// grid buckets live track IDs by MinSeparation-sized cells. It is
	// rebuilt lazily after tracks move.
	grid      map[[2]int][]int64
	gridDirty bool

	stats Stats

	mu sync.RWMutex
}

// NewPool validates cfg and returns an empty pool. The first track ID is 1.
func NewPool(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pool{
		Config:      cfg,
		tracks:      make(map[int64]*Track),
		nextTrackID: 1,
		grid:        make(map[[2]int][]int64),
	}, nil
}

// Spawn creates a NEW track unless the budget is exhausted or a live
// track lies closer than MinSeparation.
func (p *Pool) Spawn(req SpawnRequest) (Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if math.IsNaN(req.X) || math.IsNaN(req.Y) {
		return Track{}, false
	}
	if p.Config.MaxTracks > 0 && len(p.tracks) >= p.Config.MaxTracks {
		p.stats.RejectedBudget++
		return Track{}, false
	}
	if p.tooCloseLocked(req.X, req.Y) {
		p.stats.RejectedSeparation++
		return Track{}, false
	}

	track := &Track{
		ID:         p.nextTrackID,
		X:          req.X,
		Y:          req.Y,
		Status:     StatusNew,
		SpawnFrame: req.Frame,
		Descriptor: req.Descriptor,
		Template:   req.Template,
	}
	p.nextTrackID++
	p.tracks[track.ID] = track
	p.stats.TracksCreated++
	if !p.gridDirty && p.Config.MinSeparation > 0 {
		c := p.cell(track.X, track.Y)
		p.grid[c] = append(p.grid[c], track.ID)
	}
	tracef("spawned track %d at (%.2f, %.2f)", track.ID, track.X, track.Y)
	return *track, true
}

// CanSpawn reports whether Spawn at (x, y) would currently succeed.
func (p *Pool) CanSpawn(x, y float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Config.MaxTracks > 0 && len(p.tracks) >= p.Config.MaxTracks {
		return false
	}
	return !p.tooCloseLocked(x, y)
}

// Apply commits one frame of tracking results. Successful updates move the
// track and promote NEW to ACTIVE; failures mark it LOST and remove it.
// It returns the tracks lost in this call, in ID order.
func (p *Pool) Apply(updates []Update) []Track {
	p.mu.Lock()
	defer p.mu.Unlock()

	var dropped []Track
	for _, u := range updates {
		track, ok := p.tracks[u.ID]
		if !ok {
			p.stats.IgnoredUnknownUpdates++
			opsf("ignoring update for unknown track %d", u.ID)
			continue
		}
		if !u.OK || math.IsNaN(u.X) || math.IsNaN(u.Y) {
			track.Status = StatusLost
			track.Fault = u.Fault
			delete(p.tracks, u.ID)
			p.stats.TracksDropped++
			dropped = append(dropped, *track)
			tracef("track %d lost: %s", u.ID, u.Fault)
			continue
		}
		if track.Status == StatusNew {
			track.Status = StatusActive
		}
		track.X, track.Y = u.X, u.Y
		track.Age++
	}
	p.gridDirty = true
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].ID < dropped[j].ID })
	diagf("applied %d updates: %d lost, %d live", len(updates), len(dropped), len(p.tracks))
	return dropped
}

// Drop removes one track. It returns false if the ID is not live.
func (p *Pool) Drop(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	track, ok := p.tracks[id]
	if !ok {
		return false
	}
	track.Status = StatusLost
	delete(p.tracks, id)
	p.stats.TracksDropped++
	p.gridDirty = true
	return true
}

// DropAll removes every live track and returns them in ID order.
func (p *Pool) DropAll() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.snapshotLocked()
	for i := range out {
		out[i].Status = StatusLost
	}
	p.stats.TracksDropped += len(out)
	p.tracks = make(map[int64]*Track)
	p.grid = make(map[[2]int][]int64)
	p.gridDirty = false
	return out
}

// Live returns a snapshot of every live track in ID order.
func (p *Pool) Live() []Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

// Get returns the live track with the given ID.
func (p *Pool) Get(id int64) (Track, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	track, ok := p.tracks[id]
	if !ok {
		return Track{}, false
	}
	return *track, true
}

// Len returns the number of live tracks.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tracks)
}

// NextID returns the ID the next spawned track will receive.
func (p *Pool) NextID() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextTrackID
}

// SetKeyFrame records every live track's current position as its
// key-frame observation.
func (p *Pool) SetKeyFrame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, track := range p.tracks {
		track.KeyX, track.KeyY = track.X, track.Y
		track.HasKey = true
	}
}

// SetDescriptor replaces a live track's descriptor.
func (p *Pool) SetDescriptor(id int64, d *l4dda.Descriptor) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	track, ok := p.tracks[id]
	if ok {
		track.Descriptor = d
	}
	return ok
}

// Stats returns a copy of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.stats
	s.Live = len(p.tracks)
	return s
}

func (p *Pool) snapshotLocked() []Track {
	out := make([]Track, 0, len(p.tracks))
	for _, track := range p.tracks {
		out = append(out, *track)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *Pool) cell(x, y float64) [2]int {
	s := p.Config.MinSeparation
	return [2]int{int(math.Floor(x / s)), int(math.Floor(y / s))}
}

// tooCloseLocked reports whether a live track lies strictly closer than
// MinSeparation to (x, y). Only the 3×3 neighbourhood of cells can hold
// such a track.
func (p *Pool) tooCloseLocked(x, y float64) bool {
	s := p.Config.MinSeparation
	if s <= 0 || len(p.tracks) == 0 {
		return false
	}
	if p.gridDirty {
		p.grid = make(map[[2]int][]int64, len(p.tracks))
		for id, track := range p.tracks {
			c := p.cell(track.X, track.Y)
			p.grid[c] = append(p.grid[c], id)
		}
		p.gridDirty = false
	}
	c := p.cell(x, y)
	s2 := s * s
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			for _, id := range p.grid[[2]int{c[0] + dx, c[1] + dy}] {
				track, ok := p.tracks[id]
				if !ok {
					continue
				}
				ex, ey := track.X-x, track.Y-y
				if ex*ex+ey*ey < s2 {
					return true
				}
			}
		}
	}
	return false
}
