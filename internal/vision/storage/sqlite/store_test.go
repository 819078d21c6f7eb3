package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/featuretrack/internal/vision/l3klt"
	"github.com/banshee-data/featuretrack/internal/vision/l5tracks"
	"github.com/banshee-data/featuretrack/internal/vision/pipeline"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracks.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func frame(idx uint64, active, dropped []l5tracks.Track) *pipeline.FrameResult {
	return &pipeline.FrameResult{
		FrameIndex:       idx,
		Active:           active,
		Dropped:          dropped,
		MeanDisplacement: 1.5,
		StdDisplacement:  0.25,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()
	s, path := openTestStore(t)
	id, err := s.BeginSession("frames/", `{"max_tracks":10}`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Re-opening an already migrated database must not fail or lose data.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	n, err := s2.FrameCount(id)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordFrameRoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	id, err := s.BeginSession("frames/", "")
	require.NoError(t, err)

	f1 := frame(1, []l5tracks.Track{
		{ID: 1, X: 10, Y: 20, Status: l5tracks.StatusActive, Age: 1},
		{ID: 2, X: 30, Y: 40, Status: l5tracks.StatusActive, Age: 1},
	}, nil)
	f1.DDAPass = true
	f1.Reactivated = 1
	require.NoError(t, s.RecordFrame(id, f1))

	f2 := frame(2,
		[]l5tracks.Track{{ID: 1, X: 11, Y: 21, Status: l5tracks.StatusActive, Age: 2}},
		[]l5tracks.Track{{ID: 2, X: 30, Y: 40, Status: l5tracks.StatusLost, Age: 1, Fault: l3klt.FaultOutOfBounds}},
	)
	require.NoError(t, s.RecordFrame(id, f2))

	n, err := s.FrameCount(id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := s.FrameStats(id)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, FrameStat{
		FrameIndex: 1, Live: 2, Reactivated: 1, DDAPass: true,
		MeanDisplacement: 1.5, StdDisplacement: 0.25,
	}, stats[0])
	assert.Equal(t, 1, stats[1].Live)
	assert.Equal(t, 1, stats[1].Dropped)
	assert.False(t, stats[1].DDAPass)

	obs, err := s.TrackObservations(id, 2)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "active", obs[0].Status)
	assert.Empty(t, obs[0].Fault)
	assert.Equal(t, "lost", obs[1].Status)
	assert.Equal(t, "out_of_bounds", obs[1].Fault)

	obs, err = s.TrackObservations(id, 1)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.InDelta(t, 11.0, obs[1].X, 1e-12)
	assert.Equal(t, 2, obs[1].Age)
}

func TestRecordFrameUnknownSession(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	err := s.RecordFrame("missing", frame(1, nil, nil))
	assert.ErrorIs(t, err, ErrUnknownSession)

	_, err = s.FrameCount("missing")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRecordFrameDuplicateIndexRollsBack(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	id, err := s.BeginSession("", "")
	require.NoError(t, err)
	require.NoError(t, s.RecordFrame(id, frame(1, nil, nil)))
	assert.Error(t, s.RecordFrame(id, frame(1, nil, nil)))

	n, err := s.FrameCount(id)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "failed frame must not bump the count")
}

func TestSessionsAreIsolated(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	a, err := s.BeginSession("a", "")
	require.NoError(t, err)
	b, err := s.BeginSession("b", "")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	active := []l5tracks.Track{{ID: 1, Status: l5tracks.StatusNew}}
	require.NoError(t, s.RecordFrame(a, frame(1, active, nil)))

	stats, err := s.FrameStats(b)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestRecorderStopsAtFirstError(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	id, err := s.BeginSession("", "")
	require.NoError(t, err)

	r := NewRecorder(s, id)
	r.ObserveFrame(frame(1, nil, nil), time.Millisecond)
	require.NoError(t, r.Err())
	r.ObserveFrame(frame(1, nil, nil), time.Millisecond)
	require.Error(t, r.Err())
	r.ObserveFrame(frame(2, nil, nil), time.Millisecond)

	n, err := s.FrameCount(id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	require.NoError(t, s.Close())
	_, err := s.BeginSession("", "")
	assert.Error(t, err)
}
