package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/featuretrack/internal/config"
	"github.com/banshee-data/featuretrack/internal/monitoring"
	"github.com/banshee-data/featuretrack/internal/vision/cvbridge"
	"github.com/banshee-data/featuretrack/internal/vision/pipeline"
	"github.com/banshee-data/featuretrack/internal/vision/storage/sqlite"
)

// options are the resolved command-line settings.
type options struct {
	FramesDir     string
	ConfigPath    string
	DBPath        string
	Backend       string
	Workers       int // negative keeps the tuning file value
	KeyFrameEvery int
	MetricsListen string
	LogLevel      string

	// Registry receives the tracker metrics. Nil uses a fresh registry.
	Registry *prometheus.Registry
}

// summary is what a run reports once every frame has been processed.
type summary struct {
	Frames int
	// SpawnFrames counts frames in which at least one track was spawned.
	SpawnFrames int
	Live        int
	SessionID   string
	Metrics     pipeline.Metrics
}

func logLevel(diag, trace bool) string {
	switch {
	case trace:
		return monitoring.LevelTrace
	case diag:
		return monitoring.LevelDiag
	}
	return monitoring.LevelOps
}

func loadTuning(opts options) (*config.TuningConfig, error) {
	path := opts.ConfigPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			path = config.DefaultConfigPath
		}
	}
	tc := config.DefaultTuningConfig()
	if path != "" {
		var err error
		if tc, err = config.LoadTuningConfig(path); err != nil {
			return nil, err
		}
	}
	if opts.Backend != "" {
		b := opts.Backend
		tc.Backend = &b
	}
	if opts.Workers >= 0 {
		w := opts.Workers
		tc.Workers = &w
	}
	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return tc, nil
}

func capabilities(tc *config.TuningConfig) (pipeline.Capabilities, error) {
	if tc.GetBackend() == config.BackendOpenCV {
		return cvbridge.Capabilities(tc)
	}
	return pipeline.NativeCapabilities(tc)
}

// run tracks every frame in opts.FramesDir and logs a summary line per
// frame to monitoring.Logf.
func run(ctx context.Context, opts options, logOut io.Writer) (summary, error) {
	var sum summary
	level := opts.LogLevel
	if level == "" {
		level = monitoring.LevelOps
	}
	if err := monitoring.ConfigureStreams(level, logOut); err != nil {
		return sum, err
	}
	tc, err := loadTuning(opts)
	if err != nil {
		return sum, err
	}
	cfg, err := pipeline.ConfigFromTuning(tc)
	if err != nil {
		return sum, err
	}
	caps, err := capabilities(tc)
	if err != nil {
		return sum, err
	}
	tracker, err := pipeline.NewCombinedTracker(cfg, caps)
	if err != nil {
		return sum, err
	}
	paths, err := listFrames(opts.FramesDir)
	if err != nil {
		return sum, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	observers := pipeline.Observers{monitoring.NewTrackerMetrics(reg)}

	if opts.MetricsListen != "" {
		stopMetrics := serveMetrics(opts.MetricsListen, reg)
		defer stopMetrics()
	}

	var recorder *sqlite.Recorder
	if opts.DBPath != "" {
		store, err := sqlite.Open(opts.DBPath)
		if err != nil {
			return sum, err
		}
		defer store.Close()
		configJSON, err := tc.JSON()
		if err != nil {
			return sum, err
		}
		if sum.SessionID, err = store.BeginSession(opts.FramesDir, configJSON); err != nil {
			return sum, err
		}
		recorder = sqlite.NewRecorder(store, sum.SessionID)
		observers = append(observers, recorder)
		monitoring.Logf("recording session %s to %s", sum.SessionID, opts.DBPath)
	}
	tracker.SetFrameObserver(observers)

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		frame, err := loadFrame(path)
		if err != nil {
			return sum, err
		}
		res, err := tracker.ProcessFrame(frame)
		if err != nil {
			return sum, fmt.Errorf("frame %s: %w", path, err)
		}
		if opts.KeyFrameEvery > 0 && i%opts.KeyFrameEvery == 0 {
			tracker.SetKeyFrame()
		}
		if len(res.Spawned) > 0 {
			sum.SpawnFrames++
		}
		sum.Frames++
		monitoring.Logf("frame %d: total features: %d total respawns: %d",
			res.FrameIndex, len(tracker.ActiveTracks()), sum.SpawnFrames)
	}
	if recorder != nil {
		if err := recorder.Err(); err != nil {
			return sum, fmt.Errorf("recording failed: %w", err)
		}
	}

	sum.Live = len(tracker.ActiveTracks())
	sum.Metrics = tracker.Metrics()
	monitoring.Logf("processed %d frames: %d live, %d created, %d dropped, %d reactivation passes",
		sum.Frames, sum.Live, sum.Metrics.TracksCreated, sum.Metrics.TracksDropped, sum.Metrics.ReactivationPasses)
	return sum, nil
}

// serveMetrics exposes reg on addr until the returned stop function runs.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		monitoring.Logf("serving metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			monitoring.Logf("metrics server error: %v", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("metrics server shutdown error: %v", err)
			server.Close()
		}
	}
}
