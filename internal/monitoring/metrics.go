package monitoring

import (
	"time"

	"github.com/banshee-data/featuretrack/internal/vision/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TrackerMetrics exports per-frame tracker activity to Prometheus. It
// implements pipeline.FrameObserver.
type TrackerMetrics struct {
	FramesProcessed    prometheus.Counter
	TracksSpawned      *prometheus.CounterVec
	TracksDropped      *prometheus.CounterVec
	ReactivationPasses prometheus.Counter
	LiveTracks         prometheus.Gauge
	FrameDuration      prometheus.Histogram
	Displacement       prometheus.Histogram
}

var _ pipeline.FrameObserver = (*TrackerMetrics)(nil)

// NewTrackerMetrics registers the tracker collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on promhttp.Handler.
func NewTrackerMetrics(reg prometheus.Registerer) *TrackerMetrics {
	f := promauto.With(reg)
	return &TrackerMetrics{
		FramesProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "featuretrack",
			Name:      "frames_processed_total",
			Help:      "Total number of frames processed",
		}),
		TracksSpawned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "featuretrack",
			Name:      "tracks_spawned_total",
			Help:      "Total number of tracks spawned by the tracker, by reason",
		}, []string{"reason"}),
		TracksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "featuretrack",
			Name:      "tracks_dropped_total",
			Help:      "Total number of tracks lost to KLT failures, by fault",
		}, []string{"fault"}),
		ReactivationPasses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "featuretrack",
			Name:      "reactivation_passes_total",
			Help:      "Total number of detect-describe-associate reactivation passes",
		}),
		LiveTracks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "featuretrack",
			Name:      "live_tracks",
			Help:      "Number of live tracks after the last frame",
		}),
		FrameDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "featuretrack",
			Name:      "frame_duration_seconds",
			Help:      "Duration of ProcessFrame",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		Displacement: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "featuretrack",
			Name:      "mean_displacement_pixels",
			Help:      "Mean per-frame displacement of surviving tracks",
			Buckets:   prometheus.ExponentialBuckets(0.125, 2, 8),
		}),
	}
}

// ObserveFrame records one frame result.
func (m *TrackerMetrics) ObserveFrame(r *pipeline.FrameResult, elapsed time.Duration) {
	m.FramesProcessed.Inc()
	m.FrameDuration.Observe(elapsed.Seconds())
	m.LiveTracks.Set(float64(len(r.Active)))
	m.Displacement.Observe(r.MeanDisplacement)
	for fault, n := range r.Faults {
		m.TracksDropped.WithLabelValues(fault).Add(float64(n))
	}
	if r.DDAPass {
		m.ReactivationPasses.Inc()
	}
	if r.Reactivated > 0 {
		m.TracksSpawned.WithLabelValues(pipeline.SourceReactivation).Add(float64(r.Reactivated))
	}
	if r.Respawned > 0 {
		m.TracksSpawned.WithLabelValues(pipeline.SourceRespawn).Add(float64(r.Respawned))
	}
}
