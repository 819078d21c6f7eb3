package pipeline

import (
	"errors"
	"fmt"

	"github.com/banshee-data/featuretrack/internal/config"
	"github.com/banshee-data/featuretrack/internal/vision/features"
	"github.com/banshee-data/featuretrack/internal/vision/l2pyramid"
	"github.com/banshee-data/featuretrack/internal/vision/l3klt"
	"github.com/banshee-data/featuretrack/internal/vision/l4dda"
	"github.com/banshee-data/featuretrack/internal/vision/l5tracks"
)

var (
	// ErrInvalidConfig reports an unusable combined tracker configuration.
	ErrInvalidConfig = errors.New("pipeline: invalid config")
	// ErrMissingCapability reports a capability the configuration needs
	// but the caller did not supply.
	ErrMissingCapability = errors.New("pipeline: missing capability")
)

// Config holds the per-session configuration of a CombinedTracker. It is
// copied at construction and never mutated while tracking.
type Config struct {
	Pyramid     l2pyramid.Config
	KLT         l3klt.Config
	Pool        l5tracks.Config
	Association l4dda.AssociationConfig

	// AssociationMode selects the associator built when Capabilities
	// does not supply one: "greedy" or "optimal".
	AssociationMode string

	// ReactivateThreshold is the number of drops since the last DDA pass
	// that triggers the next one. Zero disables reactivation.
	ReactivateThreshold int
	// MinTracks triggers a respawn from fresh detections whenever the
	// live count falls below it after a frame. Zero disables respawn.
	MinTracks int

	// Workers bounds KLT and describe parallelism. Zero or negative
	// means one worker per CPU.
	Workers int
}

// DefaultConfig returns the defaults documented in config/tuning.defaults.json.
func DefaultConfig() Config {
	cfg, err := ConfigFromTuning(config.EmptyTuningConfig())
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks every layer config and the orchestration fields.
func (c Config) Validate() error {
	if err := c.Pyramid.Validate(); err != nil {
		return err
	}
	if err := c.KLT.Validate(); err != nil {
		return err
	}
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if err := c.Association.Validate(); err != nil {
		return err
	}
	switch c.AssociationMode {
	case "", config.AssociationGreedy, config.AssociationOptimal:
	default:
		return fmt.Errorf("%w: association mode %q", ErrInvalidConfig, c.AssociationMode)
	}
	if c.ReactivateThreshold < 0 {
		return fmt.Errorf("%w: reactivate threshold %d", ErrInvalidConfig, c.ReactivateThreshold)
	}
	if c.MinTracks < 0 {
		return fmt.Errorf("%w: min tracks %d", ErrInvalidConfig, c.MinTracks)
	}
	return nil
}

// needsDDA reports whether the configuration ever runs detection.
func (c Config) needsDDA() bool {
	return c.ReactivateThreshold > 0 || c.MinTracks > 0
}

// ConfigFromTuning assembles the layer configs from a tuning document.
// The association metric is left at its default; NewCombinedTracker
// replaces it with the describer's metric.
func ConfigFromTuning(tc *config.TuningConfig) (Config, error) {
	if err := tc.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	assoc := l4dda.DefaultAssociationConfig()
	assoc.MaxError = tc.GetMaxAssociationError()
	assoc.AmbiguityRatio = tc.GetAmbiguityRatio()
	assoc.BackwardsValidation = tc.GetBackwardsValidation()
	assoc.BackwardsTolerance = tc.GetBackwardsTolerance()
	assoc.Workers = tc.GetWorkers()

	cfg := Config{
		Pyramid: l2pyramid.Config{Scales: tc.GetPyramidScales()},
		KLT: l3klt.Config{
			Radius:           tc.GetTemplateRadius(),
			MaxIterations:    tc.GetMaxIterations(),
			ConvergenceTol:   tc.GetConvergenceTol(),
			MinDeterminant:   tc.GetMinDeterminant(),
			MaxTrackingError: tc.GetMaxTrackingError(),
		},
		Pool: l5tracks.Config{
			MaxTracks:     tc.GetMaxTracks(),
			MinSeparation: tc.GetMinSpawnSeparation(),
		},
		Association:         assoc,
		AssociationMode:     tc.GetAssociationMode(),
		ReactivateThreshold: tc.GetReactivateThreshold(),
		MinTracks:           tc.GetMinTracks(),
		Workers:             tc.GetWorkers(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Capabilities are the numeric collaborators the tracker delegates to.
// Blurrer and Gradient are required. Detector and Describer are required
// only when reactivation or respawn is enabled. Associator defaults to
// the one selected by Config.AssociationMode.
type Capabilities struct {
	Blurrer    l2pyramid.Blurrer
	Gradient   l2pyramid.GradientProvider
	Detector   l4dda.Detector
	Describer  l4dda.Describer
	Associator l4dda.Associator

	// Normalize maps pixel coordinates to the normalized image plane for
	// AssociatedPairs. Nil leaves pixel coordinates unchanged.
	Normalize func(x, y float64) (float64, float64)
}

// NativeCapabilities builds the pure-Go providers named by tc.
func NativeCapabilities(tc *config.TuningConfig) (Capabilities, error) {
	det, err := features.NewDetector(tc.GetDetector(), DetectorConfigFromTuning(tc))
	if err != nil {
		return Capabilities{}, err
	}
	desc, err := features.NewDescriber(tc.GetDescriber(), DescriberConfigFromTuning(tc))
	if err != nil {
		return Capabilities{}, err
	}
	return Capabilities{
		Blurrer:   &features.BinomialBlur{},
		Gradient:  features.Sobel{},
		Detector:  det,
		Describer: desc,
	}, nil
}

// DetectorConfigFromTuning extracts the detector parameters from tc.
func DetectorConfigFromTuning(tc *config.TuningConfig) features.DetectorConfig {
	return features.DetectorConfig{
		MaxFeatures:       tc.GetMaxFeatures(),
		Radius:            tc.GetDetectRadius(),
		Border:            tc.GetDetectBorder(),
		RelativeThreshold: tc.GetDetectRelativeThreshold(),
		FastThreshold:     tc.GetFastThreshold(),
		HarrisK:           tc.GetHarrisK(),
	}
}

// DescriberConfigFromTuning extracts the describer parameters from tc.
func DescriberConfigFromTuning(tc *config.TuningConfig) features.DescriberConfig {
	return features.DescriberConfig{
		Radius: tc.GetDescribeRadius(),
		Bits:   tc.GetDescriptorBits(),
		Seed:   tc.GetDescriptorSeed(),
	}
}

func newAssociator(cfg Config, metric l4dda.Metric) (l4dda.Associator, error) {
	assoc := cfg.Association
	assoc.Metric = metric
	if cfg.AssociationMode == config.AssociationOptimal {
		return l4dda.NewOptimal(assoc)
	}
	return l4dda.NewGreedy(assoc)
}
