package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Variant names accepted by the string-valued fields.
const (
	AssociationGreedy  = "greedy"
	AssociationOptimal = "optimal"

	BackendNative = "native"
	BackendOpenCV = "opencv"
)

// TuningConfig represents the root configuration for tracker tuning.
// Every field is optional; the Get* accessors supply defaults for omitted
// fields so partial files are safe.
type TuningConfig struct {
	// Pyramid params
	PyramidScales []int `json:"pyramid_scales,omitempty"`

	// KLT params
	TemplateRadius   *int     `json:"template_radius,omitempty"`
	MaxIterations    *int     `json:"max_iterations,omitempty"`
	ConvergenceTol   *float64 `json:"convergence_tol,omitempty"`
	MinDeterminant   *float64 `json:"min_determinant,omitempty"`
	MaxTrackingError *float64 `json:"max_tracking_error,omitempty"`

	// Track pool params
	MaxTracks          *int     `json:"max_tracks,omitempty"`
	MinTracks          *int     `json:"min_tracks,omitempty"`
	MinSpawnSeparation *float64 `json:"min_spawn_separation,omitempty"`

	// Reactivation and association params
	ReactivateThreshold *int     `json:"reactivate_threshold,omitempty"`
	AssociationMode     *string  `json:"association_mode,omitempty"` // "greedy" or "optimal"
	MaxAssociationError *float64 `json:"max_association_error,omitempty"`
	AmbiguityRatio      *float64 `json:"ambiguity_ratio,omitempty"`
	BackwardsValidation *bool    `json:"backwards_validation,omitempty"`
	BackwardsTolerance  *float64 `json:"backwards_tolerance,omitempty"`

	// Detector params
	Detector                *string  `json:"detector,omitempty"` // "fast", "harris" or "shi_tomasi"
	MaxFeatures             *int     `json:"max_features,omitempty"`
	DetectRadius            *int     `json:"detect_radius,omitempty"`
	DetectBorder            *int     `json:"detect_border,omitempty"`
	DetectRelativeThreshold *float64 `json:"detect_relative_threshold,omitempty"`
	FastThreshold           *float64 `json:"fast_threshold,omitempty"`
	HarrisK                 *float64 `json:"harris_k,omitempty"`

	// Describer params
	Describer      *string `json:"describer,omitempty"` // "brief", "ncc" or "orb"
	DescribeRadius *int    `json:"describe_radius,omitempty"`
	DescriptorBits *int    `json:"descriptor_bits,omitempty"`
	DescriptorSeed *int64  `json:"descriptor_seed,omitempty"`

	// Runtime params
	Workers *int    `json:"workers,omitempty"`
	Backend *string `json:"backend,omitempty"` // "native" or "opencv"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to the
// value its Get* accessor would fall back to.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		PyramidScales:           e.GetPyramidScales(),
		TemplateRadius:          ptrInt(e.GetTemplateRadius()),
		MaxIterations:           ptrInt(e.GetMaxIterations()),
		ConvergenceTol:          ptrFloat64(e.GetConvergenceTol()),
		MinDeterminant:          ptrFloat64(e.GetMinDeterminant()),
		MaxTrackingError:        ptrFloat64(e.GetMaxTrackingError()),
		MaxTracks:               ptrInt(e.GetMaxTracks()),
		MinTracks:               ptrInt(e.GetMinTracks()),
		MinSpawnSeparation:      ptrFloat64(e.GetMinSpawnSeparation()),
		ReactivateThreshold:     ptrInt(e.GetReactivateThreshold()),
		AssociationMode:         ptrString(e.GetAssociationMode()),
		MaxAssociationError:     ptrFloat64(e.GetMaxAssociationError()),
		AmbiguityRatio:          ptrFloat64(e.GetAmbiguityRatio()),
		BackwardsValidation:     ptrBool(e.GetBackwardsValidation()),
		BackwardsTolerance:      ptrFloat64(e.GetBackwardsTolerance()),
		Detector:                ptrString(e.GetDetector()),
		MaxFeatures:             ptrInt(e.GetMaxFeatures()),
		DetectRadius:            ptrInt(e.GetDetectRadius()),
		DetectBorder:            ptrInt(e.GetDetectBorder()),
		DetectRelativeThreshold: ptrFloat64(e.GetDetectRelativeThreshold()),
		FastThreshold:           ptrFloat64(e.GetFastThreshold()),
		HarrisK:                 ptrFloat64(e.GetHarrisK()),
		Describer:               ptrString(e.GetDescriber()),
		DescribeRadius:          ptrInt(e.GetDescribeRadius()),
		DescriptorBits:          ptrInt(e.GetDescriptorBits()),
		DescriptorSeed:          ptrInt64(e.GetDescriptorSeed()),
		Workers:                 ptrInt(e.GetWorkers()),
		Backend:                 ptrString(e.GetBackend()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/vision/pipeline/
		"../../../../" + DefaultConfigPath,    // from internal/vision/storage/sqlite/
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// JSON returns the configuration as indented JSON, for recording
// alongside tracking output.
func (c *TuningConfig) JSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return string(data), nil
}

// Validate checks that the configuration values are valid. Structural
// checks that need the assembled layer configs (scale divisibility, for
// example) happen again when the tracker is built.
func (c *TuningConfig) Validate() error {
	for i, s := range c.PyramidScales {
		if s <= 0 {
			return fmt.Errorf("pyramid_scales[%d] must be positive, got %d", i, s)
		}
		if i > 0 && s <= c.PyramidScales[i-1] {
			return fmt.Errorf("pyramid_scales must be strictly increasing, got %v", c.PyramidScales)
		}
	}

	if c.TemplateRadius != nil && *c.TemplateRadius < 1 {
		return fmt.Errorf("template_radius must be at least 1, got %d", *c.TemplateRadius)
	}
	if c.MaxIterations != nil && *c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", *c.MaxIterations)
	}
	if c.ConvergenceTol != nil && *c.ConvergenceTol <= 0 {
		return fmt.Errorf("convergence_tol must be positive, got %f", *c.ConvergenceTol)
	}
	if c.MinDeterminant != nil && *c.MinDeterminant < 0 {
		return fmt.Errorf("min_determinant must be non-negative, got %f", *c.MinDeterminant)
	}

	if c.MaxTracks != nil && *c.MaxTracks < 0 {
		return fmt.Errorf("max_tracks must be non-negative, got %d", *c.MaxTracks)
	}
	if c.MinTracks != nil && *c.MinTracks < 0 {
		return fmt.Errorf("min_tracks must be non-negative, got %d", *c.MinTracks)
	}
	if c.MinSpawnSeparation != nil && *c.MinSpawnSeparation < 0 {
		return fmt.Errorf("min_spawn_separation must be non-negative, got %f", *c.MinSpawnSeparation)
	}
	if c.ReactivateThreshold != nil && *c.ReactivateThreshold < 0 {
		return fmt.Errorf("reactivate_threshold must be non-negative, got %d", *c.ReactivateThreshold)
	}

	if c.AmbiguityRatio != nil && (*c.AmbiguityRatio < 0 || *c.AmbiguityRatio >= 1) {
		return fmt.Errorf("ambiguity_ratio must be in [0, 1), got %f", *c.AmbiguityRatio)
	}
	if c.BackwardsTolerance != nil && *c.BackwardsTolerance < 0 {
		return fmt.Errorf("backwards_tolerance must be non-negative, got %f", *c.BackwardsTolerance)
	}

	if err := oneOf("association_mode", c.AssociationMode, AssociationGreedy, AssociationOptimal); err != nil {
		return err
	}
	if err := oneOf("detector", c.Detector, "fast", "harris", "shi_tomasi"); err != nil {
		return err
	}
	if err := oneOf("describer", c.Describer, "brief", "ncc", "orb"); err != nil {
		return err
	}
	if err := oneOf("backend", c.Backend, BackendNative, BackendOpenCV); err != nil {
		return err
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	return nil
}

func oneOf(field string, v *string, allowed ...string) error {
	if v == nil {
		return nil
	}
	for _, a := range allowed {
		if *v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", field, allowed, *v)
}

// GetPyramidScales returns a copy of pyramid_scales or the default [1, 2, 4].
func (c *TuningConfig) GetPyramidScales() []int {
	if len(c.PyramidScales) == 0 {
		return []int{1, 2, 4}
	}
	return append([]int(nil), c.PyramidScales...)
}

// GetTemplateRadius returns the template_radius value or the default.
func (c *TuningConfig) GetTemplateRadius() int {
	if c.TemplateRadius == nil {
		return 3
	}
	return *c.TemplateRadius
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *TuningConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 15
	}
	return *c.MaxIterations
}

// GetConvergenceTol returns the convergence_tol value or the default.
func (c *TuningConfig) GetConvergenceTol() float64 {
	if c.ConvergenceTol == nil {
		return 0.01
	}
	return *c.ConvergenceTol
}

// GetMinDeterminant returns the min_determinant value or the default.
func (c *TuningConfig) GetMinDeterminant() float64 {
	if c.MinDeterminant == nil {
		return 0.01
	}
	return *c.MinDeterminant
}

// GetMaxTrackingError returns the max_tracking_error value or the default.
func (c *TuningConfig) GetMaxTrackingError() float64 {
	if c.MaxTrackingError == nil {
		return 25
	}
	return *c.MaxTrackingError
}

// GetMaxTracks returns the max_tracks value or the default.
func (c *TuningConfig) GetMaxTracks() int {
	if c.MaxTracks == nil {
		return 300
	}
	return *c.MaxTracks
}

// GetMinTracks returns the min_tracks value or the default.
func (c *TuningConfig) GetMinTracks() int {
	if c.MinTracks == nil {
		return 100
	}
	return *c.MinTracks
}

// GetMinSpawnSeparation returns the min_spawn_separation value or the default.
func (c *TuningConfig) GetMinSpawnSeparation() float64 {
	if c.MinSpawnSeparation == nil {
		return 5
	}
	return *c.MinSpawnSeparation
}

// GetReactivateThreshold returns the reactivate_threshold value or the default.
func (c *TuningConfig) GetReactivateThreshold() int {
	if c.ReactivateThreshold == nil {
		return 20
	}
	return *c.ReactivateThreshold
}

// GetAssociationMode returns the association_mode value or the default.
func (c *TuningConfig) GetAssociationMode() string {
	if c.AssociationMode == nil {
		return AssociationGreedy
	}
	return *c.AssociationMode
}

// GetMaxAssociationError returns the max_association_error value or a
// default suited to the describer's metric.
func (c *TuningConfig) GetMaxAssociationError() float64 {
	if c.MaxAssociationError != nil {
		return *c.MaxAssociationError
	}
	if c.GetDescriber() == "ncc" {
		return 0.2
	}
	return float64(c.GetDescriptorBits()) / 4
}

// GetAmbiguityRatio returns the ambiguity_ratio value or the default.
func (c *TuningConfig) GetAmbiguityRatio() float64 {
	if c.AmbiguityRatio == nil {
		return 0.1
	}
	return *c.AmbiguityRatio
}

// GetBackwardsValidation returns the backwards_validation value or the default.
func (c *TuningConfig) GetBackwardsValidation() bool {
	if c.BackwardsValidation == nil {
		return true
	}
	return *c.BackwardsValidation
}

// GetBackwardsTolerance returns the backwards_tolerance value or the default.
func (c *TuningConfig) GetBackwardsTolerance() float64 {
	if c.BackwardsTolerance == nil {
		return 0
	}
	return *c.BackwardsTolerance
}

// GetDetector returns the detector value or the default.
func (c *TuningConfig) GetDetector() string {
	if c.Detector == nil {
		return "shi_tomasi"
	}
	return *c.Detector
}

// GetMaxFeatures returns the max_features value or the default.
func (c *TuningConfig) GetMaxFeatures() int {
	if c.MaxFeatures == nil {
		return 200
	}
	return *c.MaxFeatures
}

// GetDetectRadius returns the detect_radius value or the default.
func (c *TuningConfig) GetDetectRadius() int {
	if c.DetectRadius == nil {
		return 3
	}
	return *c.DetectRadius
}

// GetDetectBorder returns the detect_border value or the default.
func (c *TuningConfig) GetDetectBorder() int {
	if c.DetectBorder == nil {
		return 20
	}
	return *c.DetectBorder
}

// GetDetectRelativeThreshold returns the detect_relative_threshold value or the default.
func (c *TuningConfig) GetDetectRelativeThreshold() float64 {
	if c.DetectRelativeThreshold == nil {
		return 0.01
	}
	return *c.DetectRelativeThreshold
}

// GetFastThreshold returns the fast_threshold value or the default.
func (c *TuningConfig) GetFastThreshold() float64 {
	if c.FastThreshold == nil {
		return 20
	}
	return *c.FastThreshold
}

// GetHarrisK returns the harris_k value or the default.
func (c *TuningConfig) GetHarrisK() float64 {
	if c.HarrisK == nil {
		return 0.04
	}
	return *c.HarrisK
}

// GetDescriber returns the describer value or the default.
func (c *TuningConfig) GetDescriber() string {
	if c.Describer == nil {
		return "brief"
	}
	return *c.Describer
}

// GetDescribeRadius returns the describe_radius value or the default.
func (c *TuningConfig) GetDescribeRadius() int {
	if c.DescribeRadius == nil {
		return 16
	}
	return *c.DescribeRadius
}

// GetDescriptorBits returns the descriptor_bits value or the default.
func (c *TuningConfig) GetDescriptorBits() int {
	if c.DescriptorBits == nil {
		return 256
	}
	return *c.DescriptorBits
}

// GetDescriptorSeed returns the descriptor_seed value or the default.
func (c *TuningConfig) GetDescriptorSeed() int64 {
	if c.DescriptorSeed == nil {
		return 0x5eed
	}
	return *c.DescriptorSeed
}

// GetWorkers returns the workers value or the default. Zero means one
// worker per CPU.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetBackend returns the backend value or the default.
func (c *TuningConfig) GetBackend() string {
	if c.Backend == nil {
		return BackendNative
	}
	return *c.Backend
}
