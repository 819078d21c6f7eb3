package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	// Test that defaults are set via pointers
	if cfg.TemplateRadius == nil || *cfg.TemplateRadius != 3 {
		t.Errorf("Expected TemplateRadius 3, got %v", cfg.TemplateRadius)
	}
	if cfg.BackwardsValidation == nil || *cfg.BackwardsValidation != true {
		t.Errorf("Expected BackwardsValidation true, got %v", cfg.BackwardsValidation)
	}
	if cfg.AssociationMode == nil || *cfg.AssociationMode != AssociationGreedy {
		t.Errorf("Expected AssociationMode 'greedy', got %v", cfg.AssociationMode)
	}
	if cfg.MaxTracks == nil || *cfg.MaxTracks != 300 {
		t.Errorf("Expected MaxTracks 300, got %v", cfg.MaxTracks)
	}
	if !reflect.DeepEqual(cfg.PyramidScales, []int{1, 2, 4}) {
		t.Errorf("Expected PyramidScales [1 2 4], got %v", cfg.PyramidScales)
	}

	// Test getter methods
	if cfg.GetConvergenceTol() != 0.01 {
		t.Errorf("GetConvergenceTol() = %f, want 0.01", cfg.GetConvergenceTol())
	}
	if cfg.GetReactivateThreshold() != 20 {
		t.Errorf("GetReactivateThreshold() = %d, want 20", cfg.GetReactivateThreshold())
	}
	if cfg.GetBackend() != BackendNative {
		t.Errorf("GetBackend() = %q, want %q", cfg.GetBackend(), BackendNative)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultTuningConfig().Validate() = %v", err)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	// Create temporary directory
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "pyramid_scales": [1, 3, 9],
  "template_radius": 6,
  "max_tracks": 50,
  "association_mode": "optimal",
  "backwards_validation": false,
  "describer": "ncc"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	// Load the config
	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify values
	if !reflect.DeepEqual(cfg.GetPyramidScales(), []int{1, 3, 9}) {
		t.Errorf("Expected PyramidScales [1 3 9], got %v", cfg.PyramidScales)
	}
	if cfg.TemplateRadius == nil || *cfg.TemplateRadius != 6 {
		t.Errorf("Expected TemplateRadius 6, got %v", cfg.TemplateRadius)
	}
	if cfg.MaxTracks == nil || *cfg.MaxTracks != 50 {
		t.Errorf("Expected MaxTracks 50, got %v", cfg.MaxTracks)
	}
	if cfg.GetAssociationMode() != AssociationOptimal {
		t.Errorf("Expected AssociationMode 'optimal', got %q", cfg.GetAssociationMode())
	}
	if cfg.GetBackwardsValidation() != false {
		t.Errorf("Expected BackwardsValidation false, got %v", cfg.GetBackwardsValidation())
	}
	// The NCC describer gets an NCC-scaled association gate.
	if cfg.GetMaxAssociationError() != 0.2 {
		t.Errorf("Expected MaxAssociationError 0.2 for ncc, got %f", cfg.GetMaxAssociationError())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	// Write invalid JSON
	invalidJSON := `{
  "template_radius": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr string
	}{
		{name: "empty", cfg: EmptyTuningConfig()},
		{name: "defaults", cfg: DefaultTuningConfig()},
		{
			name:    "non-positive scale",
			cfg:     &TuningConfig{PyramidScales: []int{0, 2}},
			wantErr: "pyramid_scales[0]",
		},
		{
			name:    "scales not increasing",
			cfg:     &TuningConfig{PyramidScales: []int{1, 4, 2}},
			wantErr: "strictly increasing",
		},
		{
			name:    "zero radius",
			cfg:     &TuningConfig{TemplateRadius: ptrInt(0)},
			wantErr: "template_radius",
		},
		{
			name:    "zero iterations",
			cfg:     &TuningConfig{MaxIterations: ptrInt(0)},
			wantErr: "max_iterations",
		},
		{
			name:    "zero tolerance",
			cfg:     &TuningConfig{ConvergenceTol: ptrFloat64(0)},
			wantErr: "convergence_tol",
		},
		{
			name:    "negative separation",
			cfg:     &TuningConfig{MinSpawnSeparation: ptrFloat64(-1)},
			wantErr: "min_spawn_separation",
		},
		{
			name:    "ambiguity ratio of one",
			cfg:     &TuningConfig{AmbiguityRatio: ptrFloat64(1)},
			wantErr: "ambiguity_ratio",
		},
		{
			name:    "unknown association mode",
			cfg:     &TuningConfig{AssociationMode: ptrString("auction")},
			wantErr: "association_mode",
		},
		{
			name:    "unknown detector",
			cfg:     &TuningConfig{Detector: ptrString("sift")},
			wantErr: "detector",
		},
		{
			name:    "unknown backend",
			cfg:     &TuningConfig{Backend: ptrString("cuda")},
			wantErr: "backend",
		},
		{
			name:    "negative workers",
			cfg:     &TuningConfig{Workers: ptrInt(-1)},
			wantErr: "workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetMaxAssociationError(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want float64
	}{
		{"default brief", &TuningConfig{}, 64},
		{"shorter brief", &TuningConfig{DescriptorBits: ptrInt(128)}, 32},
		{"ncc", &TuningConfig{Describer: ptrString("ncc")}, 0.2},
		{"explicit", &TuningConfig{Describer: ptrString("ncc"), MaxAssociationError: ptrFloat64(0.5)}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetMaxAssociationError(); got != tt.want {
				t.Errorf("GetMaxAssociationError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetPyramidScalesReturnsCopy(t *testing.T) {
	cfg := &TuningConfig{PyramidScales: []int{1, 2}}
	got := cfg.GetPyramidScales()
	got[0] = 7
	if cfg.PyramidScales[0] != 1 {
		t.Errorf("GetPyramidScales() aliases the config slice")
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	// The defaults file must agree with the built-in fallbacks.
	if !reflect.DeepEqual(cfg, DefaultTuningConfig()) {
		got, _ := cfg.JSON()
		want, _ := DefaultTuningConfig().JSON()
		t.Errorf("defaults file differs from DefaultTuningConfig():\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.example.json")
	if err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	if cfg.GetTemplateRadius() != 5 {
		t.Errorf("Expected 5, got %d", cfg.GetTemplateRadius())
	}
	if cfg.GetDetector() != "fast" {
		t.Errorf("Expected fast, got %q", cfg.GetDetector())
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetMaxTracks() != 300 {
		t.Errorf("Expected 300, got %d", cfg.GetMaxTracks())
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	// Partial config: only override the radius; everything else should keep defaults.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "template_radius": 7
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	// Overridden value
	if cfg.GetTemplateRadius() != 7 {
		t.Errorf("Expected overridden TemplateRadius 7, got %d", cfg.GetTemplateRadius())
	}
	// Default values should be preserved
	if cfg.GetMaxIterations() != 15 {
		t.Errorf("Expected default MaxIterations 15, got %d", cfg.GetMaxIterations())
	}
	if cfg.GetBackwardsValidation() != true {
		t.Errorf("Expected default BackwardsValidation true, got %v", cfg.GetBackwardsValidation())
	}
	if cfg.GetDescriber() != "brief" {
		t.Errorf("Expected default Describer brief, got %q", cfg.GetDescriber())
	}
}

func TestLoadTuningConfigRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.json")
	if err := os.WriteFile(configPath, []byte(`{"pyramid_scales": [2, 1]}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	_, err := LoadTuningConfig(configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected invalid configuration error, got %v", err)
	}
}

func TestLoadTuningConfigRejectsPathTraversal(t *testing.T) {
	// Path traversal with ".." is allowed since this is a CLI-only flag,
	// but the file must still have a .json extension.
	_, err := LoadTuningConfig("../../etc/passwd")
	if err == nil {
		t.Error("Expected error for non-.json path, got nil")
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	// Create a file larger than 1MB
	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestGetterDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetMinTracks(); got != 100 {
		t.Errorf("GetMinTracks() = %d, want 100", got)
	}
	if got := cfg.GetMinSpawnSeparation(); got != 5 {
		t.Errorf("GetMinSpawnSeparation() = %f, want 5", got)
	}
	if got := cfg.GetAmbiguityRatio(); got != 0.1 {
		t.Errorf("GetAmbiguityRatio() = %f, want 0.1", got)
	}
	if got := cfg.GetBackwardsTolerance(); got != 0 {
		t.Errorf("GetBackwardsTolerance() = %f, want 0", got)
	}
	if got := cfg.GetDetector(); got != "shi_tomasi" {
		t.Errorf("GetDetector() = %q, want shi_tomasi", got)
	}
	if got := cfg.GetFastThreshold(); got != 20 {
		t.Errorf("GetFastThreshold() = %f, want 20", got)
	}
	if got := cfg.GetHarrisK(); got != 0.04 {
		t.Errorf("GetHarrisK() = %f, want 0.04", got)
	}
	if got := cfg.GetDescriptorSeed(); got != 0x5eed {
		t.Errorf("GetDescriptorSeed() = %d, want %d", got, 0x5eed)
	}
	if got := cfg.GetWorkers(); got != 0 {
		t.Errorf("GetWorkers() = %d, want 0", got)
	}
}
