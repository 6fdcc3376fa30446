package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestDefaultAnalysisConfig(t *testing.T) {
	cfg := DefaultAnalysisConfig()

	// Test that defaults are set via pointers
	if cfg.MaxFitIterations == nil || *cfg.MaxFitIterations != 200 {
		t.Errorf("Expected MaxFitIterations 200, got %v", cfg.MaxFitIterations)
	}
	if cfg.LinearThresholdMultiplier == nil || *cfg.LinearThresholdMultiplier != 10.0 {
		t.Errorf("Expected LinearThresholdMultiplier 10.0, got %v", cfg.LinearThresholdMultiplier)
	}
	if cfg.ReviewTimeout == nil || *cfg.ReviewTimeout != "5s" {
		t.Errorf("Expected ReviewTimeout '5s', got %v", cfg.ReviewTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := EmptyAnalysisConfig()

	if got := cfg.GetMaxFitIterations(); got != 200 {
		t.Errorf("GetMaxFitIterations() = %d, want 200", got)
	}
	if got := cfg.GetLinearThresholdMultiplier(); got != 10.0 {
		t.Errorf("GetLinearThresholdMultiplier() = %f, want 10", got)
	}
	if got := cfg.GetExpectedRange(); got != 0 {
		t.Errorf("GetExpectedRange() = %f, want 0", got)
	}
	if got := cfg.GetWorkers(); got != runtime.GOMAXPROCS(0) {
		t.Errorf("GetWorkers() = %d, want GOMAXPROCS", got)
	}
	if got := cfg.GetReviewTimeout(); got != 5*time.Second {
		t.Errorf("GetReviewTimeout() = %v, want 5s", got)
	}
	if cfg.ChannelThreshold("FAM") != nil {
		t.Error("ChannelThreshold() should be nil when unset")
	}
	if cfg.Calibration("FAM") != nil {
		t.Error("Calibration() should be nil when unset")
	}
}

func TestLoadAnalysisConfigJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "run.json")

	testJSON := `{
  "max_fit_iterations": 50,
  "workers": 4,
  "review_timeout": "250ms",
  "channel_thresholds": {"FAM": 420.5},
  "calibrations": {"HEX": {"slope": -3.4, "intercept": 38.2}}
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadAnalysisConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetMaxFitIterations(); got != 50 {
		t.Errorf("GetMaxFitIterations() = %d, want 50", got)
	}
	if got := cfg.GetWorkers(); got != 4 {
		t.Errorf("GetWorkers() = %d, want 4", got)
	}
	if got := cfg.GetReviewTimeout(); got != 250*time.Millisecond {
		t.Errorf("GetReviewTimeout() = %v, want 250ms", got)
	}
	// Omitted fields fall back to defaults
	if got := cfg.GetLinearThresholdMultiplier(); got != 10.0 {
		t.Errorf("GetLinearThresholdMultiplier() = %f, want 10", got)
	}
	if th := cfg.ChannelThreshold("FAM"); th == nil || *th != 420.5 {
		t.Errorf("ChannelThreshold(FAM) = %v, want 420.5", th)
	}
	if cal := cfg.Calibration("HEX"); cal == nil || cal.Slope != -3.4 || cal.Intercept != 38.2 {
		t.Errorf("Calibration(HEX) = %+v", cal)
	}
}

func TestLoadAnalysisConfigYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "run.yaml")

	testYAML := `
linear_threshold_multiplier: 8
expected_range: 3000
channel_thresholds:
  ROX: 150
calibrations:
  FAM:
    slope: -3.32
    intercept: 40
`
	if err := os.WriteFile(configPath, []byte(testYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadAnalysisConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if got := cfg.GetLinearThresholdMultiplier(); got != 8 {
		t.Errorf("GetLinearThresholdMultiplier() = %f, want 8", got)
	}
	if got := cfg.GetExpectedRange(); got != 3000 {
		t.Errorf("GetExpectedRange() = %f, want 3000", got)
	}
	if th := cfg.ChannelThreshold("ROX"); th == nil || *th != 150 {
		t.Errorf("ChannelThreshold(ROX) = %v, want 150", th)
	}
	if cal := cfg.Calibration("FAM"); cal == nil || cal.Slope != -3.32 {
		t.Errorf("Calibration(FAM) = %+v", cal)
	}
}

func TestLoadAnalysisConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{"wrong extension", write("run.txt", `{}`)},
		{"missing file", filepath.Join(tmpDir, "absent.json")},
		{"bad json", write("bad.json", `{`)},
		{"zero iterations", write("iter.json", `{"max_fit_iterations": 0}`)},
		{"negative multiplier", write("mult.json", `{"linear_threshold_multiplier": -1}`)},
		{"negative workers", write("workers.yaml", "workers: -2\n")},
		{"bad timeout", write("timeout.json", `{"review_timeout": "soon"}`)},
		{"zero slope", write("slope.json", `{"calibrations": {"FAM": {"slope": 0, "intercept": 40}}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadAnalysisConfig(tt.path); err == nil {
				t.Errorf("LoadAnalysisConfig(%s) expected error", tt.name)
			}
		})
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if got := cfg.GetMaxFitIterations(); got != 200 {
		t.Errorf("GetMaxFitIterations() = %d, want 200", got)
	}
	if got := cfg.GetReviewTimeout(); got != 5*time.Second {
		t.Errorf("GetReviewTimeout() = %v, want 5s", got)
	}
}
