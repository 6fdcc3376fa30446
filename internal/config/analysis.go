package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/curve"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/threshold"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

const maxFitIterationsLimit = 10000

// AnalysisConfig represents the root configuration for a batch analysis.
// Every scalar is a pointer so that partial files leave the remaining
// settings at their defaults; the Get* methods resolve them.
type AnalysisConfig struct {
	// Fitter
	MaxFitIterations *int `json:"max_fit_iterations,omitempty" yaml:"max_fit_iterations,omitempty"`

	// Threshold
	LinearThresholdMultiplier *float64 `json:"linear_threshold_multiplier,omitempty" yaml:"linear_threshold_multiplier,omitempty"`
	// ChannelThresholds are operator-set thresholds keyed by channel. A
	// channel listed here bypasses the sigmoid and linear strategies.
	ChannelThresholds map[string]float64 `json:"channel_thresholds,omitempty" yaml:"channel_thresholds,omitempty"`
	// Calibrations are standard curves keyed by channel, used for CalcJ.
	Calibrations map[string]threshold.Calibration `json:"calibrations,omitempty" yaml:"calibrations,omitempty"`

	// Anomaly
	ExpectedRange *float64 `json:"expected_range,omitempty" yaml:"expected_range,omitempty"`

	// Batch
	Workers       *int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	ReviewTimeout *string `json:"review_timeout,omitempty" yaml:"review_timeout,omitempty"` // duration string like "5s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every scalar set to its
// default value.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		MaxFitIterations:          ptrInt(curve.DefaultMaxIterations),
		LinearThresholdMultiplier: ptrFloat64(threshold.DefaultLinearMultiplier),
		ExpectedRange:             ptrFloat64(0),
		Workers:                   ptrInt(0),
		ReviewTimeout:             ptrString("5s"),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON or YAML file.
// The file is validated to have a .json, .yaml or .yml extension and to be
// under the max file size. Fields omitted from the file retain their
// default values, so partial configs are safe.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
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

	cfg := EmptyAnalysisConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", ext, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent
// directories. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	if c.MaxFitIterations != nil {
		if *c.MaxFitIterations <= 0 || *c.MaxFitIterations > maxFitIterationsLimit {
			return fmt.Errorf("max_fit_iterations must be between 1 and %d, got %d", maxFitIterationsLimit, *c.MaxFitIterations)
		}
	}

	if c.LinearThresholdMultiplier != nil && *c.LinearThresholdMultiplier <= 0 {
		return fmt.Errorf("linear_threshold_multiplier must be positive, got %f", *c.LinearThresholdMultiplier)
	}

	if c.ExpectedRange != nil && *c.ExpectedRange < 0 {
		return fmt.Errorf("expected_range must be non-negative, got %f", *c.ExpectedRange)
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	// Validate ReviewTimeout can be parsed if set
	if c.ReviewTimeout != nil && *c.ReviewTimeout != "" {
		if _, err := time.ParseDuration(*c.ReviewTimeout); err != nil {
			return fmt.Errorf("invalid review_timeout '%s': %w", *c.ReviewTimeout, err)
		}
	}

	for ch, th := range c.ChannelThresholds {
		if math.IsNaN(th) || math.IsInf(th, 0) {
			return fmt.Errorf("channel_thresholds[%s] must be finite", ch)
		}
	}

	for ch, cal := range c.Calibrations {
		if cal.Slope == 0 {
			return fmt.Errorf("calibrations[%s].slope must be non-zero", ch)
		}
	}

	return nil
}

// GetMaxFitIterations returns the max_fit_iterations value or the default.
func (c *AnalysisConfig) GetMaxFitIterations() int {
	if c.MaxFitIterations == nil {
		return curve.DefaultMaxIterations
	}
	return *c.MaxFitIterations
}

// GetLinearThresholdMultiplier returns the linear_threshold_multiplier value or the default.
func (c *AnalysisConfig) GetLinearThresholdMultiplier() float64 {
	if c.LinearThresholdMultiplier == nil {
		return threshold.DefaultLinearMultiplier
	}
	return *c.LinearThresholdMultiplier
}

// GetExpectedRange returns the expected_range value or the default (0, meaning per-curve).
func (c *AnalysisConfig) GetExpectedRange() float64 {
	if c.ExpectedRange == nil {
		return 0
	}
	return *c.ExpectedRange
}

// GetWorkers returns the workers value, resolving 0 to GOMAXPROCS.
func (c *AnalysisConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return *c.Workers
}

// GetReviewTimeout parses and returns the ReviewTimeout as a time.Duration.
func (c *AnalysisConfig) GetReviewTimeout() time.Duration {
	if c.ReviewTimeout == nil || *c.ReviewTimeout == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ReviewTimeout)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// ChannelThreshold returns the operator threshold for channel, or nil.
func (c *AnalysisConfig) ChannelThreshold(channel string) *float64 {
	th, ok := c.ChannelThresholds[channel]
	if !ok {
		return nil
	}
	return &th
}

// Calibration returns the standard curve for channel, or nil.
func (c *AnalysisConfig) Calibration(channel string) *threshold.Calibration {
	cal, ok := c.Calibrations[channel]
	if !ok {
		return nil
	}
	return &cal
}
