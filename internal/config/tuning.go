package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/arbor.report/internal/metric"
	"github.com/banshee-data/arbor.report/internal/skeleton"
	"github.com/banshee-data/arbor.report/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the measurement and batch parameters. Every field is
// optional; the Get* accessors supply the default for anything omitted, so
// a partial file only overrides what it names.
type TuningConfig struct {
	// Leaf filtering
	FilterPercentage *float64 `json:"filter_percentage,omitempty"`

	// Height statistics
	TopN    *int `json:"top_n,omitempty"`
	BottomN *int `json:"bottom_n,omitempty"`

	// Stem diameter
	SliceToleranceM      *float64 `json:"slice_tolerance_m,omitempty"`
	StemClusterDistanceM *float64 `json:"stem_cluster_distance_m,omitempty"`

	// Stages
	ComputeCrown  *bool `json:"compute_crown,omitempty"`
	ComputeVolume *bool `json:"compute_volume,omitempty"`

	// Batch
	Workers *int `json:"workers,omitempty"`

	// External reconstruction
	ReconstructCommand *string `json:"reconstruct_command,omitempty"`
	ReconstructTimeout *string `json:"reconstruct_timeout,omitempty"` // duration string like "10m"
	ReconstructRetries *int    `json:"reconstruct_retries,omitempty"`

	// Output
	WritePlots  *bool   `json:"write_plots,omitempty"`
	WriteChart  *bool   `json:"write_chart,omitempty"`
	ReportUnits *string `json:"report_units,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a config with every field populated from the
// accessor defaults. Used to write a fresh defaults file.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		FilterPercentage:     ptrFloat64(e.GetFilterPercentage()),
		TopN:                 ptrInt(e.GetTopN()),
		BottomN:              ptrInt(e.GetBottomN()),
		SliceToleranceM:      ptrFloat64(e.GetSliceToleranceM()),
		StemClusterDistanceM: ptrFloat64(e.GetStemClusterDistanceM()),
		ComputeCrown:         ptrBool(e.GetComputeCrown()),
		ComputeVolume:        ptrBool(e.GetComputeVolume()),
		Workers:              ptrInt(e.GetWorkers()),
		ReconstructCommand:   ptrString(e.GetReconstructCommand()),
		ReconstructTimeout:   ptrString(e.GetReconstructTimeout().String()),
		ReconstructRetries:   ptrInt(e.GetReconstructRetries()),
		WritePlots:           ptrBool(e.GetWritePlots()),
		WriteChart:           ptrBool(e.GetWriteChart()),
		ReportUnits:          ptrString(e.GetReportUnits()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or a parent. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.FilterPercentage != nil {
		if p := *c.FilterPercentage; p <= 0 || p > 1 {
			return fmt.Errorf("filter_percentage must be in (0, 1], got %f", p)
		}
	}
	if c.TopN != nil && *c.TopN <= 0 {
		return fmt.Errorf("top_n must be positive, got %d", *c.TopN)
	}
	if c.BottomN != nil && *c.BottomN <= 0 {
		return fmt.Errorf("bottom_n must be positive, got %d", *c.BottomN)
	}
	if c.SliceToleranceM != nil && *c.SliceToleranceM <= 0 {
		return fmt.Errorf("slice_tolerance_m must be positive, got %f", *c.SliceToleranceM)
	}
	if c.StemClusterDistanceM != nil && *c.StemClusterDistanceM <= 0 {
		return fmt.Errorf("stem_cluster_distance_m must be positive, got %f", *c.StemClusterDistanceM)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.ReconstructTimeout != nil && *c.ReconstructTimeout != "" {
		if _, err := time.ParseDuration(*c.ReconstructTimeout); err != nil {
			return fmt.Errorf("invalid reconstruct_timeout '%s': %w", *c.ReconstructTimeout, err)
		}
	}
	if c.ReconstructRetries != nil && *c.ReconstructRetries < 0 {
		return fmt.Errorf("reconstruct_retries must be non-negative, got %d", *c.ReconstructRetries)
	}
	if c.ReportUnits != nil && !units.IsValid(*c.ReportUnits) {
		return fmt.Errorf("report_units must be one of %s, got %q", units.GetValidUnitsString(), *c.ReportUnits)
	}
	return nil
}

// GetFilterPercentage returns the filter_percentage value or the default.
func (c *TuningConfig) GetFilterPercentage() float64 {
	if c.FilterPercentage == nil {
		return skeleton.DefaultFilterPercentage
	}
	return *c.FilterPercentage
}

// GetTopN returns the top_n value or the default.
func (c *TuningConfig) GetTopN() int {
	if c.TopN == nil {
		return metric.DefaultTopN
	}
	return *c.TopN
}

// GetBottomN returns the bottom_n value or the default.
func (c *TuningConfig) GetBottomN() int {
	if c.BottomN == nil {
		return metric.DefaultBottomN
	}
	return *c.BottomN
}

// GetSliceToleranceM returns the slice_tolerance_m value or the default.
func (c *TuningConfig) GetSliceToleranceM() float64 {
	if c.SliceToleranceM == nil {
		return metric.DefaultDBHParams().SliceTolerance
	}
	return *c.SliceToleranceM
}

// GetStemClusterDistanceM returns the stem_cluster_distance_m value or the default.
func (c *TuningConfig) GetStemClusterDistanceM() float64 {
	if c.StemClusterDistanceM == nil {
		return metric.DefaultDBHParams().ClusterDistance
	}
	return *c.StemClusterDistanceM
}

// GetComputeCrown returns the compute_crown value or the default.
func (c *TuningConfig) GetComputeCrown() bool {
	if c.ComputeCrown == nil {
		return true
	}
	return *c.ComputeCrown
}

// GetComputeVolume returns the compute_volume value or the default.
func (c *TuningConfig) GetComputeVolume() bool {
	if c.ComputeVolume == nil {
		return true
	}
	return *c.ComputeVolume
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetReconstructCommand returns the reconstruct_command value or the default (disabled).
func (c *TuningConfig) GetReconstructCommand() string {
	if c.ReconstructCommand == nil {
		return ""
	}
	return *c.ReconstructCommand
}

// GetReconstructTimeout parses and returns the ReconstructTimeout as a time.Duration.
func (c *TuningConfig) GetReconstructTimeout() time.Duration {
	if c.ReconstructTimeout == nil || *c.ReconstructTimeout == "" {
		return 10 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.ReconstructTimeout)
	if err != nil {
		return 10 * time.Minute // default on parse error
	}
	return d
}

// GetReconstructRetries returns the reconstruct_retries value or the default.
func (c *TuningConfig) GetReconstructRetries() int {
	if c.ReconstructRetries == nil {
		return 1
	}
	return *c.ReconstructRetries
}

// GetWritePlots returns the write_plots value or the default.
func (c *TuningConfig) GetWritePlots() bool {
	if c.WritePlots == nil {
		return false
	}
	return *c.WritePlots
}

// GetWriteChart returns the write_chart value or the default.
func (c *TuningConfig) GetWriteChart() bool {
	if c.WriteChart == nil {
		return true
	}
	return *c.WriteChart
}

// GetReportUnits returns the report_units value or the default.
func (c *TuningConfig) GetReportUnits() string {
	if c.ReportUnits == nil {
		return units.Metres
	}
	return *c.ReportUnits
}

// DBHParams returns the stem diameter constants with the configured slice
// tolerance and cluster distance.
func (c *TuningConfig) DBHParams() metric.DBHParams {
	p := metric.DefaultDBHParams()
	p.SliceTolerance = c.GetSliceToleranceM()
	p.ClusterDistance = c.GetStemClusterDistanceM()
	return p
}
