package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical fusion defaults file.
const DefaultConfigPath = "config/fusion.defaults.json"

// Lidar outlier features accepted by lidar_outlier_feature.
const (
	FeatureX = "x"
	FeatureY = "y"
	FeatureZ = "z"
)

// FusionConfig represents the tunable parameters of the TTC fusion pipeline.
// Every field is optional; the Get* accessors supply defaults for omitted
// fields, so partial JSON files are safe.
type FusionConfig struct {
	// Lidar clustering
	ShrinkFactor *float64 `json:"shrink_factor,omitempty"`

	// Camera TTC
	MinPixelDistance *float64 `json:"min_pixel_distance,omitempty"`

	// Outlier filtering (Tukey fences)
	OutlierIQRK         *float64 `json:"outlier_iqr_k,omitempty"`
	OutlierMinSamples   *int     `json:"outlier_min_samples,omitempty"`
	LidarOutlierFeature *string  `json:"lidar_outlier_feature,omitempty"`

	// Bounding box matching
	MinMatchVotes        *int  `json:"min_match_votes,omitempty"`
	IncludeLowConfidence *bool `json:"include_low_confidence,omitempty"`

	// Execution
	Workers     *int `json:"workers,omitempty"`
	HistorySize *int `json:"history_size,omitempty"`

	// Lidar crop (ego lane, road surface band)
	CropEnabled *bool    `json:"crop_enabled,omitempty"`
	CropMinX    *float64 `json:"crop_min_x,omitempty"`
	CropMaxX    *float64 `json:"crop_max_x,omitempty"`
	CropMaxY    *float64 `json:"crop_max_y,omitempty"`
	CropMinZ    *float64 `json:"crop_min_z,omitempty"`
	CropMaxZ    *float64 `json:"crop_max_z,omitempty"`
	CropMinR    *float64 `json:"crop_min_r,omitempty"`
}

// EmptyFusionConfig returns a FusionConfig with all fields set to nil.
func EmptyFusionConfig() *FusionConfig {
	return &FusionConfig{}
}

// LoadFusionConfig loads a FusionConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadFusionConfig(path string) (*FusionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFusionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded; intended for test setup.
func MustLoadDefaultConfig() *FusionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadFusionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *FusionConfig) Validate() error {
	if c.ShrinkFactor != nil {
		if v := *c.ShrinkFactor; math.IsNaN(v) || v < 0 || v >= 1 {
			return fmt.Errorf("shrink_factor must be in [0, 1), got %f", v)
		}
	}
	if c.MinPixelDistance != nil && !(*c.MinPixelDistance >= 0) {
		return fmt.Errorf("min_pixel_distance must be non-negative, got %f", *c.MinPixelDistance)
	}
	if c.OutlierIQRK != nil && math.IsNaN(*c.OutlierIQRK) {
		return fmt.Errorf("outlier_iqr_k must be a number")
	}
	if c.OutlierMinSamples != nil && *c.OutlierMinSamples < 0 {
		return fmt.Errorf("outlier_min_samples must be non-negative, got %d", *c.OutlierMinSamples)
	}
	if c.LidarOutlierFeature != nil {
		switch *c.LidarOutlierFeature {
		case FeatureX, FeatureY, FeatureZ:
		default:
			return fmt.Errorf("lidar_outlier_feature must be one of x, y, z, got %q", *c.LidarOutlierFeature)
		}
	}
	if c.MinMatchVotes != nil && *c.MinMatchVotes < 0 {
		return fmt.Errorf("min_match_votes must be non-negative, got %d", *c.MinMatchVotes)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.HistorySize != nil && *c.HistorySize < 2 {
		return fmt.Errorf("history_size must be at least 2, got %d", *c.HistorySize)
	}
	if c.GetCropMinX() > c.GetCropMaxX() {
		return fmt.Errorf("crop_min_x (%f) exceeds crop_max_x (%f)", c.GetCropMinX(), c.GetCropMaxX())
	}
	if c.GetCropMinZ() > c.GetCropMaxZ() {
		return fmt.Errorf("crop_min_z (%f) exceeds crop_max_z (%f)", c.GetCropMinZ(), c.GetCropMaxZ())
	}
	if c.GetCropMaxY() < 0 {
		return fmt.Errorf("crop_max_y must be non-negative, got %f", c.GetCropMaxY())
	}
	return nil
}

// GetShrinkFactor returns the shrink_factor value or the default.
func (c *FusionConfig) GetShrinkFactor() float64 {
	if c.ShrinkFactor == nil {
		return 0.10
	}
	return *c.ShrinkFactor
}

// GetMinPixelDistance returns the min_pixel_distance value or the default.
func (c *FusionConfig) GetMinPixelDistance() float64 {
	if c.MinPixelDistance == nil {
		return 100.0
	}
	return *c.MinPixelDistance
}

// GetOutlierIQRK returns the outlier_iqr_k value or the default.
func (c *FusionConfig) GetOutlierIQRK() float64 {
	if c.OutlierIQRK == nil {
		return 1.5
	}
	return *c.OutlierIQRK
}

// GetOutlierMinSamples returns the outlier_min_samples value or the default.
func (c *FusionConfig) GetOutlierMinSamples() int {
	if c.OutlierMinSamples == nil {
		return 4
	}
	return *c.OutlierMinSamples
}

// GetLidarOutlierFeature returns the lidar_outlier_feature value or the default.
func (c *FusionConfig) GetLidarOutlierFeature() string {
	if c.LidarOutlierFeature == nil {
		return FeatureX
	}
	return *c.LidarOutlierFeature
}

// GetMinMatchVotes returns the min_match_votes value or the default.
func (c *FusionConfig) GetMinMatchVotes() int {
	if c.MinMatchVotes == nil {
		return 1
	}
	return *c.MinMatchVotes
}

// GetIncludeLowConfidence returns the include_low_confidence value or the default.
func (c *FusionConfig) GetIncludeLowConfidence() bool {
	if c.IncludeLowConfidence == nil {
		return false
	}
	return *c.IncludeLowConfidence
}

// GetWorkers returns the workers value or the default. Zero means one worker
// per box.
func (c *FusionConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetHistorySize returns the history_size value or the default.
func (c *FusionConfig) GetHistorySize() int {
	if c.HistorySize == nil {
		return 2
	}
	return *c.HistorySize
}

// GetCropEnabled returns the crop_enabled value or the default.
func (c *FusionConfig) GetCropEnabled() bool {
	if c.CropEnabled == nil {
		return true
	}
	return *c.CropEnabled
}

// GetCropMinX returns the crop_min_x value or the default.
func (c *FusionConfig) GetCropMinX() float64 {
	if c.CropMinX == nil {
		return 2.0
	}
	return *c.CropMinX
}

// GetCropMaxX returns the crop_max_x value or the default.
func (c *FusionConfig) GetCropMaxX() float64 {
	if c.CropMaxX == nil {
		return 20.0
	}
	return *c.CropMaxX
}

// GetCropMaxY returns the crop_max_y value or the default.
func (c *FusionConfig) GetCropMaxY() float64 {
	if c.CropMaxY == nil {
		return 2.0
	}
	return *c.CropMaxY
}

// GetCropMinZ returns the crop_min_z value or the default.
func (c *FusionConfig) GetCropMinZ() float64 {
	if c.CropMinZ == nil {
		return -1.5
	}
	return *c.CropMinZ
}

// GetCropMaxZ returns the crop_max_z value or the default.
func (c *FusionConfig) GetCropMaxZ() float64 {
	if c.CropMaxZ == nil {
		return -0.9
	}
	return *c.CropMaxZ
}

// GetCropMinR returns the crop_min_r value or the default.
func (c *FusionConfig) GetCropMinR() float64 {
	if c.CropMinR == nil {
		return 0.1
	}
	return *c.CropMinR
}
