package pipeline

import (
	"fmt"
	"math"

	"github.com/banshee-data/collision.report/internal/config"
	"github.com/banshee-data/collision.report/internal/fusion/outlier"
	"github.com/banshee-data/collision.report/internal/fusion/projection"
	"github.com/banshee-data/collision.report/internal/fusion/ttc"
)

// Config holds the resolved parameters of a Processor.
type Config struct {
	FrameRate    float64 // Hz
	ShrinkFactor float64

	CameraFilter outlier.Filter
	LidarFilter  outlier.Filter
	LidarFeature outlier.Feature
	Camera       ttc.CameraParams

	MinMatchVotes        int
	IncludeLowConfidence bool

	// Workers bounds the per-box goroutines; 0 runs one per box.
	Workers int

	// Crop is applied to each frame's lidar points before clustering. Nil
	// disables cropping.
	Crop *projection.CropBounds
}

// DefaultConfig returns the pipeline defaults for a sequence recorded at
// frameRate.
func DefaultConfig(frameRate float64) Config {
	crop := projection.DefaultCropBounds()
	return Config{
		FrameRate:     frameRate,
		ShrinkFactor:  0.10,
		CameraFilter:  outlier.DefaultFilter(),
		LidarFilter:   outlier.DefaultFilter(),
		LidarFeature:  outlier.FeatureX,
		Camera:        ttc.DefaultCameraParams(),
		MinMatchVotes: 1,
		Workers:       4,
		Crop:          &crop,
	}
}

// ConfigFromFusion resolves a FusionConfig into a pipeline Config.
func ConfigFromFusion(fc *config.FusionConfig, frameRate float64) (Config, error) {
	if fc == nil {
		fc = config.EmptyFusionConfig()
	}
	if err := fc.Validate(); err != nil {
		return Config{}, err
	}
	feature, err := outlier.ParseFeature(fc.GetLidarOutlierFeature())
	if err != nil {
		return Config{}, err
	}

	filter := outlier.Filter{K: fc.GetOutlierIQRK(), MinSamples: fc.GetOutlierMinSamples()}
	cfg := Config{
		FrameRate:            frameRate,
		ShrinkFactor:         fc.GetShrinkFactor(),
		CameraFilter:         filter,
		LidarFilter:          filter,
		LidarFeature:         feature,
		Camera:               ttc.CameraParams{MinDist: fc.GetMinPixelDistance()},
		MinMatchVotes:        fc.GetMinMatchVotes(),
		IncludeLowConfidence: fc.GetIncludeLowConfidence(),
		Workers:              fc.GetWorkers(),
	}
	if fc.GetCropEnabled() {
		cfg.Crop = &projection.CropBounds{
			MinX: fc.GetCropMinX(),
			MaxX: fc.GetCropMaxX(),
			MaxY: fc.GetCropMaxY(),
			MinZ: fc.GetCropMinZ(),
			MaxZ: fc.GetCropMaxZ(),
			MinR: fc.GetCropMinR(),
		}
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if !(c.FrameRate > 0) || math.IsInf(c.FrameRate, 0) {
		return fmt.Errorf("%w: %v", ttc.ErrInvalidFrameRate, c.FrameRate)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}
