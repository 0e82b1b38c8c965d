// Package config loads the pipeline tuning parameters from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/railwatch-data/railwatch/internal/risk"
	"github.com/railwatch-data/railwatch/internal/track"
	"github.com/railwatch-data/railwatch/internal/zone"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// PipelineConfig is the root tuning configuration. All fields are optional
// pointers so a partial JSON file only overrides what it names; the Get*
// methods supply defaults for the rest.
type PipelineConfig struct {
	// Tracker params
	MaxDisappeared   *int     `json:"max_disappeared,omitempty"`
	GatingDistancePx *float64 `json:"gating_distance_px,omitempty"`

	// Confirmation params
	MinConsecutiveFrames *int     `json:"min_consecutive_frames,omitempty"`
	MaxFrameGap          *int     `json:"max_frame_gap,omitempty"`
	MovementThresholdPx  *float64 `json:"movement_threshold_px,omitempty"`
	PositionWindow       *int     `json:"position_window,omitempty"`
	InactivityTimeout    *string  `json:"inactivity_timeout,omitempty"` // duration string like "10s"

	// False-alert filter params
	MinAreaPx       *int     `json:"min_area_px,omitempty"`
	MaxAspectRatio  *float64 `json:"max_aspect_ratio,omitempty"`
	MinDebrisConf   *float64 `json:"min_debris_confidence,omitempty"`
	DuplicateRadius *float64 `json:"duplicate_radius_px,omitempty"`
	DuplicateWindow *string  `json:"duplicate_window,omitempty"` // duration string like "30s"
	DuplicateCap    *int     `json:"duplicate_cap,omitempty"`

	// Zone geometry (fractions of the frame)
	ZoneTopFraction           *float64 `json:"zone_top_fraction,omitempty"`
	ZoneBottomFraction        *float64 `json:"zone_bottom_fraction,omitempty"`
	ZoneCriticalWidthFraction *float64 `json:"zone_critical_width_fraction,omitempty"`
	ZoneWarningWidthFraction  *float64 `json:"zone_warning_width_fraction,omitempty"`
	ZoneCenterFraction        *float64 `json:"zone_center_fraction,omitempty"`

	// Distance estimation params
	FocalLengthPx *float64 `json:"focal_length_px,omitempty"`
	TrainSpeedKmh *float64 `json:"train_speed_kmh,omitempty"`

	// TTC level cutoffs in seconds
	TTCCriticalS *float64 `json:"ttc_critical_s,omitempty"`
	TTCHighS     *float64 `json:"ttc_high_s,omitempty"`
	TTCMediumS   *float64 `json:"ttc_medium_s,omitempty"`

	// Optional fixed camera position
	GPSLatitude  *float64 `json:"gps_latitude,omitempty"`
	GPSLongitude *float64 `json:"gps_longitude,omitempty"`
}

// Empty returns a PipelineConfig with all fields unset.
func Empty() *PipelineConfig {
	return &PipelineConfig{}
}

// Load reads a PipelineConfig from a JSON file. Fields omitted from the JSON
// keep their defaults, so partial configs are safe.
func Load(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Cap file size for safety (max 1MB)
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

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that set values are in range.
func (c *PipelineConfig) Validate() error {
	if c.MinConsecutiveFrames != nil && *c.MinConsecutiveFrames < 1 {
		return fmt.Errorf("min_consecutive_frames must be at least 1, got %d", *c.MinConsecutiveFrames)
	}
	if c.MaxFrameGap != nil && *c.MaxFrameGap < 0 {
		return fmt.Errorf("max_frame_gap must be non-negative, got %d", *c.MaxFrameGap)
	}
	if c.FocalLengthPx != nil && *c.FocalLengthPx <= 0 {
		return fmt.Errorf("focal_length_px must be positive, got %f", *c.FocalLengthPx)
	}
	if c.TrainSpeedKmh != nil && *c.TrainSpeedKmh < 0 {
		return fmt.Errorf("train_speed_kmh must be non-negative, got %f", *c.TrainSpeedKmh)
	}
	if ec := c.EstimatorConfig(); !(ec.TTCCriticalS < ec.TTCHighS && ec.TTCHighS < ec.TTCMediumS) {
		return fmt.Errorf("ttc cutoffs must be strictly increasing, got %g/%g/%g",
			ec.TTCCriticalS, ec.TTCHighS, ec.TTCMediumS)
	}
	if c.InactivityTimeout != nil && *c.InactivityTimeout != "" {
		if _, err := time.ParseDuration(*c.InactivityTimeout); err != nil {
			return fmt.Errorf("invalid inactivity_timeout '%s': %w", *c.InactivityTimeout, err)
		}
	}
	if c.DuplicateWindow != nil && *c.DuplicateWindow != "" {
		if _, err := time.ParseDuration(*c.DuplicateWindow); err != nil {
			return fmt.Errorf("invalid duplicate_window '%s': %w", *c.DuplicateWindow, err)
		}
	}
	for name, frac := range map[string]*float64{
		"zone_top_fraction":            c.ZoneTopFraction,
		"zone_bottom_fraction":         c.ZoneBottomFraction,
		"zone_critical_width_fraction": c.ZoneCriticalWidthFraction,
		"zone_warning_width_fraction":  c.ZoneWarningWidthFraction,
		"zone_center_fraction":         c.ZoneCenterFraction,
	} {
		if frac != nil && (*frac < 0 || *frac > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *frac)
		}
	}
	return nil
}

// TrackerConfig converts the tuning values to a tracker configuration.
func (c *PipelineConfig) TrackerConfig() track.TrackerConfig {
	cfg := track.DefaultTrackerConfig()
	if c.MaxDisappeared != nil {
		cfg.MaxDisappeared = *c.MaxDisappeared
	}
	if c.GatingDistancePx != nil {
		cfg.GatingDistancePx = *c.GatingDistancePx
	}
	return cfg
}

// ConfirmerConfig converts the tuning values to a confirmation configuration.
func (c *PipelineConfig) ConfirmerConfig() track.ConfirmerConfig {
	cfg := track.DefaultConfirmerConfig()
	if c.MinConsecutiveFrames != nil {
		cfg.MinConsecutiveFrames = *c.MinConsecutiveFrames
	}
	if c.MaxFrameGap != nil {
		cfg.MaxFrameGap = *c.MaxFrameGap
	}
	if c.MovementThresholdPx != nil {
		cfg.MovementThresholdPx = *c.MovementThresholdPx
	}
	if c.PositionWindow != nil {
		cfg.PositionWindow = *c.PositionWindow
	}
	if c.InactivityTimeout != nil && *c.InactivityTimeout != "" {
		if d, err := time.ParseDuration(*c.InactivityTimeout); err == nil {
			cfg.InactivityTimeout = d
		}
	}
	return cfg
}

// FilterConfig converts the tuning values to a false-alert filter
// configuration.
func (c *PipelineConfig) FilterConfig() track.FilterConfig {
	cfg := track.DefaultFilterConfig()
	if c.MinAreaPx != nil {
		cfg.MinAreaPx = *c.MinAreaPx
	}
	if c.MaxAspectRatio != nil {
		cfg.MaxAspectRatio = *c.MaxAspectRatio
	}
	if c.MinDebrisConf != nil {
		cfg.MinDebrisConf = *c.MinDebrisConf
	}
	if c.DuplicateRadius != nil {
		cfg.DuplicateRadius = *c.DuplicateRadius
	}
	if c.DuplicateWindow != nil && *c.DuplicateWindow != "" {
		if d, err := time.ParseDuration(*c.DuplicateWindow); err == nil {
			cfg.DuplicateWindow = d
		}
	}
	if c.DuplicateCap != nil {
		cfg.DuplicateCap = *c.DuplicateCap
	}
	return cfg
}

// ZoneConfig converts the tuning values to corridor geometry.
func (c *PipelineConfig) ZoneConfig() zone.ClassifierConfig {
	cfg := zone.DefaultClassifierConfig()
	if c.ZoneTopFraction != nil {
		cfg.TopFraction = *c.ZoneTopFraction
	}
	if c.ZoneBottomFraction != nil {
		cfg.BottomFraction = *c.ZoneBottomFraction
	}
	if c.ZoneCriticalWidthFraction != nil {
		cfg.CriticalWidthFraction = *c.ZoneCriticalWidthFraction
	}
	if c.ZoneWarningWidthFraction != nil {
		cfg.WarningWidthFraction = *c.ZoneWarningWidthFraction
	}
	if c.ZoneCenterFraction != nil {
		cfg.CenterFraction = *c.ZoneCenterFraction
	}
	return cfg
}

// EstimatorConfig converts the tuning values to distance estimation
// parameters.
func (c *PipelineConfig) EstimatorConfig() risk.EstimatorConfig {
	cfg := risk.DefaultEstimatorConfig()
	if c.FocalLengthPx != nil {
		cfg.FocalLengthPx = *c.FocalLengthPx
	}
	if c.TrainSpeedKmh != nil {
		cfg.TrainSpeedKmh = *c.TrainSpeedKmh
	}
	if c.TTCCriticalS != nil {
		cfg.TTCCriticalS = *c.TTCCriticalS
	}
	if c.TTCHighS != nil {
		cfg.TTCHighS = *c.TTCHighS
	}
	if c.TTCMediumS != nil {
		cfg.TTCMediumS = *c.TTCMediumS
	}
	return cfg
}

// GetTrainSpeedKmh returns the configured train speed or the default.
func (c *PipelineConfig) GetTrainSpeedKmh() float64 {
	if c.TrainSpeedKmh == nil {
		return risk.DefaultEstimatorConfig().TrainSpeedKmh
	}
	return *c.TrainSpeedKmh
}

// SaveCalibration updates the focal length in the config file in place,
// preserving all other fields. The file is created if missing.
func SaveCalibration(path string, focalLengthPx float64) error {
	cleanPath := filepath.Clean(path)

	cfg := Empty()
	if data, err := os.ReadFile(cleanPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse existing config: %w", err)
		}
	}

	cfg.FocalLengthPx = &focalLengthPx

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(cleanPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
