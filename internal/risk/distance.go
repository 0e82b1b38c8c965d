// Package risk estimates obstacle distance, time to collision, and an overall
// risk score for confirmed obstacles.
package risk

import (
	"fmt"
	"math"

	"github.com/railwatch-data/railwatch/internal/detect"
)

// EstimatorConfig holds the pinhole-camera parameters for monocular distance
// estimation and the TTC level cutoffs.
type EstimatorConfig struct {
	FocalLengthPx float64 // Effective focal length in pixels
	TrainSpeedKmh float64 // Assumed train speed for TTC when none is supplied

	// TTC level cutoffs in seconds, strictly increasing.
	TTCCriticalS float64
	TTCHighS     float64
	TTCMediumS   float64
}

// DefaultEstimatorConfig returns the default estimation parameters.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		FocalLengthPx: 800,
		TrainSpeedKmh: 60,
		TTCCriticalS:  20,
		TTCHighS:      40,
		TTCMediumS:    60,
	}
}

// Real-world obstacle heights in meters, used for similar-triangle distance
// estimation from bounding-box pixel height.
var classHeights = map[detect.ObstacleClass]float64{
	detect.ClassHuman:   1.7,
	detect.ClassVehicle: 1.5,
	detect.ClassAnimal:  0.8,
	detect.ClassDebris:  0.3,
}

const defaultClassHeight = 1.0

// TTCLevel buckets time to collision into urgency bands.
type TTCLevel string

const (
	TTCCritical TTCLevel = "critical"
	TTCHigh     TTCLevel = "high"
	TTCMedium   TTCLevel = "medium"
	TTCLow      TTCLevel = "low"
)

// Estimator converts bounding boxes to distance and TTC estimates.
type Estimator struct {
	config EstimatorConfig
}

// NewEstimator creates an estimator with the given camera parameters.
func NewEstimator(config EstimatorConfig) *Estimator {
	return &Estimator{config: config}
}

// FocalLength returns the focal length currently in use.
func (e *Estimator) FocalLength() float64 { return e.config.FocalLengthPx }

// Distance estimates the obstacle's distance in meters from its bounding-box
// pixel height. A zero-height box yields +Inf; results are clamped to be
// non-negative.
func (e *Estimator) Distance(d detect.Detection) float64 {
	pixelHeight := float64(d.BBox.Height())
	if pixelHeight == 0 {
		return math.Inf(1)
	}
	realHeight, ok := classHeights[d.Class]
	if !ok {
		realHeight = defaultClassHeight
	}
	dist := realHeight * e.config.FocalLengthPx / pixelHeight
	if dist < 0 {
		dist = 0
	}
	return dist
}

// TTC returns the time to collision in seconds for a distance in meters and a
// train speed in km/h. A stopped train yields +Inf.
func TTC(distanceM, speedKmh float64) float64 {
	if speedKmh == 0 {
		return math.Inf(1)
	}
	return distanceM / (speedKmh / 3.6)
}

// ClassifyTTC buckets a TTC value into an urgency band using the configured
// cutoffs, ascending first match.
func (e *Estimator) ClassifyTTC(ttc float64) TTCLevel {
	switch {
	case ttc < e.config.TTCCriticalS:
		return TTCCritical
	case ttc < e.config.TTCHighS:
		return TTCHigh
	case ttc < e.config.TTCMediumS:
		return TTCMedium
	default:
		return TTCLow
	}
}

// Calibrate derives the focal length from one reference observation: an
// object of known real height at a known distance occupying a known pixel
// height. The new focal length replaces the configured one.
func (e *Estimator) Calibrate(pixelHeight, knownDistanceM, knownHeightM float64) (float64, error) {
	if pixelHeight <= 0 || knownDistanceM <= 0 || knownHeightM <= 0 {
		return 0, fmt.Errorf("risk: calibration inputs must be positive (px=%.1f dist=%.2f height=%.2f)",
			pixelHeight, knownDistanceM, knownHeightM)
	}
	focal := pixelHeight * knownDistanceM / knownHeightM
	e.config.FocalLengthPx = focal
	return focal, nil
}
