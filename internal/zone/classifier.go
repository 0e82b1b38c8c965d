// Package zone maps pixel positions onto the railway corridor geometry.
package zone

import (
	"errors"

	"github.com/railwatch-data/railwatch/internal/detect"
)

// Zone identifies which part of the corridor a point falls in.
type Zone string

const (
	ZoneCritical Zone = "critical" // On the track itself
	ZoneWarning  Zone = "warning"  // In the adjacent clearance band
	ZoneSafe     Zone = "safe"     // Outside the corridor
)

// ErrNotInitialized is returned when the classifier has not yet seen the
// frame dimensions.
var ErrNotInitialized = errors.New("zone: classifier not initialized with frame dimensions")

// ClassifierConfig holds the corridor geometry as fractions of the frame.
type ClassifierConfig struct {
	TopFraction           float64 // Vertical start of the monitored band
	BottomFraction        float64 // Vertical end of the monitored band
	CriticalWidthFraction float64 // Width of the track zone
	WarningWidthFraction  float64 // Width of the clearance zone
	CenterFraction        float64 // Horizontal center of the track
}

// DefaultClassifierConfig returns the default corridor geometry.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		TopFraction:           0.4,
		BottomFraction:        0.95,
		CriticalWidthFraction: 0.25,
		WarningWidthFraction:  0.40,
		CenterFraction:        0.5,
	}
}

// Rect is a pixel-space rectangle, exported for overlay rendering.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Rects holds the zone rectangles in pixel coordinates.
type Rects struct {
	Critical Rect `json:"critical"`
	Warning  Rect `json:"warning"`
}

// Classifier assigns detections to corridor zones based on their bounding box
// center. It must be initialized with the frame dimensions before use and can
// be reinitialized when the dimensions change.
type Classifier struct {
	config ClassifierConfig

	width  int
	height int

	top           float64
	bottom        float64
	centerX       float64
	criticalHalfW float64
	warningHalfW  float64
}

// NewClassifier creates an uninitialized classifier.
func NewClassifier(config ClassifierConfig) *Classifier {
	return &Classifier{config: config}
}

// Init computes the pixel geometry for the given frame dimensions. Calling it
// again with different dimensions recomputes the zones.
func (c *Classifier) Init(width, height int) {
	c.width = width
	c.height = height
	c.top = c.config.TopFraction * float64(height)
	c.bottom = c.config.BottomFraction * float64(height)
	c.centerX = c.config.CenterFraction * float64(width)
	c.criticalHalfW = c.config.CriticalWidthFraction * float64(width) / 2
	c.warningHalfW = c.config.WarningWidthFraction * float64(width) / 2
}

// Initialized reports whether the classifier has frame geometry.
func (c *Classifier) Initialized() bool { return c.width > 0 && c.height > 0 }

// Dimensions returns the frame dimensions the classifier was initialized with.
func (c *Classifier) Dimensions() (width, height int) { return c.width, c.height }

// Classify returns the zone for a detection's bounding box center.
func (c *Classifier) Classify(d detect.Detection) (Zone, error) {
	cx, cy := d.BBox.Center()
	return c.ClassifyPoint(cx, cy)
}

// ClassifyPoint returns the zone for a pixel coordinate. Points outside the
// monitored vertical band are safe regardless of horizontal position.
func (c *Classifier) ClassifyPoint(x, y float64) (Zone, error) {
	if !c.Initialized() {
		return "", ErrNotInitialized
	}
	if y < c.top || y > c.bottom {
		return ZoneSafe, nil
	}
	dist := x - c.centerX
	if dist < 0 {
		dist = -dist
	}
	if dist <= c.criticalHalfW {
		return ZoneCritical, nil
	}
	if dist <= c.warningHalfW {
		return ZoneWarning, nil
	}
	return ZoneSafe, nil
}

// ZoneRects exports the critical and warning zones as pixel rectangles.
func (c *Classifier) ZoneRects() (Rects, error) {
	if !c.Initialized() {
		return Rects{}, ErrNotInitialized
	}
	return Rects{
		Critical: Rect{
			X1: int(c.centerX - c.criticalHalfW),
			Y1: int(c.top),
			X2: int(c.centerX + c.criticalHalfW),
			Y2: int(c.bottom),
		},
		Warning: Rect{
			X1: int(c.centerX - c.warningHalfW),
			Y1: int(c.top),
			X2: int(c.centerX + c.warningHalfW),
			Y2: int(c.bottom),
		},
	}, nil
}
