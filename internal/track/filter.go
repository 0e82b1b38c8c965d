package track

import (
	"math"
	"sync"
	"time"

	"github.com/railwatch-data/railwatch/internal/detect"
)

// FilterConfig holds thresholds for rejecting implausible detections.
type FilterConfig struct {
	MinAreaPx       int     // Boxes smaller than this are noise
	MaxAspectRatio  float64 // Boxes more elongated than this are artifacts
	MinDebrisConf   float64 // Debris needs higher confidence than other classes
	DuplicateRadius float64 // Center distance for duplicate suppression (pixels)
	DuplicateWindow time.Duration
	DuplicateCap    int // Ring buffer size for recent alerts
}

// DefaultFilterConfig returns default false-alert filter configuration.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinAreaPx:       1000,
		MaxAspectRatio:  10,
		MinDebrisConf:   0.6,
		DuplicateRadius: 50,
		DuplicateWindow: 30 * time.Second,
		DuplicateCap:    100,
	}
}

// FalseAlertFilter rejects confirmed obstacles that are implausible on
// geometric or confidence grounds before they can raise an alert.
type FalseAlertFilter struct {
	config     FilterConfig
	suppressed int

	mu sync.Mutex
}

// NewFalseAlertFilter creates a filter with the given thresholds.
func NewFalseAlertFilter(config FilterConfig) *FalseAlertFilter {
	return &FalseAlertFilter{config: config}
}

// Accept reports whether one confirmed obstacle survives the plausibility
// checks. Rejections increment the suppressed counter.
func (f *FalseAlertFilter) Accept(o ConfirmedObstacle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	d := o.Detection
	if d.BBox.Area() < f.config.MinAreaPx {
		f.suppressed++
		return false
	}
	if d.BBox.AspectRatio() > f.config.MaxAspectRatio {
		f.suppressed++
		return false
	}
	if d.Class == detect.ClassDebris && d.Confidence < f.config.MinDebrisConf {
		f.suppressed++
		return false
	}
	return true
}

// Filter returns the obstacles that pass Accept, preserving order.
func (f *FalseAlertFilter) Filter(obstacles []ConfirmedObstacle) []ConfirmedObstacle {
	out := make([]ConfirmedObstacle, 0, len(obstacles))
	for _, o := range obstacles {
		if f.Accept(o) {
			out = append(out, o)
		}
	}
	return out
}

// Suppressed returns how many obstacles the filter has rejected.
func (f *FalseAlertFilter) Suppressed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suppressed
}

type recentAlert struct {
	class detect.ObstacleClass
	cx    float64
	cy    float64
	at    time.Time
}

// DuplicateSuppressor drops alerts that repeat a recent alert for the same
// obstacle class at nearly the same location. Recent alerts live in a bounded
// ring buffer; duplicates are never recorded, so a stream of repeats stays
// suppressed until the original entry ages out of the window.
type DuplicateSuppressor struct {
	config FilterConfig
	recent []recentAlert
	now    func() time.Time

	mu sync.Mutex
}

// NewDuplicateSuppressor creates a suppressor with the given configuration.
func NewDuplicateSuppressor(config FilterConfig) *DuplicateSuppressor {
	return &DuplicateSuppressor{
		config: config,
		recent: make([]recentAlert, 0, config.DuplicateCap),
		now:    time.Now,
	}
}

// IsDuplicate reports whether the detection duplicates a recent alert. A
// non-duplicate is recorded as a new recent alert.
func (s *DuplicateSuppressor) IsDuplicate(d detect.Detection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cx, cy := d.BBox.Center()

	for _, r := range s.recent {
		if r.class != d.Class {
			continue
		}
		if now.Sub(r.at) > s.config.DuplicateWindow {
			continue
		}
		if math.Hypot(cx-r.cx, cy-r.cy) < s.config.DuplicateRadius {
			return true
		}
	}

	s.recent = append(s.recent, recentAlert{class: d.Class, cx: cx, cy: cy, at: now})
	if len(s.recent) > s.config.DuplicateCap {
		s.recent = s.recent[len(s.recent)-s.config.DuplicateCap:]
	}
	return false
}

// Reset clears the recent-alert buffer.
func (s *DuplicateSuppressor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = s.recent[:0]
}
