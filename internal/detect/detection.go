package detect

import (
	"context"
	"fmt"
	"time"
)

// ObstacleClass identifies the category of a detected obstacle.
type ObstacleClass string

const (
	ClassHuman   ObstacleClass = "human"
	ClassVehicle ObstacleClass = "vehicle"
	ClassAnimal  ObstacleClass = "animal"
	ClassDebris  ObstacleClass = "debris"
)

// BBox is an axis-aligned bounding box in pixel space. A well-formed box has
// X2 > X1 and Y2 > Y1.
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns the pixel width of the box.
func (b BBox) Width() int { return b.X2 - b.X1 }

// Height returns the pixel height of the box.
func (b BBox) Height() int { return b.Y2 - b.Y1 }

// Area returns the pixel area of the box.
func (b BBox) Area() int { return b.Width() * b.Height() }

// Center returns the center point of the box.
func (b BBox) Center() (x, y float64) {
	return float64(b.X1+b.X2) / 2, float64(b.Y1+b.Y2) / 2
}

// AspectRatio returns the ratio of the longer side to the shorter side.
// A degenerate box with a zero-length side returns 0.
func (b BBox) AspectRatio() float64 {
	w, h := b.Width(), b.Height()
	longer, shorter := w, h
	if h > w {
		longer, shorter = h, w
	}
	if shorter <= 0 {
		return 0
	}
	return float64(longer) / float64(shorter)
}

// Valid reports whether the box has positive extent on both axes.
func (b BBox) Valid() bool { return b.X2 > b.X1 && b.Y2 > b.Y1 }

// Detection is a single per-frame obstacle observation from the external
// detector. Detections are immutable once produced.
type Detection struct {
	Class      ObstacleClass `json:"class"`
	Confidence float64       `json:"confidence"`
	BBox       BBox          `json:"bbox"`
}

// Validate checks the detector contract: a well-formed bounding box and a
// confidence within [0, 1].
func (d Detection) Validate() error {
	if !d.BBox.Valid() {
		return fmt.Errorf("detect: degenerate bbox (%d,%d,%d,%d)", d.BBox.X1, d.BBox.Y1, d.BBox.X2, d.BBox.Y2)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("detect: confidence %.3f outside [0,1]", d.Confidence)
	}
	return nil
}

// Sanitize drops malformed detections before they can enter the tracker.
// Malformed input is not an incident and not fatal; dropped detections are
// counted in the second return value.
func Sanitize(detections []Detection) ([]Detection, int) {
	valid := make([]Detection, 0, len(detections))
	dropped := 0
	for _, d := range detections {
		if d.Validate() != nil {
			dropped++
			continue
		}
		valid = append(valid, d)
	}
	return valid, dropped
}

// FilterByConfidence keeps detections with confidence >= min.
func FilterByConfidence(detections []Detection, min float64) []Detection {
	out := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence >= min {
			out = append(out, d)
		}
	}
	return out
}

// FilterByClass keeps detections whose class is in the given set.
func FilterByClass(detections []Detection, classes ...ObstacleClass) []Detection {
	keep := make(map[ObstacleClass]bool, len(classes))
	for _, c := range classes {
		keep[c] = true
	}
	out := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if keep[d.Class] {
			out = append(out, d)
		}
	}
	return out
}

// Frame carries the per-frame metadata the pipeline needs alongside the
// detection list. The pixel dimensions drive zone geometry initialisation.
type Frame struct {
	Index     int
	Width     int
	Height    int
	Timestamp time.Time
}

// Detector is the boundary to the external object-detection model. An empty
// detection list is a valid "no obstacles" result.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]Detection, error)
}
