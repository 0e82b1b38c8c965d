// Package incident turns classified obstacles into durable incident records
// and persists them for later analysis.
package incident

import (
	"time"

	"github.com/railwatch-data/railwatch/internal/detect"
	"github.com/railwatch-data/railwatch/internal/severity"
	"github.com/railwatch-data/railwatch/internal/zone"
)

// GPS is an optional geographic position attached to an incident.
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Obstacle describes the object that triggered the incident.
type Obstacle struct {
	Type            detect.ObstacleClass `json:"type"`
	Confidence      float64              `json:"confidence"`
	IsStatic        bool                 `json:"is_static"`
	DurationSeconds float64              `json:"duration_seconds"`
}

// Location pins the incident in frame and world coordinates.
type Location struct {
	Zone zone.Zone    `json:"zone"`
	BBox *detect.BBox `json:"bbox,omitempty"`
	GPS  *GPS         `json:"gps,omitempty"`
}

// Risk carries the numeric assessment behind the incident. Non-finite values
// are represented as nil pointers so records marshal cleanly to JSON.
type Risk struct {
	DistanceM     *float64 `json:"distance_m"`
	TTCSeconds    *float64 `json:"ttc_seconds"`
	TrainSpeedKmh *float64 `json:"train_speed_kmh"`
}

// Incident is one confirmed, classified obstacle event.
type Incident struct {
	ID                string            `json:"incident_id"`
	RunID             string            `json:"run_id"`
	Timestamp         time.Time         `json:"timestamp"`
	Severity          severity.Severity `json:"severity"`
	SeverityPriority  int               `json:"severity_priority"`
	Obstacle          Obstacle          `json:"obstacle"`
	Location          Location          `json:"location"`
	Risk              Risk              `json:"risk"`
	RecommendedAction string            `json:"recommended_action"`
	Explanation       string            `json:"explanation"`
	ImagePath         string            `json:"image_path,omitempty"`
}
