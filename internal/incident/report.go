package incident

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/railwatch-data/railwatch/internal/detect"
	"github.com/railwatch-data/railwatch/internal/severity"
	"github.com/railwatch-data/railwatch/internal/zone"
)

// Reporter builds incident records. Every reporter carries a run id that ties
// all incidents from one processing session together.
type Reporter struct {
	runID string
	gps   *GPS
	now   func() time.Time
}

// NewReporter creates a reporter with a fresh run id.
func NewReporter() *Reporter {
	return &Reporter{
		runID: uuid.NewString(),
		now:   time.Now,
	}
}

// RunID returns the session identifier stamped on every incident.
func (r *Reporter) RunID() string { return r.runID }

// SetGPS attaches a fixed geographic position to subsequent incidents.
func (r *Reporter) SetGPS(lat, lon float64) {
	r.gps = &GPS{Latitude: lat, Longitude: lon}
}

// Generate builds a complete incident record from a severity classification
// and the originating detection.
func (r *Reporter) Generate(cls severity.Classification, d detect.Detection, duration time.Duration, speedKmh float64) Incident {
	now := r.now()
	in := cls.Input
	bbox := d.BBox

	inc := Incident{
		ID:               newIncidentID(now),
		RunID:            r.runID,
		Timestamp:        now,
		Severity:         cls.Severity,
		SeverityPriority: cls.Priority,
		Obstacle: Obstacle{
			Type:            in.Class,
			Confidence:      d.Confidence,
			IsStatic:        in.IsStatic,
			DurationSeconds: duration.Seconds(),
		},
		Location: Location{
			Zone: in.Zone,
			BBox: &bbox,
			GPS:  r.gps,
		},
		Risk: Risk{
			DistanceM:     finiteOrNil(in.Assessment.DistanceM),
			TTCSeconds:    finiteOrNil(in.TTCSeconds),
			TrainSpeedKmh: finiteOrNil(speedKmh),
		},
		RecommendedAction: cls.RecommendedAction,
		Explanation:       explain(cls, duration),
	}
	return inc
}

// newIncidentID derives a sortable unique id from the wall clock, seconds
// resolution plus microseconds.
func newIncidentID(t time.Time) string {
	return "INC_" + t.Format("20060102150405") + fmt.Sprintf("%06d", t.Nanosecond()/1000)
}

// explain produces the human-readable narrative for an incident. Every clause
// is joined with ". " and the result ends with a period, so the obstacle,
// location, and distance fragments read as separate sentences.
func explain(cls severity.Classification, duration time.Duration) string {
	in := cls.Input

	var clauses []string

	subject := "An obstacle was detected"
	switch in.Class {
	case detect.ClassHuman:
		subject = "A human was detected"
	case detect.ClassVehicle:
		subject = "A vehicle was detected"
	case detect.ClassAnimal:
		subject = "An animal was detected"
	case detect.ClassDebris:
		subject = "Debris was detected"
	}

	clauses = append(clauses, subject)

	place := "in the vicinity"
	switch in.Zone {
	case zone.ZoneCritical:
		place = "on the railway track"
	case zone.ZoneWarning:
		place = "near the railway track"
	}
	clauses = append(clauses, place)

	if !math.IsInf(in.Assessment.DistanceM, 0) {
		clauses = append(clauses, fmt.Sprintf("at approximately %.1f meters ahead", in.Assessment.DistanceM))
	}

	if in.IsStatic {
		clauses = append(clauses, fmt.Sprintf("The obstacle remained stationary for %.1f seconds", duration.Seconds()))
	}
	if !math.IsInf(in.TTCSeconds, 0) && in.TTCSeconds < 60 {
		clauses = append(clauses, fmt.Sprintf("Estimated collision time: %.1f seconds", in.TTCSeconds))
	}
	clauses = append(clauses, "Severity classified as "+strings.ToUpper(string(cls.Severity)))

	return strings.Join(clauses, ". ") + "."
}

func finiteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
