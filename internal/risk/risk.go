package risk

import (
	"math"

	"github.com/railwatch-data/railwatch/internal/detect"
	"github.com/railwatch-data/railwatch/internal/zone"
)

// Level buckets a risk score into severity bands.
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
)

// Assessment is the scored risk for one confirmed obstacle.
type Assessment struct {
	Score      float64   `json:"score"`
	Level      Level     `json:"level"`
	DistanceM  float64   `json:"distance_m"`
	TTCSeconds float64   `json:"ttc_seconds"`
	TTCLevel   TTCLevel  `json:"ttc_level"`
	Zone       zone.Zone `json:"zone"`
	IsStatic   bool      `json:"is_static"`
}

// BatchAssessment summarises the risk across all obstacles in one frame.
type BatchAssessment struct {
	Max           *Assessment `json:"max,omitempty"`
	ObstacleCount int         `json:"obstacle_count"`
	CriticalCount int         `json:"critical_count"`
	HighCount     int         `json:"high_count"`
}

var classBaseScores = map[detect.ObstacleClass]float64{
	detect.ClassHuman:   40,
	detect.ClassVehicle: 35,
	detect.ClassAnimal:  30,
	detect.ClassDebris:  20,
}

const defaultBaseScore = 25

var zoneMultipliers = map[zone.Zone]float64{
	zone.ZoneCritical: 2.0,
	zone.ZoneWarning:  1.5,
	zone.ZoneSafe:     0.5,
}

// Scorer combines obstacle class, zone, proximity, and motion state into a
// bounded risk score.
type Scorer struct {
	estimator *Estimator
}

// NewScorer creates a scorer backed by the given distance estimator.
func NewScorer(estimator *Estimator) *Scorer {
	return &Scorer{estimator: estimator}
}

// Estimator exposes the underlying distance estimator.
func (s *Scorer) Estimator() *Estimator { return s.estimator }

// Assess scores one obstacle. The score starts from a per-class base, is
// multiplied by the zone factor, gains additive terms for imminent TTC and
// stationary obstacles, and is capped at 100.
func (s *Scorer) Assess(d detect.Detection, z zone.Zone, isStatic bool, speedKmh float64) Assessment {
	distance := s.estimator.Distance(d)
	ttc := TTC(distance, speedKmh)

	score, ok := classBaseScores[d.Class]
	if !ok {
		score = defaultBaseScore
	}

	mult, ok := zoneMultipliers[z]
	if !ok {
		mult = 1.0
	}
	score *= mult

	switch {
	case ttc < 10:
		score += 30
	case ttc < 20:
		score += 20
	case ttc < 40:
		score += 10
	}

	if isStatic {
		score += 10
	}

	score = math.Min(score, 100)

	return Assessment{
		Score:      score,
		Level:      classifyScore(score),
		DistanceM:  round2(distance),
		TTCSeconds: round2(ttc),
		TTCLevel:   s.estimator.ClassifyTTC(ttc),
		Zone:       z,
		IsStatic:   isStatic,
	}
}

// AssessBatch scores each obstacle and summarises the frame. The maximum is
// the assessment with the highest score.
func (s *Scorer) AssessBatch(obstacles []ObstacleInput, speedKmh float64) ([]Assessment, BatchAssessment) {
	assessments := make([]Assessment, 0, len(obstacles))
	batch := BatchAssessment{ObstacleCount: len(obstacles)}

	for _, o := range obstacles {
		a := s.Assess(o.Detection, o.Zone, o.IsStatic, speedKmh)
		assessments = append(assessments, a)

		switch a.Level {
		case LevelCritical:
			batch.CriticalCount++
		case LevelHigh:
			batch.HighCount++
		}
		if batch.Max == nil || a.Score > batch.Max.Score {
			copied := a
			batch.Max = &copied
		}
	}
	return assessments, batch
}

// ObstacleInput pairs a detection with its classified zone and motion state
// for batch assessment.
type ObstacleInput struct {
	Detection detect.Detection
	Zone      zone.Zone
	IsStatic  bool
}

func classifyScore(score float64) Level {
	switch {
	case score >= 75:
		return LevelCritical
	case score >= 50:
		return LevelHigh
	case score >= 25:
		return LevelMedium
	default:
		return LevelLow
	}
}

// round2 rounds to two decimal places. Infinities pass through unchanged.
func round2(v float64) float64 {
	if math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*100) / 100
}
