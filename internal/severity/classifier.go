// Package severity maps scored obstacles onto operational severity tiers and
// recommended operator actions.
package severity

import (
	"sort"
	"strings"

	"github.com/railwatch-data/railwatch/internal/detect"
	"github.com/railwatch-data/railwatch/internal/risk"
	"github.com/railwatch-data/railwatch/internal/zone"
)

// Severity is an operational urgency tier.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Priority returns the numeric rank of a severity, higher is more urgent.
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// Color returns the display color for a severity as a hex string.
func (s Severity) Color() string {
	switch s {
	case SeverityCritical:
		return "#FF0000"
	case SeverityHigh:
		return "#FFA500"
	case SeverityMedium:
		return "#FFFF00"
	default:
		return "#00FF00"
	}
}

// RecommendedAction returns the operator guidance for a severity tier.
func (s Severity) RecommendedAction() string {
	switch s {
	case SeverityCritical:
		return "IMMEDIATE ACTION REQUIRED: Alert driver, activate emergency braking if available, notify control room"
	case SeverityHigh:
		return "URGENT: Alert driver, reduce speed, notify control room and nearest station"
	case SeverityMedium:
		return "CAUTION: Monitor situation, notify control room, prepare for potential action"
	case SeverityLow:
		return "ADVISORY: Log incident, continue monitoring"
	default:
		return "Monitor situation"
	}
}

// Input is everything the rule tables consider for one obstacle.
type Input struct {
	Class      detect.ObstacleClass
	Zone       zone.Zone
	TTCSeconds float64
	IsStatic   bool
	Assessment risk.Assessment
}

// Classification is the outcome for one obstacle.
type Classification struct {
	Severity          Severity `json:"severity"`
	Priority          int      `json:"priority"`
	Color             string   `json:"color"`
	RecommendedAction string   `json:"recommended_action"`
	Input             Input    `json:"-"`
}

// rule is one row of a severity tier's table. Zero-valued fields are
// wildcards; ttcBelow of 0 means no TTC condition.
type rule struct {
	classes  []detect.ObstacleClass
	zone     zone.Zone
	ttcBelow float64
	static   bool // when true the rule only matches stationary obstacles
}

func (r rule) matches(in Input) bool {
	if len(r.classes) > 0 {
		found := false
		for _, c := range r.classes {
			if in.Class == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.zone != "" && in.Zone != r.zone {
		return false
	}
	if r.ttcBelow > 0 && !(in.TTCSeconds < r.ttcBelow) {
		return false
	}
	if r.static && !in.IsStatic {
		return false
	}
	return true
}

var criticalRules = []rule{
	{classes: []detect.ObstacleClass{detect.ClassHuman}, zone: zone.ZoneCritical, ttcBelow: 20},
	{classes: []detect.ObstacleClass{detect.ClassVehicle}, zone: zone.ZoneCritical, ttcBelow: 15},
	{zone: zone.ZoneCritical, ttcBelow: 25, static: true},
	{classes: []detect.ObstacleClass{detect.ClassHuman, detect.ClassVehicle}, zone: zone.ZoneCritical, ttcBelow: 10},
}

var highRules = []rule{
	{classes: []detect.ObstacleClass{detect.ClassHuman}, zone: zone.ZoneWarning, ttcBelow: 40},
	{classes: []detect.ObstacleClass{detect.ClassAnimal}, zone: zone.ZoneCritical},
	{classes: []detect.ObstacleClass{detect.ClassDebris}, zone: zone.ZoneCritical, static: true},
	{classes: []detect.ObstacleClass{detect.ClassVehicle}, zone: zone.ZoneWarning, ttcBelow: 30},
	{zone: zone.ZoneCritical, ttcBelow: 40},
}

var mediumRules = []rule{
	{classes: []detect.ObstacleClass{detect.ClassAnimal}, zone: zone.ZoneWarning},
	{classes: []detect.ObstacleClass{detect.ClassDebris}, zone: zone.ZoneCritical},
	{classes: []detect.ObstacleClass{detect.ClassVehicle}, zone: zone.ZoneWarning, ttcBelow: 60},
	{classes: []detect.ObstacleClass{detect.ClassHuman}, ttcBelow: 60},
	{zone: zone.ZoneCritical, ttcBelow: 60},
}

// Classifier applies the tier tables in strict order: critical, then high,
// then medium, then low. Within a tier, any matching rule selects the tier.
type Classifier struct{}

// NewClassifier creates a severity classifier.
func NewClassifier() *Classifier { return &Classifier{} }

// Classify assigns the severity tier for one obstacle.
func (c *Classifier) Classify(in Input) Classification {
	sev := SeverityLow
	switch {
	case anyMatch(criticalRules, in):
		sev = SeverityCritical
	case anyMatch(highRules, in):
		sev = SeverityHigh
	case anyMatch(mediumRules, in):
		sev = SeverityMedium
	}
	return Classification{
		Severity:          sev,
		Priority:          sev.Priority(),
		Color:             sev.Color(),
		RecommendedAction: sev.RecommendedAction(),
		Input:             in,
	}
}

// ClassifyBatch classifies each input and returns the results ordered by
// descending priority. The sort is stable so equal-priority obstacles keep
// their input order.
func (c *Classifier) ClassifyBatch(inputs []Input) []Classification {
	out := make([]Classification, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, c.Classify(in))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

func anyMatch(rules []rule, in Input) bool {
	for _, r := range rules {
		if r.matches(in) {
			return true
		}
	}
	return false
}

// Summary aggregates a batch of classifications.
type Summary struct {
	Total       int                          `json:"total"`
	BySeverity  map[Severity]int             `json:"by_severity"`
	ByType      map[detect.ObstacleClass]int `json:"by_type"`
	TopCritical []Classification             `json:"top_critical"`
}

// Summarize counts classifications by severity and obstacle type and keeps up
// to the top five critical entries.
func Summarize(classifications []Classification) Summary {
	s := Summary{
		Total:      len(classifications),
		BySeverity: make(map[Severity]int),
		ByType:     make(map[detect.ObstacleClass]int),
	}
	for _, c := range classifications {
		s.BySeverity[c.Severity]++
		s.ByType[c.Input.Class]++
		if c.Severity == SeverityCritical && len(s.TopCritical) < 5 {
			s.TopCritical = append(s.TopCritical, c)
		}
	}
	return s
}

// ParseSeverity normalises a severity string, defaulting to low.
func ParseSeverity(v string) Severity {
	switch Severity(strings.ToLower(v)) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
