package incident

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/railwatch-data/railwatch/internal/severity"
)

// DailyReport aggregates one day of incidents.
type DailyReport struct {
	Date          string                    `json:"date"`
	Total         int                       `json:"total"`
	BySeverity    map[severity.Severity]int `json:"by_severity"`
	ByType        map[string]int            `json:"by_type"`
	ByZone        map[string]int            `json:"by_zone"`
	MeanDistanceM float64                   `json:"mean_distance_m"`
	MeanTTC       float64                   `json:"mean_ttc_seconds"`
	TopIncidents  []StoredIncident          `json:"top_incidents"`
}

// DailyReport builds the aggregate report for one calendar day (local time of
// the supplied date).
func (s *Store) DailyReport(date time.Time) (DailyReport, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.Add(24*time.Hour - time.Nanosecond)

	incidents, err := s.Incidents(Query{Start: start, End: end})
	if err != nil {
		return DailyReport{}, fmt.Errorf("daily report query: %w", err)
	}

	report := DailyReport{
		Date:       start.Format("2006-01-02"),
		Total:      len(incidents),
		BySeverity: make(map[severity.Severity]int),
		ByType:     make(map[string]int),
		ByZone:     make(map[string]int),
	}

	var distances, ttcs []float64
	for _, inc := range incidents {
		report.BySeverity[inc.Severity]++
		report.ByType[inc.ObstacleType]++
		report.ByZone[inc.Zone]++
		if inc.DistanceM != nil {
			distances = append(distances, *inc.DistanceM)
		}
		if inc.TTCSeconds != nil {
			ttcs = append(ttcs, *inc.TTCSeconds)
		}
	}
	if len(distances) > 0 {
		report.MeanDistanceM = stat.Mean(distances, nil)
	}
	if len(ttcs) > 0 {
		report.MeanTTC = stat.Mean(ttcs, nil)
	}

	// Most urgent first: severity rank, then recency.
	sorted := append([]StoredIncident(nil), incidents...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Severity.Priority(), sorted[j].Severity.Priority()
		if pi != pj {
			return pi > pj
		}
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > 10 {
		sorted = sorted[:10]
	}
	report.TopIncidents = sorted

	return report, nil
}

// HighRiskLocation is a geographic cluster of repeated incidents.
type HighRiskLocation struct {
	Latitude      float64                   `json:"latitude"`
	Longitude     float64                   `json:"longitude"`
	IncidentCount int                       `json:"incident_count"`
	BySeverity    map[severity.Severity]int `json:"by_severity"`
}

// HighRiskLocations clusters GPS-tagged incidents by position rounded to
// three decimal places (roughly 100 m) and returns locations with at least
// three incidents, most affected first, capped at ten.
func (s *Store) HighRiskLocations() ([]HighRiskLocation, error) {
	incidents, err := s.Incidents(Query{})
	if err != nil {
		return nil, fmt.Errorf("high risk locations query: %w", err)
	}

	type key struct{ lat, lon float64 }
	clusters := make(map[key]*HighRiskLocation)
	for _, inc := range incidents {
		if inc.GPSLatitude == nil || inc.GPSLongitude == nil {
			continue
		}
		k := key{round3(*inc.GPSLatitude), round3(*inc.GPSLongitude)}
		c, ok := clusters[k]
		if !ok {
			c = &HighRiskLocation{
				Latitude:   k.lat,
				Longitude:  k.lon,
				BySeverity: make(map[severity.Severity]int),
			}
			clusters[k] = c
		}
		c.IncidentCount++
		c.BySeverity[inc.Severity]++
	}

	var out []HighRiskLocation
	for _, c := range clusters {
		if c.IncidentCount >= 3 {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IncidentCount != out[j].IncidentCount {
			return out[i].IncidentCount > out[j].IncidentCount
		}
		if out[i].Latitude != out[j].Latitude {
			return out[i].Latitude < out[j].Latitude
		}
		return out[i].Longitude < out[j].Longitude
	})
	if len(out) > 10 {
		out = out[:10]
	}
	return out, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
