package incident

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railwatch-data/railwatch/internal/severity"
	"github.com/railwatch-data/railwatch/internal/zone"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "incidents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func storedIncident(id string, sev severity.Severity, at time.Time) Incident {
	dist := 6.8
	ttc := 0.41
	speed := 60.0
	return Incident{
		ID:                id,
		RunID:             "run-1",
		Timestamp:         at,
		Severity:          sev,
		SeverityPriority:  sev.Priority(),
		Obstacle:          Obstacle{Type: "human", Confidence: 0.9, DurationSeconds: 2},
		Location:          Location{Zone: zone.ZoneCritical},
		Risk:              Risk{DistanceM: &dist, TTCSeconds: &ttc, TrainSpeedKmh: &speed},
		RecommendedAction: sev.RecommendedAction(),
		Explanation:       "A human was detected on the railway track.",
	}
}

func TestStoreRecordAndQuery(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordIncident(storedIncident("INC_1", severity.SeverityCritical, now)))
	require.NoError(t, s.RecordIncident(storedIncident("INC_2", severity.SeverityHigh, now.Add(time.Minute))))

	all, err := s.Incidents(Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, "INC_2", all[0].ID)
	assert.Equal(t, "INC_1", all[1].ID)

	got := all[1]
	assert.Equal(t, severity.SeverityCritical, got.Severity)
	assert.Equal(t, "human", got.ObstacleType)
	assert.Equal(t, "critical", got.Zone)
	require.NotNil(t, got.DistanceM)
	assert.InDelta(t, 6.8, *got.DistanceM, 1e-9)
	assert.True(t, got.Timestamp.Equal(now))
}

func TestStoreRecordIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	inc := storedIncident("INC_1", severity.SeverityCritical, now)
	require.NoError(t, s.RecordIncident(inc))
	require.NoError(t, s.RecordIncident(inc))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreQueryFilters(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordIncident(storedIncident("INC_1", severity.SeverityCritical, base)))
	require.NoError(t, s.RecordIncident(storedIncident("INC_2", severity.SeverityHigh, base.Add(time.Hour))))
	require.NoError(t, s.RecordIncident(storedIncident("INC_3", severity.SeverityCritical, base.Add(2*time.Hour))))

	crits, err := s.Incidents(Query{Severity: severity.SeverityCritical})
	require.NoError(t, err)
	assert.Len(t, crits, 2)

	windowed, err := s.Incidents(Query{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "INC_2", windowed[0].ID)

	limited, err := s.Incidents(Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "INC_3", limited[0].ID)
}

func TestStoreNullableFields(t *testing.T) {
	s := newTestStore(t)

	inc := storedIncident("INC_1", severity.SeverityLow, time.Now().UTC())
	inc.Risk = Risk{} // all nil
	require.NoError(t, s.RecordIncident(inc))

	all, err := s.Incidents(Query{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].DistanceM)
	assert.Nil(t, all[0].TTCSeconds)
	assert.Nil(t, all[0].GPSLatitude)
}

func TestDailyReport(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordIncident(storedIncident("INC_1", severity.SeverityCritical, day)))
	require.NoError(t, s.RecordIncident(storedIncident("INC_2", severity.SeverityHigh, day.Add(time.Hour))))
	// Previous day must be excluded.
	require.NoError(t, s.RecordIncident(storedIncident("INC_0", severity.SeverityLow, day.Add(-24*time.Hour))))

	report, err := s.DailyReport(day)
	require.NoError(t, err)

	assert.Equal(t, "2026-03-01", report.Date)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.BySeverity[severity.SeverityCritical])
	assert.Equal(t, 2, report.ByType["human"])
	assert.InDelta(t, 6.8, report.MeanDistanceM, 1e-9)
	require.NotEmpty(t, report.TopIncidents)
	assert.Equal(t, "INC_1", report.TopIncidents[0].ID)
}

func TestHighRiskLocations(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	at := func(id string, lat, lon float64, offset time.Duration) Incident {
		inc := storedIncident(id, severity.SeverityCritical, now.Add(offset))
		inc.Location.GPS = &GPS{Latitude: lat, Longitude: lon}
		return inc
	}

	// Three incidents within the same rounded cell, one elsewhere.
	require.NoError(t, s.RecordIncident(at("INC_1", 41.15012, -8.61005, 0)))
	require.NoError(t, s.RecordIncident(at("INC_2", 41.15040, -8.60990, time.Minute)))
	require.NoError(t, s.RecordIncident(at("INC_3", 41.14980, -8.61020, 2*time.Minute)))
	require.NoError(t, s.RecordIncident(at("INC_4", 42.00000, -8.00000, 3*time.Minute)))
	// No GPS: ignored.
	require.NoError(t, s.RecordIncident(storedIncident("INC_5", severity.SeverityHigh, now.Add(4*time.Minute))))

	locations, err := s.HighRiskLocations()
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, 3, locations[0].IncidentCount)
	assert.Equal(t, 3, locations[0].BySeverity[severity.SeverityCritical])
}
