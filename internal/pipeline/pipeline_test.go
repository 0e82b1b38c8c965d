package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railwatch-data/railwatch/internal/alert"
	"github.com/railwatch-data/railwatch/internal/config"
	"github.com/railwatch-data/railwatch/internal/detect"
	"github.com/railwatch-data/railwatch/internal/incident"
	"github.com/railwatch-data/railwatch/internal/severity"
)

// captureChannel records dispatched alerts.
type captureChannel struct {
	name string

	mu   sync.Mutex
	sent []alert.Message
}

func (c *captureChannel) Name() string { return c.name }

func (c *captureChannel) Send(_ context.Context, msg alert.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureChannel) messages() []alert.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alert.Message(nil), c.sent...)
}

func newTestPipeline(t *testing.T) (*Pipeline, *captureChannel, *incident.Store) {
	t.Helper()

	store, err := incident.NewStore(filepath.Join(t.TempDir(), "incidents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	local := &captureChannel{name: "local"}
	manager := alert.NewManager(alert.DefaultEscalation(), nil)
	manager.Register(local)

	p := New(Options{
		Config:  config.Empty(),
		Manager: manager,
		Store:   store,
	})
	return p, local, store
}

func humanOnTrack() detect.Detection {
	// Center (500, 500) of a 1000x1000 frame, 200px tall: critical zone,
	// about 6.8m ahead at the default focal length.
	return detect.Detection{
		Class: detect.ClassHuman, Confidence: 0.92,
		BBox: detect.BBox{X1: 480, Y1: 400, X2: 520, Y2: 600},
	}
}

func frameAt(i int) detect.Frame {
	return detect.Frame{Index: i, Width: 1000, Height: 1000, Timestamp: time.Now()}
}

func TestPipelineRaisesIncidentAfterConfirmation(t *testing.T) {
	p, local, store := newTestPipeline(t)

	minFrames := config.Empty().ConfirmerConfig().MinConsecutiveFrames
	var last FrameResult
	for i := 1; i <= minFrames; i++ {
		var err error
		last, err = p.ProcessFrame(frameAt(i), []detect.Detection{humanOnTrack()})
		require.NoError(t, err)

		if i < minFrames {
			assert.Empty(t, last.Confirmed, "frame %d: confirmed too early", i)
			assert.Zero(t, last.IncidentsCreated)
		}
	}

	require.Len(t, last.Confirmed, 1)
	require.Len(t, last.Classifications, 1)
	assert.Equal(t, severity.SeverityCritical, last.Classifications[0].Severity)
	assert.Equal(t, 1, last.IncidentsCreated)

	p.Close()

	msgs := local.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, p.RunID(), msgs[0].Incident.RunID)
	assert.Contains(t, msgs[0].Incident.Explanation, "A human was detected. on the railway track")

	stored, err := store.Incidents(incident.Query{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, msgs[0].Incident.ID, stored[0].ID)
}

func TestPipelineSuppressesDuplicateAlerts(t *testing.T) {
	p, local, _ := newTestPipeline(t)

	minFrames := config.Empty().ConfirmerConfig().MinConsecutiveFrames
	for i := 1; i <= minFrames+3; i++ {
		_, err := p.ProcessFrame(frameAt(i), []detect.Detection{humanOnTrack()})
		require.NoError(t, err)
	}
	p.Close()

	// Confirmed on every frame after the gate, but only the first raises.
	assert.Len(t, local.messages(), 1)
	stats := p.Report()
	assert.Equal(t, 1, stats.IncidentsCreated)
	assert.Equal(t, 3, stats.AlertsSuppressed)
}

func TestPipelineDropsMalformedDetections(t *testing.T) {
	p, local, _ := newTestPipeline(t)

	malformed := detect.Detection{
		Class: detect.ClassHuman, Confidence: 1.5,
		BBox: detect.BBox{X1: 100, Y1: 100, X2: 50, Y2: 50},
	}
	res, err := p.ProcessFrame(frameAt(1), []detect.Detection{malformed})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 0, res.Detections)
	assert.Zero(t, res.Tracked)

	p.Close()
	assert.Empty(t, local.messages())
}

func TestPipelineRejectsInvalidFrameDimensions(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	defer p.Close()

	_, err := p.ProcessFrame(detect.Frame{Index: 1, Width: 0, Height: 0}, []detect.Detection{humanOnTrack()})
	assert.Error(t, err)
}

func TestPipelineNoIncidentBelowMedium(t *testing.T) {
	p, local, _ := newTestPipeline(t)

	// Vehicle far off in the safe zone: confirmed but never escalated.
	safe := detect.Detection{
		Class: detect.ClassVehicle, Confidence: 0.9,
		BBox: detect.BBox{X1: 20, Y1: 100, X2: 80, Y2: 200},
	}
	minFrames := config.Empty().ConfirmerConfig().MinConsecutiveFrames
	var last FrameResult
	for i := 1; i <= minFrames; i++ {
		var err error
		last, err = p.ProcessFrame(frameAt(i), []detect.Detection{safe})
		require.NoError(t, err)
	}
	p.Close()

	require.Len(t, last.Confirmed, 1)
	assert.Zero(t, last.IncidentsCreated)
	assert.Empty(t, local.messages())
}

func TestPipelineCloseIsIdempotent(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	p.Close()
	p.Close()

	_, err := p.ProcessFrame(frameAt(1), nil)
	assert.Error(t, err)
}

func TestPipelineDetectionStatsAndSummary(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	minFrames := config.Empty().ConfirmerConfig().MinConsecutiveFrames
	var last FrameResult
	for i := 1; i <= minFrames; i++ {
		var err error
		last, err = p.ProcessFrame(frameAt(i), []detect.Detection{humanOnTrack()})
		require.NoError(t, err)
	}
	p.Close()

	ds := p.DetectionStats()
	assert.Equal(t, 1, ds.Total)
	assert.Equal(t, 1, ds.ByClass[detect.ClassHuman])
	assert.InDelta(t, 0.92, ds.AvgConfidence, 1e-9)

	summary := p.Summary()
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.BySeverity[severity.SeverityCritical])
	require.Len(t, summary.TopCritical, 1)

	require.Len(t, last.Confirmed, 1)
	info, ok := p.TrackInfo(last.Confirmed[0].TrackID)
	require.True(t, ok)
	assert.True(t, info.Confirmed)
	assert.Equal(t, minFrames, info.DetectionCount)

	_, ok = p.TrackInfo(9999)
	assert.False(t, ok)
}

func TestPipelineReportCounters(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	for i := 1; i <= 3; i++ {
		_, err := p.ProcessFrame(frameAt(i), []detect.Detection{humanOnTrack()})
		require.NoError(t, err)
	}
	p.Close()

	stats := p.Report()
	assert.Equal(t, 3, stats.FramesProcessed)
	assert.Equal(t, 3, stats.DetectionsSeen)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 0.0)
}
