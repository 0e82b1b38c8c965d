// Package pipeline wires the detection-to-alert stages into a single
// per-frame processing loop.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/railwatch-data/railwatch/internal/alert"
	"github.com/railwatch-data/railwatch/internal/config"
	"github.com/railwatch-data/railwatch/internal/detect"
	"github.com/railwatch-data/railwatch/internal/incident"
	"github.com/railwatch-data/railwatch/internal/monitoring"
	"github.com/railwatch-data/railwatch/internal/risk"
	"github.com/railwatch-data/railwatch/internal/severity"
	"github.com/railwatch-data/railwatch/internal/track"
	"github.com/railwatch-data/railwatch/internal/zone"
)

// dispatchBuffer bounds the queue between frame processing and alert
// delivery. Sends block when it fills, so incident order is preserved and
// backpressure reaches the caller instead of dropping alerts.
const dispatchBuffer = 64

// recentWindow caps the classification history kept for summary reporting.
const recentWindow = 100

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	FrameIndex       int
	Detections       int
	Dropped          int
	Tracked          int
	Confirmed        []track.ConfirmedObstacle
	Classifications  []severity.Classification
	Batch            risk.BatchAssessment
	IncidentsCreated int
}

// Stats are the pipeline's cumulative counters.
type Stats struct {
	FramesProcessed   int     `json:"frames_processed"`
	DetectionsSeen    int     `json:"detections_seen"`
	DetectionsDropped int     `json:"detections_dropped"`
	ConfirmedTotal    int     `json:"confirmed_total"`
	IncidentsCreated  int     `json:"incidents_created"`
	AlertsSuppressed  int     `json:"alerts_suppressed"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	FPS               float64 `json:"fps"`
}

// Pipeline runs the full obstacle-to-incident decision chain. ProcessFrame
// is the single mutation point; all stage state is owned by the pipeline and
// guarded by one mutex. Alert delivery and persistence happen on a separate
// dispatcher goroutine fed by a buffered channel.
type Pipeline struct {
	tracker    *track.Tracker
	confirmer  *track.Confirmer
	filter     *track.FalseAlertFilter
	suppressor *track.DuplicateSuppressor
	zones      *zone.Classifier
	scorer     *risk.Scorer
	classifier *severity.Classifier
	reporter   *incident.Reporter

	manager *alert.Manager
	store   *incident.Store
	dayLog  *incident.DayLog

	speedKmh float64

	dispatch chan incident.Incident
	wg       sync.WaitGroup

	mu        sync.Mutex
	startTime time.Time
	stats     Stats
	lastFrame detect.Stats
	recent    []severity.Classification
	closed    bool
}

// Options carries the external collaborators for a pipeline.
type Options struct {
	Config  *config.PipelineConfig
	Manager *alert.Manager   // required
	Store   *incident.Store  // optional; nil disables persistence
	DayLog  *incident.DayLog // optional; nil disables day files
}

// New creates a pipeline and starts its dispatcher goroutine.
func New(opts Options) *Pipeline {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Empty()
	}

	estimator := risk.NewEstimator(cfg.EstimatorConfig())

	p := &Pipeline{
		tracker:    track.NewTracker(cfg.TrackerConfig()),
		confirmer:  track.NewConfirmer(cfg.ConfirmerConfig()),
		filter:     track.NewFalseAlertFilter(cfg.FilterConfig()),
		suppressor: track.NewDuplicateSuppressor(cfg.FilterConfig()),
		zones:      zone.NewClassifier(cfg.ZoneConfig()),
		scorer:     risk.NewScorer(estimator),
		classifier: severity.NewClassifier(),
		reporter:   incident.NewReporter(),
		manager:    opts.Manager,
		store:      opts.Store,
		dayLog:     opts.DayLog,
		speedKmh:   cfg.GetTrainSpeedKmh(),
		dispatch:   make(chan incident.Incident, dispatchBuffer),
		startTime:  time.Now(),
	}

	if cfg.GPSLatitude != nil && cfg.GPSLongitude != nil {
		p.reporter.SetGPS(*cfg.GPSLatitude, *cfg.GPSLongitude)
	}

	p.wg.Add(1)
	go p.runDispatcher()

	return p
}

// RunID returns the session identifier shared by all incidents.
func (p *Pipeline) RunID() string { return p.reporter.RunID() }

// ProcessFrame runs the full decision chain for one frame of detections.
// Tracking and confirmation state advance even when the frame dimensions are
// invalid; in that case the zone-dependent stages are skipped and an error is
// returned.
func (p *Pipeline) ProcessFrame(frame detect.Frame, detections []detect.Detection) (FrameResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return FrameResult{}, fmt.Errorf("pipeline: closed")
	}

	// Step 1: drop malformed detections before they can enter the tracker.
	valid, dropped := detect.Sanitize(detections)

	p.stats.FramesProcessed++
	p.stats.DetectionsSeen += len(valid)
	p.stats.DetectionsDropped += dropped
	p.lastFrame = detect.ComputeStats(valid)

	result := FrameResult{
		FrameIndex: frame.Index,
		Detections: len(valid),
		Dropped:    dropped,
	}

	// Step 2: associate detections with persistent track identities.
	tracked := p.tracker.Update(valid)
	result.Tracked = len(tracked)

	// Step 3: multi-frame confirmation.
	confirmed := p.confirmer.Update(valid, tracked)

	// Step 4: reject implausible obstacles.
	confirmed = p.filter.Filter(confirmed)
	result.Confirmed = confirmed
	p.stats.ConfirmedTotal += len(confirmed)

	// Zone geometry follows the frame dimensions; reinitialise on change.
	if frame.Width <= 0 || frame.Height <= 0 {
		return result, fmt.Errorf("pipeline: invalid frame dimensions %dx%d", frame.Width, frame.Height)
	}
	if w, h := p.zones.Dimensions(); w != frame.Width || h != frame.Height {
		p.zones.Init(frame.Width, frame.Height)
	}

	// Step 5: classify, score, and grade each confirmed obstacle.
	inputs := make([]severity.Input, 0, len(confirmed))
	obstacleByInput := make([]track.ConfirmedObstacle, 0, len(confirmed))
	batchInputs := make([]risk.ObstacleInput, 0, len(confirmed))
	for _, o := range confirmed {
		z, err := p.zones.Classify(o.Detection)
		if err != nil {
			return result, fmt.Errorf("pipeline: zone classify: %w", err)
		}
		assessment := p.scorer.Assess(o.Detection, z, o.IsStatic, p.speedKmh)
		inputs = append(inputs, severity.Input{
			Class:      o.Detection.Class,
			Zone:       z,
			TTCSeconds: assessment.TTCSeconds,
			IsStatic:   o.IsStatic,
			Assessment: assessment,
		})
		obstacleByInput = append(obstacleByInput, o)
		batchInputs = append(batchInputs, risk.ObstacleInput{
			Detection: o.Detection,
			Zone:      z,
			IsStatic:  o.IsStatic,
		})
	}
	_, result.Batch = p.scorer.AssessBatch(batchInputs, p.speedKmh)

	// Step 6: raise incidents for medium severity and above, suppressing
	// near-duplicate repeats.
	for i, in := range inputs {
		cls := p.classifier.Classify(in)
		result.Classifications = append(result.Classifications, cls)
		p.recent = append(p.recent, cls)
		if len(p.recent) > recentWindow {
			p.recent = p.recent[len(p.recent)-recentWindow:]
		}

		if cls.Priority < severity.SeverityMedium.Priority() {
			continue
		}
		o := obstacleByInput[i]
		if p.suppressor.IsDuplicate(o.Detection) {
			p.stats.AlertsSuppressed++
			continue
		}

		inc := p.reporter.Generate(cls, o.Detection, o.Duration, p.speedKmh)
		p.dispatch <- inc
		p.stats.IncidentsCreated++
		result.IncidentsCreated++
	}

	return result, nil
}

// runDispatcher delivers incidents in order: alert fan-out, then store, then
// day log. Failures are logged and never stop the loop.
func (p *Pipeline) runDispatcher() {
	defer p.wg.Done()

	ctx := context.Background()
	for inc := range p.dispatch {
		p.manager.Dispatch(ctx, inc)

		if p.store != nil {
			if err := p.store.RecordIncident(inc); err != nil {
				monitoring.Logf("pipeline: persist incident %s: %v", inc.ID, err)
			}
		}
		if p.dayLog != nil {
			if err := p.dayLog.Append(inc); err != nil {
				monitoring.Logf("pipeline: day log incident %s: %v", inc.ID, err)
			}
		}
	}
}

// Report returns the cumulative pipeline counters.
func (p *Pipeline) Report() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.UptimeSeconds = time.Since(p.startTime).Seconds()
	if s.UptimeSeconds > 0 {
		s.FPS = float64(s.FramesProcessed) / s.UptimeSeconds
	}
	return s
}

// ConfirmerStats exposes the confirmation counters.
func (p *Pipeline) ConfirmerStats() track.ConfirmerStats {
	return p.confirmer.Stats()
}

// DetectionStats returns the per-class breakdown of the most recent frame.
func (p *Pipeline) DetectionStats() detect.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFrame
}

// Summary aggregates the recent classification window.
func (p *Pipeline) Summary() severity.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return severity.Summarize(p.recent)
}

// TrackInfo returns the confirmation state for one track id.
func (p *Pipeline) TrackInfo(id int) (track.TrackInfo, bool) {
	return p.confirmer.Info(id)
}

// ZoneRects exposes the corridor geometry for overlay rendering. Returns an
// error before the first valid frame.
func (p *Pipeline) ZoneRects() (zone.Rects, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zones.ZoneRects()
}

// Close stops accepting frames, drains the dispatcher, and waits for pending
// deliveries to finish.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.dispatch)
	p.wg.Wait()
}
