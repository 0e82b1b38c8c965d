package track

import (
	"math"
	"sync"

	"github.com/railwatch-data/railwatch/internal/detect"
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	MaxDisappeared   int     // Consecutive missed frames before deregistration
	GatingDistancePx float64 // Maximum centroid distance for association (pixels)
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxDisappeared:   5,
		GatingDistancePx: 100,
	}
}

// Track is a persistent identity assigned to a sequence of detections believed
// to be the same physical object across frames.
type Track struct {
	ID          int
	Detection   detect.Detection
	Disappeared int
}

// Tracker assigns stable integer identities to per-frame detections using
// greedy nearest-centroid association. Track ids increase monotonically and
// are never reused once a track is deregistered.
type Tracker struct {
	config TrackerConfig

	nextID int
	tracks map[int]*Track
	order  []int // track ids in registration order; drives tie-breaking

	mu sync.Mutex
}

// NewTracker creates a new tracker with the specified configuration.
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		config: config,
		tracks: make(map[int]*Track),
	}
}

// Update processes one frame of detections and returns the current tracked
// set keyed by track id.
//
// Each detection is matched to the nearest still-unmatched track by bbox
// centroid distance; a match further than the gating distance registers a new
// track instead. Ties on distance go to the first-registered track. Tracks
// missing from this frame increment their disappeared counter and are
// deregistered once it exceeds MaxDisappeared.
func (t *Tracker) Update(detections []detect.Detection) map[int]detect.Detection {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(detections) == 0 {
		// No detections: age every track, deregister the stale ones. No new
		// tracks are created on an empty frame.
		for _, id := range append([]int(nil), t.order...) {
			t.tracks[id].Disappeared++
			if t.tracks[id].Disappeared > t.config.MaxDisappeared {
				t.deregister(id)
			}
		}
		return t.snapshot()
	}

	if len(t.tracks) == 0 {
		for _, d := range detections {
			t.register(d)
		}
		return t.snapshot()
	}

	// Candidate tracks in registration order, consumed as they match.
	unmatched := append([]int(nil), t.order...)

	for _, d := range detections {
		dx, dy := d.BBox.Center()

		best := -1
		bestIdx := -1
		bestDist := math.Inf(1)
		for i, id := range unmatched {
			if id < 0 {
				continue
			}
			tx, ty := t.tracks[id].Detection.BBox.Center()
			dist := math.Hypot(dx-tx, dy-ty)
			if dist < bestDist {
				bestDist = dist
				best = id
				bestIdx = i
			}
		}

		if best >= 0 && bestDist < t.config.GatingDistancePx {
			t.tracks[best].Detection = d
			t.tracks[best].Disappeared = 0
			unmatched[bestIdx] = -1
		} else {
			t.register(d)
		}
	}

	// Remaining candidates were not seen this frame.
	for _, id := range unmatched {
		if id < 0 {
			continue
		}
		t.tracks[id].Disappeared++
		if t.tracks[id].Disappeared > t.config.MaxDisappeared {
			t.deregister(id)
		}
	}

	return t.snapshot()
}

// register creates a new track for an unmatched detection.
func (t *Tracker) register(d detect.Detection) int {
	id := t.nextID
	t.nextID++
	t.tracks[id] = &Track{ID: id, Detection: d}
	t.order = append(t.order, id)
	return id
}

// deregister removes a track. Its id is never assigned again.
func (t *Tracker) deregister(id int) {
	delete(t.tracks, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// snapshot returns a copy of the current tracked set.
func (t *Tracker) snapshot() map[int]detect.Detection {
	out := make(map[int]detect.Detection, len(t.tracks))
	for id, tr := range t.tracks {
		out[id] = tr.Detection
	}
	return out
}

// TrackCount returns the number of live tracks.
func (t *Tracker) TrackCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

// GetTrack returns a copy of the track with the given id.
func (t *Tracker) GetTrack(id int) (Track, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.tracks[id]
	if !ok {
		return Track{}, false
	}
	return *tr, true
}
