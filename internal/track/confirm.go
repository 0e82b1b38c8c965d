package track

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/railwatch-data/railwatch/internal/detect"
)

// ConfirmerConfig holds configuration for multi-frame confirmation.
type ConfirmerConfig struct {
	MinConsecutiveFrames int           // Frames an obstacle must appear in before confirmation
	MaxFrameGap          int           // Largest tolerated gap between appearances (frames)
	MovementThresholdPx  float64       // Max displacement still considered stationary
	PositionWindow       int           // Centroid samples kept for motion analysis
	InactivityTimeout    time.Duration // Wall-clock purge for tracks not seen recently
}

// DefaultConfirmerConfig returns default confirmation configuration.
func DefaultConfirmerConfig() ConfirmerConfig {
	return ConfirmerConfig{
		MinConsecutiveFrames: 5,
		MaxFrameGap:          3,
		MovementThresholdPx:  50,
		PositionWindow:       10,
		InactivityTimeout:    10 * time.Second,
	}
}

// ConfirmedObstacle is a tracked object that has passed the confirmation gate.
type ConfirmedObstacle struct {
	TrackID    int
	Detection  detect.Detection
	Duration   time.Duration // Time since the track was first seen
	IsStatic   bool
	FrameCount int // Entries currently held in the history window
}

type historyEntry struct {
	detection detect.Detection
	frame     int
	at        time.Time
}

type trackHistory struct {
	entries   []historyEntry // bounded FIFO, capacity MinConsecutiveFrames+MaxFrameGap
	positions [][2]float64   // bounded FIFO, capacity PositionWindow
	firstSeen time.Time
	lastSeen  time.Time
	confirmed bool
	isStatic  bool
}

// TrackInfo is a read-only summary of one track's confirmation state.
type TrackInfo struct {
	TrackID        int           `json:"track_id"`
	FirstSeen      time.Time     `json:"first_seen"`
	LastSeen       time.Time     `json:"last_seen"`
	Duration       time.Duration `json:"duration_ns"`
	DetectionCount int           `json:"detection_count"`
	Confirmed      bool          `json:"confirmed"`
	IsStatic       bool          `json:"is_static"`
	Positions      [][2]float64  `json:"positions"`
}

// ConfirmerStats summarises the confirmation system.
type ConfirmerStats struct {
	FrameCount       int     `json:"frame_count"`
	TotalTracked     int     `json:"total_tracked"`
	TotalConfirmed   int     `json:"total_confirmed"`
	ConfirmationRate float64 `json:"confirmation_rate"`
	StaticObstacles  int     `json:"static_obstacles"`
}

// Confirmer accumulates per-track detection history and confirms a track as a
// real obstacle only after sustained, gap-tolerant appearance. Its lifecycle
// is wall-clock based and deliberately independent of the Tracker's
// frame-count deregistration; the two can disagree about which tracks exist.
type Confirmer struct {
	config ConfirmerConfig

	frameCount int
	histories  map[int]*trackHistory
	confirmed  map[int]detect.Detection

	now func() time.Time

	mu sync.Mutex
}

// NewConfirmer creates a new confirmation gate.
func NewConfirmer(config ConfirmerConfig) *Confirmer {
	return &Confirmer{
		config:    config,
		histories: make(map[int]*trackHistory),
		confirmed: make(map[int]detect.Detection),
		now:       time.Now,
	}
}

// Update feeds one frame of tracker output into the confirmation windows and
// returns the obstacles currently confirmed, ordered by track id. The raw
// detection list is accepted alongside so callers can account for unmatched
// detections in statistics; confirmation itself operates on tracked objects.
func (c *Confirmer) Update(detections []detect.Detection, tracked map[int]detect.Detection) []ConfirmedObstacle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frameCount++
	now := c.now()

	ids := make([]int, 0, len(tracked))
	for id := range tracked {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	historyCap := c.config.MinConsecutiveFrames + c.config.MaxFrameGap

	out := make([]ConfirmedObstacle, 0, len(ids))
	for _, id := range ids {
		d := tracked[id]

		h, ok := c.histories[id]
		if !ok {
			// Explicit insert-if-absent: entries exist only for ids that were
			// actually tracked, never by implicit default construction.
			h = &trackHistory{firstSeen: now}
			c.histories[id] = h
		}

		h.entries = append(h.entries, historyEntry{detection: d, frame: c.frameCount, at: now})
		if len(h.entries) > historyCap {
			h.entries = h.entries[len(h.entries)-historyCap:]
		}
		h.lastSeen = now

		cx, cy := d.BBox.Center()
		h.positions = append(h.positions, [2]float64{cx, cy})
		if len(h.positions) > c.config.PositionWindow {
			h.positions = h.positions[len(h.positions)-c.config.PositionWindow:]
		}
		if len(h.positions) >= 3 {
			h.isStatic = maxDisplacement(h.positions) < c.config.MovementThresholdPx
		}

		// The gap gate is re-evaluated every frame for the returned list. The
		// confirmed flag and map stay sticky for AllConfirmed and statistics,
		// so a track reappearing after an over-long gap is withheld from the
		// output until a fresh unbroken run accumulates.
		if c.passesGate(h) {
			if !h.confirmed {
				h.confirmed = true
			}
			c.confirmed[id] = d
			out = append(out, ConfirmedObstacle{
				TrackID:    id,
				Detection:  d,
				Duration:   now.Sub(h.firstSeen),
				IsStatic:   h.isStatic,
				FrameCount: len(h.entries),
			})
		}
	}

	c.purgeStale(now)

	return out
}

// passesGate checks the sustained-appearance criterion: the most recent
// MinConsecutiveFrames entries must each follow the previous within
// MaxFrameGap missed frames (gap = frame index difference minus one).
func (c *Confirmer) passesGate(h *trackHistory) bool {
	min := c.config.MinConsecutiveFrames
	if len(h.entries) < min {
		return false
	}
	recent := h.entries[len(h.entries)-min:]
	for i := 0; i+1 < len(recent); i++ {
		gap := recent[i+1].frame - recent[i].frame - 1
		if gap > c.config.MaxFrameGap {
			return false
		}
	}
	return true
}

// maxDisplacement returns the largest distance between consecutive centroids.
func maxDisplacement(positions [][2]float64) float64 {
	max := 0.0
	for i := 0; i+1 < len(positions); i++ {
		d := math.Hypot(positions[i+1][0]-positions[i][0], positions[i+1][1]-positions[i][1])
		if d > max {
			max = d
		}
	}
	return max
}

// purgeStale removes histories not seen within the inactivity timeout,
// regardless of whether the Tracker still carries the track.
func (c *Confirmer) purgeStale(now time.Time) {
	for id, h := range c.histories {
		if now.Sub(h.lastSeen) > c.config.InactivityTimeout {
			delete(c.histories, id)
			delete(c.confirmed, id)
		}
	}
}

// Info returns the confirmation state for one track.
func (c *Confirmer) Info(trackID int) (TrackInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.histories[trackID]
	if !ok {
		return TrackInfo{}, false
	}
	positions := make([][2]float64, len(h.positions))
	copy(positions, h.positions)
	return TrackInfo{
		TrackID:        trackID,
		FirstSeen:      h.firstSeen,
		LastSeen:       h.lastSeen,
		Duration:       h.lastSeen.Sub(h.firstSeen),
		DetectionCount: len(h.entries),
		Confirmed:      h.confirmed,
		IsStatic:       h.isStatic,
		Positions:      positions,
	}, true
}

// AllConfirmed returns the currently confirmed obstacles without advancing the
// frame counter.
func (c *Confirmer) AllConfirmed() []ConfirmedObstacle {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]int, 0, len(c.confirmed))
	for id := range c.confirmed {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]ConfirmedObstacle, 0, len(ids))
	for _, id := range ids {
		h := c.histories[id]
		out = append(out, ConfirmedObstacle{
			TrackID:    id,
			Detection:  c.confirmed[id],
			Duration:   h.lastSeen.Sub(h.firstSeen),
			IsStatic:   h.isStatic,
			FrameCount: len(h.entries),
		})
	}
	return out
}

// Stats returns confirmation counters.
func (c *Confirmer) Stats() ConfirmerStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	static := 0
	for _, h := range c.histories {
		if h.isStatic {
			static++
		}
	}
	s := ConfirmerStats{
		FrameCount:      c.frameCount,
		TotalTracked:    len(c.histories),
		TotalConfirmed:  len(c.confirmed),
		StaticObstacles: static,
	}
	if s.TotalTracked > 0 {
		s.ConfirmationRate = float64(s.TotalConfirmed) / float64(s.TotalTracked)
	}
	return s
}

// Reset clears all confirmation state.
func (c *Confirmer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.histories = make(map[int]*trackHistory)
	c.confirmed = make(map[int]detect.Detection)
	c.frameCount = 0
}
