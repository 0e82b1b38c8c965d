package track

import (
	"testing"

	"github.com/railwatch-data/railwatch/internal/detect"
)

func det(x1, y1, x2, y2 int) detect.Detection {
	return detect.Detection{
		Class:      detect.ClassHuman,
		Confidence: 0.9,
		BBox:       detect.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2},
	}
}

func TestTrackerAssignsMonotonicIDs(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())

	tracked := tr.Update([]detect.Detection{det(0, 0, 10, 10), det(500, 0, 510, 10)})
	if len(tracked) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracked))
	}
	if _, ok := tracked[0]; !ok {
		t.Errorf("expected track id 0")
	}
	if _, ok := tracked[1]; !ok {
		t.Errorf("expected track id 1")
	}
}

func TestTrackerMatchesNearestCentroid(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())

	tr.Update([]detect.Detection{det(0, 0, 10, 10)})
	// Moved slightly; should keep the same id.
	tracked := tr.Update([]detect.Detection{det(20, 20, 30, 30)})

	if len(tracked) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracked))
	}
	if _, ok := tracked[0]; !ok {
		t.Errorf("detection should have matched track 0, got %v", tracked)
	}
}

func TestTrackerGatingDistanceRegistersNewTrack(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())

	tr.Update([]detect.Detection{det(0, 0, 10, 10)})
	// Far beyond the 100px gate: new track, old one ages.
	tracked := tr.Update([]detect.Detection{det(500, 500, 510, 510)})

	if len(tracked) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracked))
	}
	if _, ok := tracked[1]; !ok {
		t.Errorf("expected distant detection to register track 1, got %v", tracked)
	}
	track0, ok := tr.GetTrack(0)
	if !ok {
		t.Fatal("track 0 should still exist")
	}
	if track0.Disappeared != 1 {
		t.Errorf("track 0 disappeared = %d, want 1", track0.Disappeared)
	}
}

func TestTrackerDeregistersAfterMaxDisappeared(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tr := NewTracker(cfg)

	tr.Update([]detect.Detection{det(0, 0, 10, 10)})

	// Track survives exactly MaxDisappeared empty frames.
	for i := 0; i < cfg.MaxDisappeared; i++ {
		tracked := tr.Update(nil)
		if len(tracked) != 1 {
			t.Fatalf("frame %d: expected track to survive, got %d tracks", i+1, len(tracked))
		}
	}

	// One more empty frame exceeds the threshold.
	tracked := tr.Update(nil)
	if len(tracked) != 0 {
		t.Fatalf("expected track to be deregistered, got %d tracks", len(tracked))
	}
}

func TestTrackerNeverReusesIDs(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tr := NewTracker(cfg)

	tr.Update([]detect.Detection{det(0, 0, 10, 10)})
	for i := 0; i <= cfg.MaxDisappeared; i++ {
		tr.Update(nil)
	}
	if tr.TrackCount() != 0 {
		t.Fatal("expected empty tracker")
	}

	tracked := tr.Update([]detect.Detection{det(0, 0, 10, 10)})
	if _, ok := tracked[0]; ok {
		t.Errorf("track id 0 must not be reused")
	}
	if _, ok := tracked[1]; !ok {
		t.Errorf("expected new track id 1, got %v", tracked)
	}
}

func TestTrackerTieBreakPrefersFirstRegistered(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())

	// Two tracks equidistant from the next detection.
	tr.Update([]detect.Detection{det(0, 0, 10, 10), det(40, 0, 50, 10)})

	// Detection centered exactly between the two track centroids (5,5) and
	// (45,5): both are 20px away, so the first-registered track wins.
	tracked := tr.Update([]detect.Detection{det(20, 0, 30, 10)})

	track0, ok := tr.GetTrack(0)
	if !ok {
		t.Fatal("track 0 missing")
	}
	if track0.Detection.BBox.X1 != 20 {
		t.Errorf("tie should match first-registered track 0, bbox = %+v", track0.Detection.BBox)
	}
	track1, _ := tr.GetTrack(1)
	if track1.Disappeared != 1 {
		t.Errorf("track 1 should have aged, disappeared = %d", track1.Disappeared)
	}
	if len(tracked) != 2 {
		t.Errorf("expected 2 tracks, got %d", len(tracked))
	}
}

func TestTrackerEmptyFrameCreatesNoTracks(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())
	tracked := tr.Update(nil)
	if len(tracked) != 0 {
		t.Fatalf("expected no tracks, got %d", len(tracked))
	}
}
