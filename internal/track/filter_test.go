package track

import (
	"testing"
	"time"

	"github.com/railwatch-data/railwatch/internal/detect"
)

func confirmedObstacle(d detect.Detection) ConfirmedObstacle {
	return ConfirmedObstacle{TrackID: 1, Detection: d}
}

func TestFalseAlertFilterRejectsSmallBoxes(t *testing.T) {
	f := NewFalseAlertFilter(DefaultFilterConfig())

	small := confirmedObstacle(detect.Detection{
		Class: detect.ClassHuman, Confidence: 0.9,
		BBox: detect.BBox{X1: 0, Y1: 0, X2: 30, Y2: 30}, // 900 px²
	})
	if f.Accept(small) {
		t.Error("box under 1000 px² should be rejected")
	}

	big := confirmedObstacle(detect.Detection{
		Class: detect.ClassHuman, Confidence: 0.9,
		BBox: detect.BBox{X1: 0, Y1: 0, X2: 40, Y2: 40}, // 1600 px²
	})
	if !f.Accept(big) {
		t.Error("box over 1000 px² should pass")
	}
	if got := f.Suppressed(); got != 1 {
		t.Errorf("suppressed = %d, want 1", got)
	}
}

func TestFalseAlertFilterRejectsExtremeAspectRatio(t *testing.T) {
	f := NewFalseAlertFilter(DefaultFilterConfig())

	sliver := confirmedObstacle(detect.Detection{
		Class: detect.ClassVehicle, Confidence: 0.9,
		BBox: detect.BBox{X1: 0, Y1: 0, X2: 550, Y2: 50}, // ratio 11
	})
	if f.Accept(sliver) {
		t.Error("aspect ratio over 10 should be rejected")
	}
}

func TestFalseAlertFilterDebrisNeedsHighConfidence(t *testing.T) {
	f := NewFalseAlertFilter(DefaultFilterConfig())

	lowConf := confirmedObstacle(detect.Detection{
		Class: detect.ClassDebris, Confidence: 0.5,
		BBox: detect.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
	})
	if f.Accept(lowConf) {
		t.Error("low-confidence debris should be rejected")
	}

	highConf := confirmedObstacle(detect.Detection{
		Class: detect.ClassDebris, Confidence: 0.7,
		BBox: detect.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
	})
	if !f.Accept(highConf) {
		t.Error("high-confidence debris should pass")
	}

	// Same confidence is fine for other classes.
	human := confirmedObstacle(detect.Detection{
		Class: detect.ClassHuman, Confidence: 0.5,
		BBox: detect.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
	})
	if !f.Accept(human) {
		t.Error("low-confidence human should pass")
	}
}

func TestDuplicateSuppressorWindow(t *testing.T) {
	cfg := DefaultFilterConfig()
	s := NewDuplicateSuppressor(cfg)
	clock := newFakeClock()
	s.now = clock.now

	d := detect.Detection{
		Class: detect.ClassHuman, Confidence: 0.9,
		BBox: detect.BBox{X1: 100, Y1: 100, X2: 140, Y2: 200},
	}

	if s.IsDuplicate(d) {
		t.Fatal("first alert must not be a duplicate")
	}

	// Same class, nearly same spot, inside the window.
	clock.advance(5 * time.Second)
	nearby := d
	nearby.BBox = detect.BBox{X1: 110, Y1: 100, X2: 150, Y2: 200}
	if !s.IsDuplicate(nearby) {
		t.Error("nearby repeat within the window should be suppressed")
	}

	// Duplicates are not recorded, so after the window passes since the
	// original, the same spot alerts again.
	clock.advance(cfg.DuplicateWindow)
	if s.IsDuplicate(d) {
		t.Error("repeat after the window should alert again")
	}
}

func TestDuplicateSuppressorDifferentClassOrLocation(t *testing.T) {
	s := NewDuplicateSuppressor(DefaultFilterConfig())
	clock := newFakeClock()
	s.now = clock.now

	human := detect.Detection{
		Class: detect.ClassHuman, Confidence: 0.9,
		BBox: detect.BBox{X1: 100, Y1: 100, X2: 140, Y2: 200},
	}
	s.IsDuplicate(human)

	vehicle := human
	vehicle.Class = detect.ClassVehicle
	if s.IsDuplicate(vehicle) {
		t.Error("different class at same spot is not a duplicate")
	}

	far := human
	far.BBox = detect.BBox{X1: 400, Y1: 100, X2: 440, Y2: 200}
	if s.IsDuplicate(far) {
		t.Error("same class far away is not a duplicate")
	}
}

func TestDuplicateSuppressorRadiusIsExclusive(t *testing.T) {
	s := NewDuplicateSuppressor(DefaultFilterConfig())
	clock := newFakeClock()
	s.now = clock.now

	// Center (120, 150).
	base := detect.Detection{
		Class: detect.ClassHuman, Confidence: 0.9,
		BBox: detect.BBox{X1: 100, Y1: 100, X2: 140, Y2: 200},
	}
	s.IsDuplicate(base)
	clock.advance(time.Second)

	// Center exactly DuplicateRadius away: not a duplicate (strict <).
	atRadius := base
	atRadius.BBox = detect.BBox{X1: 150, Y1: 100, X2: 190, Y2: 200}
	if s.IsDuplicate(atRadius) {
		t.Error("center exactly at the radius should not be a duplicate")
	}

	// One pixel inside the radius is.
	clock.advance(time.Second)
	inside := base
	inside.BBox = detect.BBox{X1: 149, Y1: 100, X2: 189, Y2: 200}
	if !s.IsDuplicate(inside) {
		t.Error("center inside the radius should be a duplicate")
	}
}

func TestDuplicateSuppressorRingBufferCap(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.DuplicateCap = 3
	s := NewDuplicateSuppressor(cfg)
	clock := newFakeClock()
	s.now = clock.now

	// Fill past the cap with distinct locations.
	for i := 0; i < 5; i++ {
		d := detect.Detection{
			Class: detect.ClassHuman, Confidence: 0.9,
			BBox: detect.BBox{X1: i * 200, Y1: 0, X2: i*200 + 40, Y2: 100},
		}
		if s.IsDuplicate(d) {
			t.Fatalf("entry %d unexpectedly duplicate", i)
		}
	}
	if len(s.recent) != 3 {
		t.Errorf("ring buffer size = %d, want 3", len(s.recent))
	}

	// The oldest entries were evicted, so their locations alert again.
	first := detect.Detection{
		Class: detect.ClassHuman, Confidence: 0.9,
		BBox: detect.BBox{X1: 0, Y1: 0, X2: 40, Y2: 100},
	}
	if s.IsDuplicate(first) {
		t.Error("evicted location should not count as duplicate")
	}
}
