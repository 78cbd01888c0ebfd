package motion

import (
	"math"
	"testing"
)

func TestSubdivideArcQuarterCircle(t *testing.T) {
	// Quarter circle of radius 10 around (0, 10), counterclockwise from
	// (0, 0) to (10, 10). Arc length is ~15.7 mm.
	points, err := subdivideArc(0, 0, 10, 10, 0, 10, 0, false, false, 1)
	if err != nil {
		t.Fatalf("subdivideArc failed: %v", err)
	}
	if len(points) != 16 {
		t.Errorf("got %d chords, want 16", len(points))
	}
	last := points[len(points)-1]
	if last.x != 10 || last.y != 10 {
		t.Errorf("final point = (%v, %v), want exactly (10, 10)", last.x, last.y)
	}
	for _, pt := range points {
		r := math.Hypot(pt.x-0, pt.y-10)
		if math.Abs(r-10) > 1e-9 {
			t.Errorf("point (%v, %v) off the circle: radius %v", pt.x, pt.y, r)
		}
	}
}

func TestSubdivideArcChordLength(t *testing.T) {
	points, err := subdivideArc(0, 0, 10, 10, 0, 10, 0, false, false, 2)
	if err != nil {
		t.Fatalf("subdivideArc failed: %v", err)
	}
	prev := arcPoint{x: 0, y: 0}
	for _, pt := range points {
		chord := math.Hypot(pt.x-prev.x, pt.y-prev.y)
		if chord > 2+1e-9 {
			t.Errorf("chord %v exceeds unit length 2", chord)
		}
		prev = pt
	}
}

func TestSubdivideArcRadiusMode(t *testing.T) {
	points, err := subdivideArc(0, 0, 10, 0, 0, 0, 5, true, true, 1)
	if err != nil {
		t.Fatalf("subdivideArc failed: %v", err)
	}
	last := points[len(points)-1]
	if last.x != 10 || last.y != 0 {
		t.Errorf("final point = (%v, %v), want (10, 0)", last.x, last.y)
	}
	// Half circle of radius 5: every point stays on it.
	for _, pt := range points {
		r := math.Hypot(pt.x-5, pt.y)
		if math.Abs(r-5) > 1e-9 {
			t.Errorf("point (%v, %v) off the circle", pt.x, pt.y)
		}
	}
}

func TestSubdivideArcRadiusTooSmall(t *testing.T) {
	if _, err := subdivideArc(0, 0, 10, 0, 0, 0, 2, true, true, 1); err == nil {
		t.Fatal("radius 2 for a 10 mm chord should fail")
	}
}

func TestSubdivideArcFullCircle(t *testing.T) {
	points, err := subdivideArc(0, 0, 0, 0, 5, 0, 0, false, false, 1)
	if err != nil {
		t.Fatalf("subdivideArc failed: %v", err)
	}
	// Circumference 2*pi*5 ~ 31.4 mm.
	if len(points) < 31 || len(points) > 33 {
		t.Errorf("got %d chords for a full circle, want ~32", len(points))
	}
	last := points[len(points)-1]
	if math.Abs(last.x) > 1e-9 || math.Abs(last.y) > 1e-9 {
		t.Errorf("full circle should return to origin, got (%v, %v)", last.x, last.y)
	}
}
