package motion

import (
	"fmt"
	"math"
)

// arcPoint is one chord endpoint of a subdivided arc.
type arcPoint struct {
	x, y float64
}

// subdivideArc splits an XY arc into chord endpoints no further apart
// than unit along the arc. The start point is not included; the final
// point is exactly the target. Center offsets (i, j) are relative to the
// start; when radius mode is used instead, the center is derived from
// the chord with the convention that a positive radius selects the
// shorter of the two possible arcs.
func subdivideArc(sx, sy, tx, ty float64, i, j, r float64, radiusMode, clockwise bool, unit float64) ([]arcPoint, error) {
	var cx, cy float64
	if radiusMode {
		dx, dy := tx-sx, ty-sy
		chord := math.Hypot(dx, dy)
		if chord == 0 {
			return nil, fmt.Errorf("motion: radius-mode arc with coincident endpoints")
		}
		rr := math.Abs(r)
		if chord > 2*rr {
			return nil, fmt.Errorf("motion: arc radius %.3f too small for chord %.3f", rr, chord)
		}
		h := math.Sqrt(rr*rr - chord*chord/4)
		// Perpendicular to the chord; side picked by rotation sense and
		// radius sign.
		px, py := -dy/chord, dx/chord
		if clockwise != (r < 0) {
			px, py = -px, -py
		}
		cx = sx + dx/2 + h*px
		cy = sy + dy/2 + h*py
	} else {
		cx = sx + i
		cy = sy + j
	}

	radius := math.Hypot(sx-cx, sy-cy)
	if radius == 0 {
		return nil, fmt.Errorf("motion: arc with zero radius")
	}

	startAngle := math.Atan2(sy-cy, sx-cx)
	endAngle := math.Atan2(ty-cy, tx-cx)
	sweep := endAngle - startAngle
	if clockwise {
		if sweep >= 0 {
			sweep -= 2 * math.Pi
		}
	} else {
		if sweep <= 0 {
			sweep += 2 * math.Pi
		}
	}
	// Coincident endpoints in center mode trace a full circle.
	if !radiusMode && math.Hypot(tx-sx, ty-sy) < 1e-9 {
		if clockwise {
			sweep = -2 * math.Pi
		} else {
			sweep = 2 * math.Pi
		}
	}

	arcLen := math.Abs(sweep) * radius
	segments := int(math.Ceil(arcLen / unit))
	if segments < 1 {
		segments = 1
	}

	points := make([]arcPoint, segments)
	for s := 1; s < segments; s++ {
		theta := startAngle + sweep*float64(s)/float64(segments)
		points[s-1] = arcPoint{
			x: cx + radius*math.Cos(theta),
			y: cy + radius*math.Sin(theta),
		}
	}
	points[segments-1] = arcPoint{x: tx, y: ty}
	return points, nil
}
