package pathing

import (
	"math"

	"hunt-arena/server/internal/geom"
)

// radicandSlack absorbs rounding when a scanline sits exactly on the top or
// bottom of an end cap.
const radicandSlack = 1e-9

// LinearPathable reports whether the entity's disc can slide in a straight
// line from start to end without overlapping a blocking tile. The entity's
// own contribution is ignored.
func (m *Map) LinearPathable(e Entity, start, end geom.Point) bool {
	radius := mustRadius(e)
	required := requiredFlags(e)
	restore := m.suspend(e.PathingID())
	defer restore()
	return m.sweepClear(start, end, radius, required)
}

// sweepClear walks every tile row the capsule swept by a disc of radius
// covers and checks the exact horizontal span of the capsule in that row.
// Cells the capsule only touches on their boundary do not count; cells off
// the grid always do.
func (m *Map) sweepClear(start, end geom.Point, radius float64, required Flags) bool {
	res := float64(m.resolution)
	ax, ay := start.X*res, start.Y*res
	bx, by := end.X*res, end.Y*res
	r := radius * res
	dx, dy := bx-ax, by-ay

	var nx, ny float64
	if length := math.Hypot(dx, dy); length > 0 {
		nx, ny = -dy/length, dx/length
	}

	span := func(y float64) (float64, float64) {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, c := range [2][2]float64{{ax, ay}, {bx, by}} {
			rad := r*r - (y-c[1])*(y-c[1])
			if rad < -radicandSlack {
				continue
			}
			w := math.Sqrt(max(rad, 0))
			lo = min(lo, c[0]-w)
			hi = max(hi, c[0]+w)
		}
		if dy != 0 {
			for _, side := range [2]float64{r, -r} {
				t := (y - ay - side*ny) / dy
				if t < 0 || t > 1 {
					continue
				}
				x := ax + t*dx + side*nx
				lo = min(lo, x)
				hi = max(hi, x)
			}
		}
		return lo, hi
	}

	// The capsule's extreme columns sit on the end cap with the smaller or
	// larger x, level with that endpoint.
	leftX, leftY := ax-r, ay
	if bx < ax {
		leftX, leftY = bx-r, by
	}
	rightX, rightY := ax+r, ay
	if bx > ax {
		rightX, rightY = bx+r, by
	}

	yMin := min(ay, by) - r
	yMax := max(ay, by) + r
	lastRow := int(math.Ceil(yMax)) - 1
	for row := int(math.Floor(yMin)); row <= lastRow; row++ {
		lo := max(float64(row), yMin)
		hi := min(float64(row+1), yMax)
		if hi <= lo {
			continue
		}

		minLo, maxLo := span(lo)
		minHi, maxHi := span(hi)
		trueMinX := min(minLo, minHi)
		trueMaxX := max(maxLo, maxHi)
		if leftY >= lo && leftY <= hi {
			trueMinX = min(trueMinX, leftX)
		}
		if rightY >= lo && rightY <= hi {
			trueMaxX = max(trueMaxX, rightX)
		}
		if trueMinX >= trueMaxX {
			continue
		}

		lastCol := int(math.Ceil(trueMaxX)) - 1
		for col := int(math.Floor(trueMinX)); col <= lastCol; col++ {
			tile := m.Tile(col, row)
			if tile == nil || !tile.Pathable(required) {
				return false
			}
		}
	}
	return true
}
