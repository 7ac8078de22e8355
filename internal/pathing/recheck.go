package pathing

import (
	"hunt-arena/server/internal/geom"
)

// Recheck tests the part of a path between arc lengths offset and
// offset+amount for blockage. false means the entity can no longer get
// through there; true only means nothing was found blocked in that window.
// Pass math.Inf(1) as amount to examine the rest of the path.
func (m *Map) Recheck(path []geom.Point, e Entity, amount, offset float64) bool {
	if len(path) < 2 || amount <= 0 {
		return true
	}
	radius := mustRadius(e)
	required := requiredFlags(e)
	restore := m.suspend(e.PathingID())
	defer restore()

	windowEnd := offset + amount
	travelled := 0.0
	for i := 1; i < len(path); i++ {
		from, to := path[i-1], path[i]
		length := geom.Distance(from, to)
		segStart, segEnd := travelled, travelled+length
		travelled = segEnd
		if segEnd < offset {
			continue
		}
		if segStart > windowEnd {
			break
		}
		a, b := from, to
		if length > 0 {
			if offset > segStart {
				a = geom.Lerp(from, to, (offset-segStart)/length)
			}
			if windowEnd < segEnd {
				b = geom.Lerp(from, to, (windowEnd-segStart)/length)
			}
		}
		if !m.sweepClear(a, b, radius, required) {
			return false
		}
	}
	return true
}
