package pathing

import (
	"container/heap"
	"iter"

	"hunt-arena/server/internal/geom"
)

// MaxSpiralTries bounds the number of positions NearestSpiralPathing tests.
const MaxSpiralTries = 8192

// AnyLayer disables the layer constraint of NearestSpiralPathing.
const AnyLayer = -1

// NearestPathing returns the closest position to target where the entity
// fits. The target itself is returned when it is already pathable; ok is
// false when no position on the map fits.
func (m *Map) NearestPathing(target geom.Point, e Entity, pred TilePredicate) (geom.Point, bool) {
	restore := m.suspend(e.PathingID())
	defer restore()
	if m.pathableAt(e, target, pred, nil) {
		return target, true
	}
	for p := range m.nearestSeq(target, e, pred) {
		return p, true
	}
	return target, false
}

// NearestPathingSeq yields successively farther positions where the entity
// fits, starting from the node closest to target. Each range over the
// sequence restarts the expansion. The entity's own contribution is lifted
// for the duration of the range. The loop body may move, remove or re-add
// the entity; candidates after such a change still ignore its old cells.
func (m *Map) NearestPathingSeq(target geom.Point, e Entity, pred TilePredicate) iter.Seq[geom.Point] {
	return func(yield func(geom.Point) bool) {
		restore := m.suspend(e.PathingID())
		defer restore()
		for p := range m.nearestSeq(target, e, pred) {
			if !yield(p) {
				return
			}
		}
	}
}

func (m *Map) nearestSeq(target geom.Point, e Entity, pred TilePredicate) iter.Seq[geom.Point] {
	a, fits := m.placement(e, pred)
	return func(yield func(geom.Point) bool) {
		m.expandNearest(a, target, fits, func(node int, _ float64) bool {
			return yield(m.nodeWorld(a, node))
		})
	}
}

// placement picks the node lattice and fit test for an entity. Structures
// sit on tile centres and test their fixed footprint.
func (m *Map) placement(e Entity, pred TilePredicate) (agent, func(int) bool) {
	if s, ok := structureOf(e); ok {
		fp := s.RequiresTilemap()
		if fp == nil {
			fp = s.Tilemap()
		}
		shape := *fp
		return agent{offset: 0.5}, func(node int) bool {
			return m.nodeFits(node, shape, pred)
		}
	}
	a := m.newAgent(mustRadius(e), requiredFlags(e))
	fp := m.footprints.lookup(a.key)
	return a, func(node int) bool {
		return m.nodeFits(node, fp, pred)
	}
}

// expandNearest visits in-bounds nodes in order of distance from target and
// calls visit for each one fits accepts, until visit returns false.
func (m *Map) expandNearest(a agent, target geom.Point, fits func(int) bool, visit func(node int, dist float64) bool) {
	origin := m.nearestNode(a, target)
	seen := map[int]struct{}{origin: {}}
	queue := &nodeQueue{{node: origin, key: geom.Distance(m.nodeWorld(a, origin), target)}}
	for queue.Len() > 0 {
		item := heap.Pop(queue).(queueItem)
		if fits(item.node) && !visit(item.node, item.key) {
			return
		}
		x, y := m.nodeXY(item.node)
		for _, offset := range neighborOffsets {
			nx, ny := x+offset[0], y+offset[1]
			if !m.inBounds(nx, ny) {
				continue
			}
			next := m.index(nx, ny)
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			heap.Push(queue, queueItem{node: next, key: geom.Distance(m.nodeWorld(a, next), target)})
		}
	}
}

// NearestSpiralPathing walks an axis-aligned spiral of whole-tile offsets
// around target and returns the first position where the entity fits and,
// unless layer is AnyLayer, whose cell is on that layer. The target is
// returned unchanged when MaxSpiralTries positions fail.
func (m *Map) NearestSpiralPathing(target geom.Point, e Entity, layer int) geom.Point {
	restore := m.suspend(e.PathingID())
	defer restore()

	fits := func(p geom.Point) bool {
		if layer != AnyLayer {
			if got, ok := m.Layer(p); !ok || got != layer {
				return false
			}
		}
		return m.pathableAt(e, p, nil, nil)
	}
	if fits(target) {
		return target
	}

	step := 1 / float64(m.resolution)
	x, y := 0, 0
	tries := 1
	for length := 1; ; length++ {
		for turn := 0; turn < 2; turn++ {
			dir := neighborOffsets[(2*(length-1)+turn)%4]
			for i := 0; i < length; i++ {
				if tries >= MaxSpiralTries {
					return target
				}
				x += dir[0]
				y += dir[1]
				tries++
				candidate := geom.Point{X: target.X + float64(x)*step, Y: target.Y + float64(y)*step}
				if fits(candidate) {
					return candidate
				}
			}
		}
	}
}
