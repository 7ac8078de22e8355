package pathing

import (
	"math"

	"hunt-arena/server/internal/geom"
)

// agent describes the lattice a disc of a given radius searches on. Nodes
// are tile indices; a node's world position is shifted by offset tiles so
// that the disc footprint centred on it is as tight as possible.
type agent struct {
	radius   float64
	required Flags
	offset   float64
	key      footprintKey
}

func (m *Map) newAgent(radius float64, required Flags) agent {
	r := radius * float64(m.resolution)
	offset := 0.0
	// An odd-width footprint centred on a tile is narrower than the
	// even-width one centred on a corner for some radii.
	if 2*math.Ceil(r-0.5)+1 < 2*math.Ceil(r) {
		offset = 0.5
	}
	return agent{
		radius:   radius,
		required: required,
		offset:   offset,
		key:      footprintKey{fracX: offset, fracY: offset, radius: r, flags: required},
	}
}

func (m *Map) nodeXY(node int) (int, int) {
	return node % m.width, node / m.width
}

func (m *Map) nodeWorld(a agent, node int) geom.Point {
	x, y := m.nodeXY(node)
	res := float64(m.resolution)
	return geom.Point{X: (float64(x) + a.offset) / res, Y: (float64(y) + a.offset) / res}
}

// nearestNode maps a world point to the closest node, clamped to the grid.
func (m *Map) nearestNode(a agent, p geom.Point) int {
	res := float64(m.resolution)
	x := int(math.Floor(p.X*res - a.offset + 0.5))
	y := int(math.Floor(p.Y*res - a.offset + 0.5))
	x = max(0, min(m.width-1, x))
	y = max(0, min(m.height-1, y))
	return m.index(x, y)
}

// nodeFits tests the agent's footprint at a node without memoisation.
func (m *Map) nodeFits(node int, fp Footprint, pred TilePredicate) bool {
	x, y := m.nodeXY(node)
	return m.footprintPathable(fp, x, y, pred)
}

// searchScratch is per-map bookkeeping reused across searches. An entry is
// live only when its tag equals the current generation, so nothing needs
// clearing between searches.
type searchScratch struct {
	gen      uint32
	tag      [2][]uint32
	closed   [2][]uint32
	cost     [2][]float64
	parent   [2][]int32
	validTag []uint32
	valid    []bool
}

func (s *searchScratch) reset(size int) {
	for side := 0; side < 2; side++ {
		s.tag[side] = make([]uint32, size)
		s.closed[side] = make([]uint32, size)
		s.cost[side] = make([]float64, size)
		s.parent[side] = make([]int32, size)
	}
	s.validTag = make([]uint32, size)
	s.valid = make([]bool, size)
	s.gen = 0
}

// next starts a new generation, clearing the arrays when the counter wraps.
func (s *searchScratch) next() uint32 {
	s.gen++
	if s.gen == 0 {
		for side := 0; side < 2; side++ {
			clear(s.tag[side])
			clear(s.closed[side])
		}
		clear(s.validTag)
		s.gen = 1
	}
	return s.gen
}

type queueItem struct {
	node int
	key  float64
}

// nodeQueue is a min-heap on key, ties broken by the lower tile index so
// searches are deterministic.
type nodeQueue []queueItem

func (q nodeQueue) Len() int { return len(q) }

func (q nodeQueue) Less(i, j int) bool {
	if q[i].key != q[j].key {
		return q[i].key < q[j].key
	}
	return q[i].node < q[j].node
}

func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x any) { *q = append(*q, x.(queueItem)) }

func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
