package pathing

import (
	"container/heap"
	"context"
	"math"

	"hunt-arena/server/internal/geom"
	"hunt-arena/server/logging"
	loggingpathing "hunt-arena/server/logging/pathing"
)

const (
	// WalkIgnoreDistance is the edge-to-edge distance within which other
	// moving units are considered for exclusion from a search.
	WalkIgnoreDistance = 2.0
	// WalkAngleDifference is the largest angle between a mover's heading and
	// the direct line to the target for which the mover is kept as an
	// obstacle.
	WalkAngleDifference = math.Pi / 4

	stagnationLimit   = 500
	standoffSteps     = 15
	standoffTolerance = 0.01
	maxEndSeeds       = 8

	// moverQueryPadding widens the mover query so large neighbours whose
	// centres lie beyond WalkIgnoreDistance are still tested.
	moverQueryPadding = 2.0
)

const (
	sideStart = 0
	sideEnd   = 1
)

// PathOptions tunes a single Path call.
type PathOptions struct {
	// DistanceFromTarget is the standoff the path should stop at.
	DistanceFromTarget float64
	// KeepMovingEntities disables the exclusion of nearby movers.
	KeepMovingEntities bool
	// Target is the entity being approached, if any. It is never excluded.
	Target Entity
}

// Path searches for a route for the entity's disc to target. The result
// starts at or next to the entity's position; an empty or single-point
// result means there is no productive move. Consecutive waypoints are
// always mutually reachable in a straight line.
func (m *Map) Path(e Entity, target geom.Point, opts PathOptions) []geom.Point {
	radius := mustRadius(e)
	required := requiredFlags(e)
	start := e.Position()
	standoff := opts.DistanceFromTarget
	if standoff > 0 && geom.Distance(start, target) <= standoff {
		return nil
	}

	suspended := []string{e.PathingID()}
	if !opts.KeepMovingEntities {
		suspended = append(suspended, m.transientMovers(e, start, target, radius, opts.Target)...)
	}
	restore := m.suspend(suspended...)
	defer restore()

	s := &search{
		m:      m,
		agent:  m.newAgent(radius, required),
		cache:  newSearchCache(),
		start:  start,
		target: target,
	}
	s.nodeFootprint = m.circleFootprintForKey(s.agent.key, s.cache)
	s.gen = m.scratch.next()

	nodes, stalled := s.run(standoff)
	if stalled {
		loggingpathing.SearchStalled(context.Background(), m.publisher, 0,
			logging.EntityRef{ID: e.PathingID(), Kind: logging.EntityKindUnit},
			loggingpathing.SearchStalledPayload{
				Iterations: stagnationLimit,
				TargetX:    target.X,
				TargetY:    target.Y,
			}, nil)
	}
	if len(nodes) == 0 {
		return nil
	}

	path := s.smooth(nodes)
	path = s.anchorStart(path)
	if standoff > 0 {
		path = trimStandoff(path, target, standoff)
	}
	return path
}

// transientMovers lists nearby movers heading away from the line to the
// target. They are likely gone by the time the searcher arrives.
func (m *Map) transientMovers(self Entity, start, target geom.Point, radius float64, exempt Entity) []string {
	if m.movers == nil {
		return nil
	}
	direct := geom.Angle(start, target)
	var ids []string
	for _, other := range m.movers.Nearby(start, WalkIgnoreDistance+radius+moverQueryPadding) {
		if other == nil || other.PathingID() == self.PathingID() {
			continue
		}
		if exempt != nil && other.PathingID() == exempt.PathingID() {
			continue
		}
		mover, ok := other.(Mover)
		if !ok {
			continue
		}
		heading, moving := mover.Heading()
		if !moving {
			continue
		}
		pos := other.Position()
		if geom.Distance(start, pos)-radius-other.Radius() > WalkIgnoreDistance {
			continue
		}
		if heading == pos {
			continue
		}
		if math.Abs(geom.AngleDiff(direct, geom.Angle(pos, heading))) > WalkAngleDifference {
			ids = append(ids, other.PathingID())
		}
	}
	return ids
}

func (m *Map) circleFootprintForKey(key footprintKey, cache *searchCache) Footprint {
	if fp, ok := cache.footprints[key]; ok {
		return fp
	}
	fp := m.footprints.lookup(key)
	cache.footprints[key] = fp
	return fp
}

type search struct {
	m             *Map
	agent         agent
	cache         *searchCache
	nodeFootprint Footprint
	gen           uint32
	start         geom.Point
	target        geom.Point
	startNode     int
	startWorld    geom.Point
	queues        [2]nodeQueue
}

func (s *search) valid(node int) bool {
	sc := &s.m.scratch
	if sc.validTag[node] != s.gen {
		sc.validTag[node] = s.gen
		sc.valid[node] = s.m.nodeFits(node, s.nodeFootprint, nil)
	}
	return sc.valid[node]
}

// los is the memoised straight-line test between two nodes.
func (s *search) los(a, b int) bool {
	key := newLOSKey(a, b)
	if visible, ok := s.cache.los[key]; ok {
		return visible
	}
	visible := s.m.sweepClear(s.m.nodeWorld(s.agent, a), s.m.nodeWorld(s.agent, b), s.agent.radius, s.agent.required)
	s.cache.los[key] = visible
	return visible
}

func (s *search) claimed(side, node int) bool {
	return s.m.scratch.tag[side][node] == s.gen
}

func (s *search) closed(side, node int) bool {
	return s.m.scratch.closed[side][node] == s.gen
}

func (s *search) heuristic(side, node int) float64 {
	p := s.m.nodeWorld(s.agent, node)
	if side == sideStart {
		return geom.Distance(p, s.target)
	}
	return geom.Distance(p, s.startWorld)
}

func (s *search) open(side, node int, cost float64, parent int) {
	sc := &s.m.scratch
	sc.tag[side][node] = s.gen
	sc.cost[side][node] = cost
	sc.parent[side][node] = int32(parent)
	heap.Push(&s.queues[side], queueItem{node: node, key: cost + s.heuristic(side, node)})
}

// pop returns the next unexpanded node of a frontier and marks it closed.
func (s *search) pop(side int) (int, bool) {
	for s.queues[side].Len() > 0 {
		item := heap.Pop(&s.queues[side]).(queueItem)
		if s.closed(side, item.node) {
			continue
		}
		s.m.scratch.closed[side][item.node] = s.gen
		return item.node, true
	}
	return 0, false
}

// seedEnd claims the end frontier's starting nodes: the target's own node
// when the disc fits there, otherwise the closest fitting nodes.
func (s *search) seedEnd() bool {
	targetNode := s.m.nearestNode(s.agent, s.target)
	if s.valid(targetNode) {
		s.open(sideEnd, targetNode, geom.Distance(s.m.nodeWorld(s.agent, targetNode), s.target), -1)
		return true
	}
	seeds := 0
	limit := math.Inf(1)
	step := 1 / float64(s.m.resolution)
	s.m.expandNearest(s.agent, s.target, s.valid, func(node int, dist float64) bool {
		if seeds == 0 {
			limit = dist + step
		}
		if dist > limit {
			return false
		}
		s.open(sideEnd, node, dist, -1)
		seeds++
		return seeds < maxEndSeeds
	})
	return seeds > 0
}

// run executes the bidirectional search and returns the raw node chain.
// stalled reports that the search gave up and the chain is partial.
func (s *search) run(standoff float64) ([]int, bool) {
	m := s.m
	s.startNode = m.nearestNode(s.agent, s.start)
	s.startWorld = m.nodeWorld(s.agent, s.startNode)
	if !s.seedEnd() {
		return nil, false
	}
	if s.claimed(sideEnd, s.startNode) {
		return s.chain(s.startNode, s.startNode), false
	}
	s.open(sideStart, s.startNode, 0, -1)

	bestStart := s.startNode
	bestStartDist := geom.Distance(s.startWorld, s.target)
	bestEndDist := math.Inf(1)
	idle := 0

	for {
		improved := false

		node, ok := s.pop(sideStart)
		if !ok {
			return s.chain(bestStart, -1), false
		}
		world := m.nodeWorld(s.agent, node)
		dist := geom.Distance(world, s.target)
		if dist <= standoff {
			return s.chain(node, -1), false
		}
		if dist < bestStartDist {
			bestStart, bestStartDist = node, dist
			improved = true
		}
		if a, b, met := s.expand(sideStart, node); met {
			return s.chain(a, b), false
		}

		if node, ok := s.pop(sideEnd); ok {
			if d := geom.Distance(m.nodeWorld(s.agent, node), s.startWorld); d < bestEndDist {
				bestEndDist = d
				improved = true
			}
			if a, b, met := s.expand(sideEnd, node); met {
				return s.chain(a, b), false
			}
		}

		if improved {
			idle = 0
		} else {
			idle++
			if idle >= stagnationLimit {
				return s.chain(bestStart, -1), true
			}
		}
	}
}

// expand relaxes the four neighbours of node on one frontier. When a
// neighbour already belongs to the other frontier the searches have met and
// the joining pair is returned as (start side, end side).
func (s *search) expand(side, node int) (int, int, bool) {
	m := s.m
	other := 1 - side
	sc := &m.scratch
	x, y := m.nodeXY(node)
	parent := int(sc.parent[side][node])
	for _, offset := range neighborOffsets {
		nx, ny := x+offset[0], y+offset[1]
		if !m.inBounds(nx, ny) {
			continue
		}
		next := m.index(nx, ny)
		if s.closed(side, next) || !s.valid(next) {
			continue
		}
		if s.claimed(other, next) && s.los(node, next) {
			if side == sideStart {
				return node, next, true
			}
			return next, node, true
		}

		var cost float64
		var via int
		switch {
		case parent >= 0 && s.los(parent, next):
			via = parent
			cost = sc.cost[side][parent] + geom.Distance(m.nodeWorld(s.agent, parent), m.nodeWorld(s.agent, next))
		case s.los(node, next):
			via = node
			cost = sc.cost[side][node] + geom.Distance(m.nodeWorld(s.agent, node), m.nodeWorld(s.agent, next))
		default:
			continue
		}
		if s.claimed(side, next) && cost >= sc.cost[side][next] {
			continue
		}
		s.open(side, next, cost, via)
	}
	return 0, 0, false
}

// chain joins the start frontier's parent chain ending at from with the end
// frontier's chain starting at to. to is -1 for a start-only chain.
func (s *search) chain(from, to int) []int {
	sc := &s.m.scratch
	var nodes []int
	for n := from; n >= 0; n = int(sc.parent[sideStart][n]) {
		nodes = append(nodes, n)
		if n == s.startNode {
			break
		}
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	if to < 0 {
		return nodes
	}
	n := to
	if n == from {
		n = int(sc.parent[sideEnd][n])
	}
	for ; n >= 0; n = int(sc.parent[sideEnd][n]) {
		nodes = append(nodes, n)
	}
	return nodes
}

// smooth greedily replaces runs of waypoints with the longest straight
// segment that stays clear.
func (s *search) smooth(nodes []int) []geom.Point {
	path := []geom.Point{s.m.nodeWorld(s.agent, nodes[0])}
	for i := 0; i < len(nodes)-1; {
		next := i + 1
		for j := len(nodes) - 1; j > i+1; j-- {
			if s.los(nodes[i], nodes[j]) {
				next = j
				break
			}
		}
		path = append(path, s.m.nodeWorld(s.agent, nodes[next]))
		i = next
	}
	return path
}

// anchorStart replaces or precedes the first node with the entity's exact
// position when the disc can move straight from there.
func (s *search) anchorStart(path []geom.Point) []geom.Point {
	if path[0] == s.start {
		return path
	}
	if len(path) > 1 && s.m.sweepClear(s.start, path[1], s.agent.radius, s.agent.required) {
		path[0] = s.start
		return path
	}
	if s.m.sweepClear(s.start, path[0], s.agent.radius, s.agent.required) {
		return append([]geom.Point{s.start}, path...)
	}
	return path
}

// trimStandoff pulls the end of the path back so it stops no closer to the
// target than standoff, within standoffTolerance.
func trimStandoff(path []geom.Point, target geom.Point, standoff float64) []geom.Point {
	floor := standoff * (1 - standoffTolerance)
	if geom.Distance(path[len(path)-1], target) >= floor {
		return path
	}
	for len(path) > 1 && geom.Distance(path[len(path)-2], target) < floor {
		path = path[:len(path)-1]
	}
	if len(path) < 2 {
		return path
	}
	from := path[len(path)-2]
	to := path[len(path)-1]
	lo, hi := 0.0, 1.0
	best, found := from, false
	for i := 0; i < standoffSteps; i++ {
		mid := (lo + hi) / 2
		p := geom.Lerp(from, to, mid)
		d := geom.Distance(p, target)
		if d < floor {
			hi = mid
			continue
		}
		lo = mid
		best, found = p, true
		if d <= standoff {
			break
		}
	}
	if !found {
		return path[:len(path)-1]
	}
	path[len(path)-1] = best
	return path
}
