package orders

import (
	"context"
	"hash/fnv"

	"hunt-arena/server/internal/geom"
	"hunt-arena/server/internal/pathing"
	loggingorders "hunt-arena/server/logging/orders"
)

type followOutcome int

const (
	followMoving followOutcome = iota
	followArrived
	followStuck
	followBlocked
)

func (e *Engine) advanceWalk(u *Unit, w *Walk, delta float64) float64 {
	var target *Unit
	standoff := 0.0
	if w.TargetID != "" {
		t, ok := e.resolve(u, w.TargetID)
		if !ok {
			// Lost sight: finish the trip to where it was last seen.
			w.TargetID = ""
			w.Route.reset()
			return delta
		}
		target = t
		w.Target = t.Pos
		standoff = u.Stats.FollowRange + u.Radius() + t.Radius()
	}

	rest, outcome := e.follow(u, &w.Route, w.Target, target, standoff, delta)
	switch outcome {
	case followArrived:
		if target != nil && len(u.Queue) == 0 {
			// Keep following from here.
			return 0
		}
		e.complete(u)
	case followStuck:
		e.cancel(u, reasonUnreachable)
	case followBlocked:
		e.cancel(u, reasonBlocked)
	}
	return rest
}

// follow moves u along r towards goal, refreshing the route when needed.
// A non-nil target is the unit being approached; standoff is the centre
// distance at which the goal counts as reached.
func (e *Engine) follow(u *Unit, r *Route, goal geom.Point, target *Unit, standoff, delta float64) (float64, followOutcome) {
	dist := geom.Distance(u.Pos, goal)
	if dist <= max(standoff, arriveEpsilon) {
		r.reset()
		return delta, followArrived
	}
	if target != nil && r.settled() && dist <= standoff+e.gridSlack() {
		return delta, followArrived
	}
	if target == nil && r.exhausted {
		// The last plan was walked to its end; that is as close as the
		// map allows.
		if standoff > 0 {
			return delta, followStuck
		}
		return delta, followArrived
	}

	if e.repathDue(u, r, goal, target) {
		if !e.replan(u, r, goal, target, standoff) {
			if target == nil {
				return delta, followStuck
			}
			if dist <= standoff+e.gridSlack() {
				// No spot the unit fits in is any closer.
				return delta, followArrived
			}
			return 0, followMoving
		}
	}
	if len(r.Path) == 0 {
		return 0, followMoving
	}

	rest, blocked := e.walkAlong(u, r, delta)
	if blocked {
		if e.retried {
			return 0, followMoving
		}
		e.retried = true
		if !e.handleBlockedPath(u, r, goal, target, standoff) {
			return rest, followBlocked
		}
		return rest, followMoving
	}
	if len(r.Path) == 0 {
		r.exhausted = true
	}
	return rest, followMoving
}

func (e *Engine) repathDue(u *Unit, r *Route, goal geom.Point, target *Unit) bool {
	if !r.planned {
		return true
	}
	interval := e.now-r.LastRepath >= RepathInterval+repathJitter(u.ID)
	if target == nil {
		return interval
	}
	if len(r.Path) == 0 {
		// A followed unit: replan as soon as the cached route runs out,
		// unless the last attempt found nothing.
		return !r.failed || interval || geom.Distance(r.goal, goal) > e.gridSlack()
	}
	return interval && geom.Distance(r.goal, goal) > RetargetDistance
}

// gridSlack is how far beyond a standoff the closest position a unit's
// footprint fits in may lie.
func (e *Engine) gridSlack() float64 {
	return GridSlackTiles / float64(e.m.Resolution())
}

// replan installs a fresh route. It reports false when the planner found no
// productive move.
func (e *Engine) replan(u *Unit, r *Route, goal geom.Point, target *Unit, standoff float64) bool {
	path := e.plan(u, goal, standoff, target, false)
	r.planned = true
	r.LastRepath = e.now
	r.goal = goal
	r.exhausted = false
	r.Path = path
	r.failed = len(path) == 0
	return !r.failed
}

// plan asks the map for a route and drops the leading waypoint when it is
// the unit's own position.
func (e *Engine) plan(u *Unit, goal geom.Point, standoff float64, target *Unit, keepMovers bool) []geom.Point {
	e.count(metricRepaths)
	opts := pathing.PathOptions{DistanceFromTarget: standoff, KeepMovingEntities: keepMovers}
	if target != nil {
		opts.Target = target
	}
	path := e.m.Path(u, goal, opts)
	if len(path) > 0 && geom.Distance(path[0], u.Pos) <= arriveEpsilon {
		path = path[1:]
	}
	if len(path) == 0 {
		return nil
	}
	return path
}

// walkAlong moves u along the route for at most delta seconds. It reports
// true when the stretch ahead is blocked; the unit then stays put.
func (e *Engine) walkAlong(u *Unit, r *Route, delta float64) (float64, bool) {
	speed := u.Stats.Speed
	if speed <= 0 {
		return 0, false
	}
	reach := speed * delta

	window := make([]geom.Point, 0, len(r.Path)+1)
	window = append(window, u.Pos)
	window = append(window, r.Path...)
	if !e.m.Recheck(window, u, reach, 0) {
		return delta, true
	}

	pos := u.Pos
	travelled := 0.0
	reached := 0
	for reached < len(r.Path) && travelled < reach {
		next := r.Path[reached]
		d := geom.Distance(pos, next)
		left := reach - travelled
		if d > left {
			pos = geom.Lerp(pos, next, left/d)
			travelled = reach
			break
		}
		pos = next
		travelled += d
		reached++
	}
	if pos != u.Pos && !e.m.PathableAt(u, pos) {
		// Abort the tween rather than commit an overlapping position.
		return delta, true
	}

	r.Path = r.Path[reached:]
	if len(r.Path) == 0 {
		r.Path = nil
	}
	if pos != u.Pos {
		e.world.Move(u, pos)
	}
	return max(delta-travelled/speed, 0), false
}

// handleBlockedPath replaces an obstructed route. The first retry uses the
// usual mover exclusion; if that gives nothing new the movers are kept as
// obstacles. It reports false when neither attempt helps.
func (e *Engine) handleBlockedPath(u *Unit, r *Route, goal geom.Point, target *Unit, standoff float64) bool {
	stuck := r.Path
	fresh := e.plan(u, goal, standoff, target, false)
	e.reportBlocked(u, "repath", len(fresh))
	if len(fresh) == 0 || geom.PathsEqual(fresh, stuck) {
		fresh = e.plan(u, goal, standoff, target, true)
		e.reportBlocked(u, "keep_movers", len(fresh))
		if len(fresh) == 0 || geom.PathsEqual(fresh, stuck) {
			r.Path = nil
			return false
		}
	}
	r.Path = fresh
	r.planned = true
	r.failed = false
	r.exhausted = false
	r.LastRepath = e.now
	r.goal = goal
	return true
}

func (e *Engine) reportBlocked(u *Unit, step string, length int) {
	loggingorders.BlockedPath(context.Background(), e.publisher, e.tick, unitRef(u),
		loggingorders.BlockedPathPayload{Order: u.Order.Name(), Step: step, PathLength: length}, nil)
}

// repathJitter spreads route refreshes of different units over
// [0, RepathJitter) seconds.
func repathJitter(id string) float64 {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(id))
	return float64(hasher.Sum32()%1000) / 1000 * RepathJitter
}
