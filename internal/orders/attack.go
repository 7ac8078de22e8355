package orders

import (
	"math"

	"hunt-arena/server/internal/geom"
)

// AttackMoveGroups are the classification groups an attack-move engages.
var AttackMoveGroups = []string{GroupEnemy, GroupAlive}

func (e *Engine) advanceAttack(u *Unit, a *Attack, delta float64) float64 {
	target, ok := e.resolve(u, a.TargetID)
	if !ok {
		a.Swing = nil
		if a.LastKnown != nil && len(u.Queue) == 0 {
			u.Order = &Walk{Target: *a.LastKnown}
			return delta
		}
		e.cancel(u, reasonTargetLost)
		return delta
	}
	seen := target.Pos
	a.LastKnown = &seen

	rest, outcome := e.strike(u, &a.Route, &a.Swing, target, delta)
	if outcome == followStuck || outcome == followBlocked {
		e.cancel(u, reasonUnreachable)
	}
	return rest
}

func (e *Engine) advanceAttackMove(u *Unit, am *AttackMove, delta float64) float64 {
	if am.Swing == nil {
		e.acquire(u, am)
	}
	if am.TargetID != "" {
		target, ok := e.resolve(u, am.TargetID)
		if !ok {
			am.disengage()
			return delta
		}
		rest, outcome := e.strike(u, &am.Route, &am.Swing, target, delta)
		if outcome == followStuck || outcome == followBlocked {
			am.skip = am.TargetID
			am.disengage()
		}
		return rest
	}

	rest, outcome := e.follow(u, &am.Route, am.Target, nil, 0, delta)
	switch outcome {
	case followArrived:
		e.complete(u)
	case followStuck:
		e.cancel(u, reasonUnreachable)
	case followBlocked:
		e.cancel(u, reasonBlocked)
	}
	return rest
}

func (am *AttackMove) disengage() {
	am.TargetID = ""
	am.Swing = nil
	am.Route.reset()
}

// acquire picks the nearest enemy within acquisition range, switching away
// from the current target only for a clearly closer one.
func (e *Engine) acquire(u *Unit, am *AttackMove) {
	if u.Stats.AcquireRange <= 0 || e.world == nil {
		return
	}
	var best *Unit
	bestDist := math.Inf(1)
	for _, candidate := range e.world.UnitsWithin(u.Pos, u.Stats.AcquireRange) {
		if candidate == nil || candidate == u || candidate.ID == am.skip {
			continue
		}
		if _, ok := e.resolve(u, candidate.ID); !ok {
			continue
		}
		if !e.classifier.TestClassification(u, candidate, AttackMoveGroups) {
			continue
		}
		d := geom.Distance(u.Pos, candidate.Pos)
		if d < bestDist || (d == bestDist && best != nil && candidate.ID < best.ID) {
			best, bestDist = candidate, d
		}
	}
	if best == nil || best.ID == am.TargetID {
		return
	}
	if am.TargetID != "" {
		if current, ok := e.resolve(u, am.TargetID); ok {
			if geom.Distance(u.Pos, current.Pos)-bestDist <= RetargetMargin {
				return
			}
		}
	}
	am.TargetID = best.ID
	am.Swing = nil
	am.Route.reset()
}

// strike runs one step of the attack cycle against target: approach, wait
// for the cooldown, swing, land the damage.
func (e *Engine) strike(u *Unit, r *Route, swing **Swing, target *Unit, delta float64) (float64, followOutcome) {
	stats := u.Stats
	reach := stats.AttackRange + u.Radius() + target.Radius()
	dist := geom.Distance(u.Pos, target.Pos)

	if s := *swing; s != nil {
		if !s.struck {
			if dist > reach+s.slack+stats.RangeTolerance {
				*swing = nil
				return delta, followMoving
			}
			// Stop at the damage point so the cooldown starts on an
			// iteration boundary.
			until := s.Remaining - (stats.swingDuration() - stats.DamagePoint)
			if until > timeEpsilon {
				step := min(until, delta)
				s.Remaining -= step
				return delta - step, followMoving
			}
			s.struck = true
			e.hooks.Damage(u, target, stats.AttackDamage)
			u.Cooldown = stats.AttackCooldown
		}
		if s.Remaining > delta {
			s.Remaining -= delta
			return 0, followMoving
		}
		*swing = nil
		return delta - max(s.Remaining, 0), followMoving
	}

	slack := 0.0
	if dist > reach && r.settled() {
		// The map has no closer spot for this unit; strike from here.
		slack = e.gridSlack()
	}
	if dist <= reach+slack {
		if slack == 0 {
			r.reset()
		}
		if u.Cooldown > timeEpsilon {
			return delta - min(u.Cooldown, delta), followMoving
		}
		*swing = &Swing{Remaining: stats.swingDuration(), Source: u.Pos, Target: target.Pos, slack: slack}
		return delta, followMoving
	}

	// Close in to the middle of the attack range so a target that keeps
	// moving is still in reach when the route runs out.
	approach := reach - stats.AttackRange/2
	rest, outcome := e.follow(u, r, target.Pos, target, approach, delta)
	if outcome == followArrived {
		outcome = followMoving
	}
	return rest, outcome
}
