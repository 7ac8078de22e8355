package orders

import (
	"context"
	"fmt"
	"math"

	"hunt-arena/server/internal/geom"
	"hunt-arena/server/internal/pathing"
	"hunt-arena/server/internal/telemetry"
	"hunt-arena/server/logging"
	loggingorders "hunt-arena/server/logging/orders"
)

const (
	// LoopCap bounds the order iterations a unit may run in one tick.
	LoopCap = 10
	// FacingCone is the half-angle within which a unit counts as facing its
	// look target. Turning outside it costs budget.
	FacingCone = math.Pi / 3
	// RepathInterval is the minimum time between route refreshes towards
	// a fixed point.
	RepathInterval = 0.5
	// RepathJitter is the upper bound of the per-unit offset added to
	// RepathInterval.
	RepathJitter = 0.5
	// RetargetDistance is how far a followed unit must drift from the end
	// of the cached route before the route is refreshed.
	RetargetDistance = 1.0
	// RetargetMargin is how much closer a new attack-move candidate must be
	// than the current target to replace it.
	RetargetMargin = 0.5
	// GridSlackTiles is how many tiles past a standoff a unit may stop when
	// its footprint fits no closer.
	GridSlackTiles = 2

	timeEpsilon   = 1e-9
	arriveEpsilon = 1e-6

	metricRepaths = "orders.repaths"
)

const (
	reasonUnreachable = "unreachable"
	reasonBlocked     = "blocked"
	reasonTargetLost  = "target_lost"
	reasonPlacement   = "placement"
)

// World is the unit store the engine reads and moves units through.
type World interface {
	Lookup(id string) (*Unit, bool)
	// Move commits a new position, keeping the pathing map and the spatial
	// index in step.
	Move(u *Unit, p geom.Point)
	UnitsWithin(center geom.Point, radius float64) []*Unit
}

// Classifier decides whether a candidate belongs to all of the groups from
// the point of view of source.
type Classifier interface {
	TestClassification(source, candidate *Unit, groups []string) bool
}

// Hooks carry out the effects of orders.
type Hooks interface {
	Damage(source, target *Unit, amount float64)
	// Build places a structure; false rejects the placement.
	Build(builder *Unit, unitType string, at geom.Point) bool
	CastComplete(caster *Unit, cast *Cast)
}

// NopHooks ignores every effect and accepts every placement.
type NopHooks struct{}

func (NopHooks) Damage(*Unit, *Unit, float64)         {}
func (NopHooks) Build(*Unit, string, geom.Point) bool { return true }
func (NopHooks) CastComplete(*Unit, *Cast)            {}

// Deps are the collaborators of an Engine.
type Deps struct {
	Map        *pathing.Map
	World      World
	Classifier Classifier
	Hooks      Hooks
	Publisher  logging.Publisher
	Metrics    telemetry.Metrics
}

// Engine advances unit orders. It is not safe for concurrent use; the match
// loop is its only caller.
type Engine struct {
	m          *pathing.Map
	world      World
	classifier Classifier
	hooks      Hooks
	publisher  logging.Publisher
	metrics    telemetry.Metrics

	tick uint64
	now  float64

	// per-Advance state
	turnBudget float64
	retried    bool
}

// NewEngine wires an engine. Map and World are required.
func NewEngine(deps Deps) *Engine {
	e := &Engine{
		m:          deps.Map,
		world:      deps.World,
		classifier: deps.Classifier,
		hooks:      deps.Hooks,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
	}
	if e.classifier == nil {
		e.classifier = TeamClassifier{}
	}
	if e.hooks == nil {
		e.hooks = NopHooks{}
	}
	if e.publisher == nil {
		e.publisher = logging.NopPublisher()
	}
	return e
}

// BeginTick sets the tick number and simulation time used by the following
// Advance calls.
func (e *Engine) BeginTick(tick uint64, now float64) {
	e.tick = tick
	e.now = now
}

// Now reports the simulation time of the current tick.
func (e *Engine) Now() float64 {
	return e.now
}

// Advance spends up to delta seconds on the unit's orders and returns the
// unspent budget.
func (e *Engine) Advance(u *Unit, delta float64) float64 {
	if u == nil || u.Dead || delta <= 0 {
		return delta
	}
	e.turnBudget = delta
	e.retried = false

	remaining := delta
	credited := 0.0
	for iteration := 0; ; iteration++ {
		// Time passes for the cooldown as the budget is spent, so an attack
		// can become ready part way through a tick.
		e.decayCooldown(u, (delta-remaining)-credited)
		credited = delta - remaining

		if !u.promote() || remaining <= timeEpsilon {
			break
		}
		if iteration >= LoopCap {
			loggingorders.LoopCapExceeded(context.Background(), e.publisher, e.tick, unitRef(u),
				loggingorders.LoopCapPayload{Order: u.Order.Name(), Iterations: iteration, Remaining: remaining}, nil)
			break
		}

		remaining = e.face(u, remaining)
		if remaining <= timeEpsilon {
			break
		}
		remaining = e.dispatch(u, remaining)
	}
	e.decayCooldown(u, delta-credited)
	return max(remaining, 0)
}

func (e *Engine) dispatch(u *Unit, delta float64) float64 {
	switch o := u.Order.(type) {
	case *Walk:
		return e.advanceWalk(u, o, delta)
	case *Attack:
		return e.advanceAttack(u, o, delta)
	case *AttackMove:
		return e.advanceAttackMove(u, o, delta)
	case *Build:
		return e.advanceBuild(u, o, delta)
	case *Cast:
		return e.advanceCast(u, o, delta)
	case *Hold:
		return 0
	default:
		panic(fmt.Sprintf("orders: unhandled order type %T", o))
	}
}

func (e *Engine) decayCooldown(u *Unit, amount float64) {
	if u.Cooldown <= 0 || amount <= 0 {
		return
	}
	u.Cooldown -= amount
	if u.Cooldown <= timeEpsilon {
		u.Cooldown = 0
	}
}

// face turns the unit towards its look target. Turning done while the
// target is outside FacingCone is deducted from the budget.
func (e *Engine) face(u *Unit, remaining float64) float64 {
	look, ok := e.lookTarget(u)
	if !ok || geom.Distance(u.Pos, look) <= arriveEpsilon {
		return remaining
	}
	desired := geom.Angle(u.Pos, look)
	turnSpeed := u.Stats.TurnSpeed
	if turnSpeed <= 0 {
		u.Facing = desired
		return remaining
	}

	diff := geom.AngleDiff(u.Facing, desired)
	gap := math.Abs(diff)
	if gap <= timeEpsilon {
		return remaining
	}
	turn := min(gap, turnSpeed*min(remaining, e.turnBudget))
	u.Facing = geom.NormalizeAngle(u.Facing + math.Copysign(turn, diff))
	e.turnBudget -= turn / turnSpeed

	if excess := gap - FacingCone; excess > 0 {
		remaining -= min(excess, turn) / turnSpeed
	}
	return max(remaining, 0)
}

func (e *Engine) lookTarget(u *Unit) (geom.Point, bool) {
	if r := routeOf(u.Order); r != nil {
		if next, ok := r.next(); ok {
			return next, true
		}
	}
	switch o := u.Order.(type) {
	case *Walk:
		if o.TargetID != "" {
			if t, ok := e.resolve(u, o.TargetID); ok {
				return t.Pos, true
			}
		}
		return o.Target, true
	case *Attack:
		if o.Swing != nil {
			return o.Swing.Target, true
		}
		if t, ok := e.resolve(u, o.TargetID); ok {
			return t.Pos, true
		}
	case *AttackMove:
		if o.Swing != nil {
			return o.Swing.Target, true
		}
		if o.TargetID != "" {
			if t, ok := e.resolve(u, o.TargetID); ok {
				return t.Pos, true
			}
		}
		return o.Target, true
	case *Build:
		return geom.Pt(o.X, o.Y), true
	case *Cast:
		if o.Target != nil {
			return *o.Target, true
		}
		if o.TargetID != "" {
			if t, ok := e.resolve(u, o.TargetID); ok {
				return t.Pos, true
			}
		}
	}
	return geom.Point{}, false
}

// resolve looks up a unit the source can still act on.
func (e *Engine) resolve(source *Unit, id string) (*Unit, bool) {
	if id == "" || e.world == nil {
		return nil, false
	}
	target, ok := e.world.Lookup(id)
	if !ok || target == nil || target.Dead {
		return nil, false
	}
	if target.Hidden && target.Team != source.Team {
		return nil, false
	}
	return target, true
}

func (e *Engine) complete(u *Unit) {
	u.Order = nil
}

func (e *Engine) cancel(u *Unit, reason string) {
	if u.Order != nil {
		loggingorders.OrderCancelled(context.Background(), e.publisher, e.tick, unitRef(u),
			loggingorders.CancelledPayload{Order: u.Order.Name(), Reason: reason}, nil)
	}
	e.complete(u)
}

func (e *Engine) count(key string) {
	if e.metrics != nil {
		e.metrics.Add(key, 1)
	}
}

func unitRef(u *Unit) logging.EntityRef {
	kind := logging.EntityKindUnit
	if u.IsStructure() {
		kind = logging.EntityKindStructure
	}
	return logging.EntityRef{ID: u.ID, Kind: kind}
}

func (e *Engine) advanceCast(u *Unit, c *Cast, delta float64) float64 {
	step := min(delta, max(c.Remaining, 0))
	c.Remaining -= step
	if c.Remaining <= timeEpsilon {
		c.Remaining = 0
		e.hooks.CastComplete(u, c)
		e.complete(u)
	}
	return delta - step
}
