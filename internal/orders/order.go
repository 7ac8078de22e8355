// Package orders advances per-unit orders (walk, attack, attack-move, build,
// cast, hold) in small time increments, calling into the pathing map for
// routes and retrying when a route is blocked.
package orders

import "hunt-arena/server/internal/geom"

// Order is the active instruction of a unit. The set of implementations is
// closed; the engine dispatches on the concrete type.
type Order interface {
	// Name identifies the order kind in events and snapshots.
	Name() string
	order()
}

// Route is the cached path state shared by the orders that move.
type Route struct {
	// Path holds the waypoints still ahead of the unit, nearest first.
	Path []geom.Point
	// LastRepath is the simulation time of the last path computation.
	LastRepath float64

	planned   bool
	failed    bool
	exhausted bool
	goal      geom.Point
}

func (r *Route) reset() {
	*r = Route{}
}

// settled reports whether the last plan found nothing closer than where the
// unit stands.
func (r *Route) settled() bool {
	return r.planned && r.failed && len(r.Path) == 0
}

// next returns the waypoint the unit is heading for.
func (r *Route) next() (geom.Point, bool) {
	if len(r.Path) == 0 {
		return geom.Point{}, false
	}
	return r.Path[0], true
}

// Walk moves to a point, or follows a unit when TargetID is set. While
// following, Target holds the last known position of the unit.
type Walk struct {
	Target   geom.Point
	TargetID string
	Route
}

// Attack pursues and strikes a single unit.
type Attack struct {
	TargetID string
	Route
	Swing *Swing
	// LastKnown is where the target was last seen; nil until it has been.
	LastKnown *geom.Point
}

// AttackMove walks to Target, engaging enemies met along the way.
type AttackMove struct {
	Target   geom.Point
	TargetID string
	Route
	Swing *Swing

	skip string
}

// Build walks into range of a site and commits a structure there.
type Build struct {
	UnitType string
	X, Y     float64
	Route
}

// Cast channels for Remaining seconds, then reports completion.
type Cast struct {
	OrderID   string
	Remaining float64
	Target    *geom.Point
	TargetID  string
}

// Hold keeps the unit in place.
type Hold struct{}

// Swing is an attack in progress. Damage lands once Remaining drops to the
// attack's post-damage-point time.
type Swing struct {
	Remaining float64
	Source    geom.Point
	Target    geom.Point

	struck bool
	// slack widens the reach of a swing started from a grid-limited spot.
	slack float64
}

func (*Walk) Name() string       { return "walk" }
func (*Attack) Name() string     { return "attack" }
func (*AttackMove) Name() string { return "attack_move" }
func (*Build) Name() string      { return "build" }
func (*Cast) Name() string       { return "cast" }
func (*Hold) Name() string       { return "hold" }

func (*Walk) order()       {}
func (*Attack) order()     {}
func (*AttackMove) order() {}
func (*Build) order()      {}
func (*Cast) order()       {}
func (*Hold) order()       {}

// routeOf returns the cached route of a moving order.
func routeOf(o Order) *Route {
	switch o := o.(type) {
	case *Walk:
		return &o.Route
	case *Attack:
		return &o.Route
	case *AttackMove:
		return &o.Route
	case *Build:
		return &o.Route
	default:
		return nil
	}
}
