package orders

import (
	"hunt-arena/server/internal/geom"
	"hunt-arena/server/internal/pathing"
)

// Stats are the per-unit numbers the engine reads. Times are in seconds,
// distances in world units, TurnSpeed in radians per second.
type Stats struct {
	Radius float64 `yaml:"radius" toml:"radius"`
	Speed  float64 `yaml:"speed" toml:"speed"`
	// TurnSpeed of zero turns instantly.
	TurnSpeed float64 `yaml:"turnSpeed" toml:"turn_speed"`

	AttackRange    float64 `yaml:"attackRange" toml:"attack_range"`
	AttackDamage   float64 `yaml:"attackDamage" toml:"attack_damage"`
	Backswing      float64 `yaml:"backswing" toml:"backswing"`
	DamagePoint    float64 `yaml:"damagePoint" toml:"damage_point"`
	AttackCooldown float64 `yaml:"attackCooldown" toml:"attack_cooldown"`
	RangeTolerance float64 `yaml:"rangeTolerance" toml:"range_tolerance"`
	// AcquireRange bounds the target search of attack-move.
	AcquireRange float64 `yaml:"acquireRange" toml:"acquire_range"`

	FollowRange float64 `yaml:"followRange" toml:"follow_range"`
	BuildRange  float64 `yaml:"buildRange" toml:"build_range"`
}

func (s Stats) swingDuration() float64 {
	return max(s.Backswing, s.DamagePoint)
}

// Unit is a simulated entity: a circular agent, or a structure when
// Footprint is set. It satisfies the pathing entity contracts directly.
type Unit struct {
	ID     string
	Team   string
	Type   string
	Pos    geom.Point
	Facing float64
	Stats  Stats
	Health float64

	// Flags are imposed on covered tiles; Requires are the flags that block
	// the unit, defaulting to Flags.
	Flags     pathing.Flags
	Requires  pathing.Flags
	Footprint *pathing.Footprint

	Dead   bool
	Hidden bool

	Order    Order
	Queue    []Order
	Cooldown float64
}

func (u *Unit) PathingID() string              { return u.ID }
func (u *Unit) Position() geom.Point           { return u.Pos }
func (u *Unit) Radius() float64                { return u.Stats.Radius }
func (u *Unit) Pathing() pathing.Flags         { return u.Flags }
func (u *Unit) RequiresPathing() pathing.Flags { return u.Requires }
func (u *Unit) Tilemap() *pathing.Footprint    { return u.Footprint }
func (u *Unit) RequiresTilemap() *pathing.Footprint {
	return nil
}

// Heading reports the next waypoint of the unit's current route.
func (u *Unit) Heading() (geom.Point, bool) {
	if u.Order == nil {
		return geom.Point{}, false
	}
	if r := routeOf(u.Order); r != nil {
		return r.next()
	}
	return geom.Point{}, false
}

// IsStructure reports whether the unit occupies a fixed footprint.
func (u *Unit) IsStructure() bool {
	return u.Footprint != nil
}

// Issue gives the unit a new order. With queue set and an order already
// active, the order waits behind the existing ones instead.
func (u *Unit) Issue(o Order, queue bool) {
	if o == nil {
		return
	}
	if queue && u.Order != nil {
		u.Queue = append(u.Queue, o)
		return
	}
	u.Order = o
	u.Queue = nil
}

// Stop drops the active order and everything queued behind it.
func (u *Unit) Stop() {
	u.Order = nil
	u.Queue = nil
}

func (u *Unit) promote() bool {
	if u.Order != nil {
		return true
	}
	if len(u.Queue) == 0 {
		return false
	}
	u.Order = u.Queue[0]
	u.Queue[0] = nil
	u.Queue = u.Queue[1:]
	if len(u.Queue) == 0 {
		u.Queue = nil
	}
	return true
}

var (
	_ pathing.Mover     = (*Unit)(nil)
	_ pathing.Structure = (*Unit)(nil)
)
