package pathing

import (
	"fmt"

	"hunt-arena/server/internal/geom"
)

// Entity is anything that occupies space on the pathing map.
type Entity interface {
	PathingID() string
	Position() geom.Point
	// Radius is the collision radius; zero for structures that supply a
	// fixed footprint instead.
	Radius() float64
	// Pathing is the set of flags the entity imposes on cells it covers.
	Pathing() Flags
	// RequiresPathing is the set of flags that block the entity. Zero means
	// the entity is blocked by its own Pathing flags.
	RequiresPathing() Flags
}

// Structure is implemented by entities whose shape is a fixed footprint
// rather than a circle.
type Structure interface {
	Entity
	Tilemap() *Footprint
	// RequiresTilemap may return nil to reuse Tilemap for collision tests.
	RequiresTilemap() *Footprint
}

// Mover is implemented by entities that can report where they are heading.
// The heading is the next waypoint of the entity's current path.
type Mover interface {
	Entity
	Heading() (geom.Point, bool)
}

// MoverQuery finds entities near a point. The match backs it with its
// spatial index.
type MoverQuery interface {
	Nearby(center geom.Point, radius float64) []Entity
}

func requiredFlags(e Entity) Flags {
	if required := e.RequiresPathing(); required != 0 {
		return required
	}
	if own := e.Pathing(); own != 0 {
		return own
	}
	panic(fmt.Sprintf("pathing: entity %q has no pathing flags", e.PathingID()))
}

func mustRadius(e Entity) float64 {
	radius := e.Radius()
	if radius <= 0 {
		panic(fmt.Sprintf("pathing: entity %q has no radius", e.PathingID()))
	}
	return radius
}

func structureOf(e Entity) (Structure, bool) {
	s, ok := e.(Structure)
	if !ok || s.Tilemap() == nil {
		return nil, false
	}
	return s, true
}
