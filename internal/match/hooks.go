package match

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"hunt-arena/server/internal/geom"
	"hunt-arena/server/internal/orders"
	"hunt-arena/server/internal/terrain"
)

const (
	metricDamageDealt   = "match.damage_dealt"
	metricUnitsKilled   = "match.units_killed"
	metricStructures    = "match.structures_built"
	metricCastsComplete = "match.casts_completed"
)

// hooks applies order effects to the match.
type hooks struct {
	match *Match
}

func (h *hooks) Damage(source, target *orders.Unit, amount float64) {
	if target == nil || target.Dead || amount <= 0 {
		return
	}
	mt := h.match
	target.Health -= amount
	mt.count(metricDamageDealt, uint64(amount+0.5))
	if target.Health > 0 {
		return
	}
	target.Health = 0
	target.Dead = true
	target.Stop()
	mt.count(metricUnitsKilled, 1)
	mt.RemoveUnit(target.ID, "killed")
}

// Build places a structure of unitType centred at at. The placement is
// rejected when the type is not a structure or the footprint does not fit.
func (h *hooks) Build(builder *orders.Unit, unitType string, at geom.Point) bool {
	mt := h.match
	id := fmt.Sprintf("%s-%s", unitType, uuid.NewString()[:8])
	u, err := mt.arena.NewUnit(id, builder.Team, unitType, at)
	if err != nil || !u.IsStructure() {
		return false
	}
	if err := mt.AddUnit(u); err != nil {
		if !errors.Is(err, ErrNoRoom) {
			mt.logger.Printf("[match] build %s for %s failed: %v", unitType, builder.ID, err)
		}
		return false
	}
	mt.count(metricStructures, 1)
	return true
}

func (h *hooks) CastComplete(caster *orders.Unit, cast *orders.Cast) {
	h.match.count(metricCastsComplete, 1)
}

func (mt *Match) count(key string, delta uint64) {
	if mt.metrics != nil {
		mt.metrics.Add(key, delta)
	}
}

// buildable reports whether unitType names a structure of the arena.
func buildable(arena *terrain.Arena, unitType string) bool {
	ut, ok := arena.UnitTypes[unitType]
	return ok && ut.Structure != nil
}
