package pathing

import "hunt-arena/server/internal/geom"

// Neighbor slots in Tile.Neighbors.
const (
	NeighborRight = iota
	NeighborDown
	NeighborLeft
	NeighborUp
)

var neighborOffsets = [4][2]int{
	NeighborRight: {1, 0},
	NeighborDown:  {0, 1},
	NeighborLeft:  {-1, 0},
	NeighborUp:    {0, -1},
}

// Tile is one cell of the pathing grid. Pathing always equals Original OR'd
// with every occupant contribution.
type Tile struct {
	X         int
	Y         int
	World     geom.Point
	Original  Flags
	Pathing   Flags
	Neighbors [4]*Tile

	contributions map[string]Flags
}

// Pathable reports whether no bit of flags is set on the tile.
func (t *Tile) Pathable(flags Flags) bool {
	return t.Pathing&flags == 0
}

// Contribution returns the flags an occupant currently imposes on the tile.
func (t *Tile) Contribution(id string) Flags {
	return t.contributions[id]
}

// Occupants reports how many entities contribute to the tile.
func (t *Tile) Occupants() int {
	return len(t.contributions)
}

func (t *Tile) setContribution(id string, flags Flags) {
	if flags == 0 {
		t.clearContribution(id)
		return
	}
	if t.contributions == nil {
		t.contributions = make(map[string]Flags, 1)
	}
	if current, ok := t.contributions[id]; ok && current == flags {
		return
	}
	t.contributions[id] = flags
	t.recompute()
}

func (t *Tile) clearContribution(id string) {
	if _, ok := t.contributions[id]; !ok {
		return
	}
	delete(t.contributions, id)
	t.recompute()
}

func (t *Tile) recompute() {
	combined := t.Original
	for _, flags := range t.contributions {
		combined |= flags
	}
	t.Pathing = combined
}
