package pathing

import (
	"errors"
	"reflect"
	"testing"

	"hunt-arena/server/internal/geom"
)

func TestNewRejectsEmptyTerrain(t *testing.T) {
	if _, err := New(nil, Options{}); !errors.Is(err, ErrEmptyTerrain) {
		t.Fatalf("expected ErrEmptyTerrain, got %v", err)
	}
	if _, err := New([][]Flags{{0, 0}, {0}}, Options{}); err == nil {
		t.Fatalf("expected ragged terrain to be rejected")
	}
}

func TestNewBuildsResolvedGrid(t *testing.T) {
	m := newTestMap(t, grid("..", ".#"), 4)
	if m.Width() != 8 || m.Height() != 8 {
		t.Fatalf("unexpected grid size %dx%d", m.Width(), m.Height())
	}
	if tile := m.Tile(5, 5); tile.Pathable(Ground) {
		t.Fatalf("expected tile inside blocked world cell to block ground")
	}
	if tile := m.Tile(3, 3); !tile.Pathable(Ground) {
		t.Fatalf("expected open tile")
	}
	tile := m.Tile(0, 0)
	if tile.Neighbors[NeighborRight] != m.Tile(1, 0) || tile.Neighbors[NeighborLeft] != nil {
		t.Fatalf("unexpected neighbour wiring")
	}
}

func TestAddRemoveEntityRoundTrip(t *testing.T) {
	m := newTestMap(t, grid("....", ".#..", "...."), 2)
	before := snapshotPathing(m)

	u := unit("u", 2.3, 1.1, 0.6)
	m.AddEntity(u)
	if reflect.DeepEqual(before, snapshotPathing(m)) {
		t.Fatalf("expected unit to contribute to the grid")
	}
	m.RemoveEntity(u)
	if after := snapshotPathing(m); !reflect.DeepEqual(before, after) {
		t.Fatalf("grid changed after add/remove round trip")
	}
	if m.Registered("u") {
		t.Fatalf("expected unit to be deregistered")
	}
}

func TestUpdateEntityMovesContribution(t *testing.T) {
	m := newTestMap(t, grid("....", "....", "....", "...."), 1)
	u := unit("u", 1, 1, 0.5)
	m.AddEntity(u)
	for _, xy := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		if got := m.Tile(xy[0], xy[1]).Contribution("u"); got != Ground {
			t.Fatalf("tile %v: expected ground contribution, got %v", xy, got)
		}
	}

	u.pos = geom.Pt(2.5, 2.5)
	m.UpdateEntity(u)
	if got := m.Tile(0, 0).Pathing; got != 0 {
		t.Fatalf("expected vacated tile to clear, got %v", got)
	}
	if got := m.Tile(2, 2).Pathing; got != Ground {
		t.Fatalf("expected new tile to carry ground, got %v", got)
	}
	if got := m.Tile(2, 2).Occupants(); got != 1 {
		t.Fatalf("expected one occupant, got %d", got)
	}
}

func TestPathableIgnoresSelfAndIsIdempotent(t *testing.T) {
	m := newTestMap(t, grid("....", "....", "...."), 2)
	a := unit("a", 1, 1, 0.5)
	b := unit("b", 3, 1, 0.5)
	m.AddEntity(a)
	m.AddEntity(b)
	before := snapshotPathing(m)

	for i := 0; i < 2; i++ {
		if !m.Pathable(a) {
			t.Fatalf("call %d: expected unit to fit at its own position", i)
		}
		if m.PathableAt(a, geom.Pt(2.6, 1)) {
			t.Fatalf("call %d: expected overlap with b to be rejected", i)
		}
	}
	if after := snapshotPathing(m); !reflect.DeepEqual(before, after) {
		t.Fatalf("pathable queries mutated the grid")
	}
}

func TestStructureRegistersFixedFootprint(t *testing.T) {
	m := newTestMap(t, grid("....", "....", "...."), 1)
	s := &testStructure{
		testUnit:  testUnit{id: "wall", pos: geom.Pt(2.5, 1.5), flags: Ground | Build},
		footprint: SolidFootprint(2, 2, Ground|Build),
	}
	m.AddEntity(s)
	for _, xy := range [][2]int{{1, 0}, {2, 0}, {1, 1}, {2, 1}} {
		if m.Tile(xy[0], xy[1]).Pathable(Build) {
			t.Fatalf("tile %v: expected structure to block building", xy)
		}
	}
	if !m.Tile(3, 2).Pathable(Build) {
		t.Fatalf("expected tile outside footprint to stay open")
	}
	if !m.Pathable(s) {
		t.Fatalf("expected structure to fit at its own position")
	}
}

func TestLayerLookup(t *testing.T) {
	m, err := New(grid("..", ".."), Options{Resolution: 2, Layers: [][]int{{0, 1}, {2, 3}}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if layer, ok := m.Layer(geom.Pt(1.5, 1.2)); !ok || layer != 3 {
		t.Fatalf("unexpected layer %d (%v)", layer, ok)
	}
	if _, ok := m.Layer(geom.Pt(-0.1, 0)); ok {
		t.Fatalf("expected out of bounds layer lookup to fail")
	}
}

func TestContractViolationsPanic(t *testing.T) {
	m := newTestMap(t, grid(".."), 1)
	tests := map[string]*testUnit{
		"no radius":  {id: "r", pos: geom.Pt(0.5, 0.5), flags: Ground},
		"no pathing": {id: "p", pos: geom.Pt(0.5, 0.5), radius: 0.5},
	}
	for name, u := range tests {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			m.LinearPathable(u, u.pos, geom.Pt(1.5, 0.5))
		})
	}
}
