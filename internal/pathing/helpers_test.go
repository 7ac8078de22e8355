package pathing

import (
	"testing"

	"hunt-arena/server/internal/geom"
)

type testUnit struct {
	id       string
	pos      geom.Point
	radius   float64
	flags    Flags
	requires Flags
	heading  *geom.Point
}

func (u *testUnit) PathingID() string      { return u.id }
func (u *testUnit) Position() geom.Point   { return u.pos }
func (u *testUnit) Radius() float64        { return u.radius }
func (u *testUnit) Pathing() Flags         { return u.flags }
func (u *testUnit) RequiresPathing() Flags { return u.requires }

func (u *testUnit) Heading() (geom.Point, bool) {
	if u.heading == nil {
		return geom.Point{}, false
	}
	return *u.heading, true
}

type testStructure struct {
	testUnit
	footprint Footprint
}

func (s *testStructure) Tilemap() *Footprint         { return &s.footprint }
func (s *testStructure) RequiresTilemap() *Footprint { return nil }

type staticMovers []Entity

func (s staticMovers) Nearby(center geom.Point, radius float64) []Entity {
	var out []Entity
	for _, e := range s {
		if geom.Distance(center, e.Position()) <= radius {
			out = append(out, e)
		}
	}
	return out
}

func unit(id string, x, y, radius float64) *testUnit {
	return &testUnit{id: id, pos: geom.Pt(x, y), radius: radius, flags: Ground}
}

func grid(rows ...string) [][]Flags {
	terrain := make([][]Flags, len(rows))
	for y, row := range rows {
		terrain[y] = make([]Flags, len(row))
		for x, c := range row {
			if c == '#' {
				terrain[y][x] = Ground | Build
			}
		}
	}
	return terrain
}

func newTestMap(t *testing.T, terrain [][]Flags, resolution int) *Map {
	t.Helper()
	m, err := New(terrain, Options{Resolution: resolution})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return m
}

func snapshotPathing(m *Map) []Flags {
	out := make([]Flags, len(m.tiles))
	for i := range m.tiles {
		out[i] = m.tiles[i].Pathing
	}
	return out
}

func assertPath(t *testing.T, got, want []geom.Point) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("path length mismatch: got %v want %v", got, want)
	}
	const eps = 1e-9
	for i := range want {
		if geom.Distance(got[i], want[i]) > eps {
			t.Fatalf("waypoint %d mismatch: got %v want %v (full path %v)", i, got[i], want[i], got)
		}
	}
}
