package orders

import (
	"testing"

	"hunt-arena/server/internal/geom"
	"hunt-arena/server/internal/pathing"
	"hunt-arena/server/internal/spatial"
	"hunt-arena/server/internal/telemetry"
	"hunt-arena/server/logging"
	"hunt-arena/server/logging/sinks"
)

type testWorld struct {
	units map[string]*Unit
	tree  *spatial.KDTree[string]
	m     *pathing.Map
}

func newTestWorld(t *testing.T, resolution int, rows ...string) *testWorld {
	t.Helper()
	terrain := make([][]pathing.Flags, len(rows))
	for y, row := range rows {
		terrain[y] = make([]pathing.Flags, len(row))
		for x, c := range row {
			if c == '#' {
				terrain[y][x] = pathing.Ground | pathing.Build
			}
		}
	}
	w := &testWorld{units: make(map[string]*Unit), tree: spatial.New[string](nil)}
	m, err := pathing.New(terrain, pathing.Options{Resolution: resolution, Movers: w})
	if err != nil {
		t.Fatalf("pathing.New returned error: %v", err)
	}
	w.m = m
	return w
}

func (w *testWorld) add(u *Unit) *Unit {
	w.units[u.ID] = u
	w.m.AddEntity(u)
	w.tree.Add(u.ID, u.Pos)
	return u
}

func (w *testWorld) Lookup(id string) (*Unit, bool) {
	u, ok := w.units[id]
	return u, ok
}

func (w *testWorld) Move(u *Unit, p geom.Point) {
	u.Pos = p
	w.m.UpdateEntity(u)
	w.tree.Replace(u.ID, p)
}

func (w *testWorld) UnitsWithin(center geom.Point, radius float64) []*Unit {
	var out []*Unit
	for _, id := range w.tree.RangeSearchCircle(center, radius) {
		if u, ok := w.units[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

func (w *testWorld) Nearby(center geom.Point, radius float64) []pathing.Entity {
	var out []pathing.Entity
	for _, u := range w.UnitsWithin(center, radius) {
		out = append(out, u)
	}
	return out
}

type recordingHooks struct {
	hits        []string
	builds      []geom.Point
	casts       []string
	rejectBuild bool
}

func (h *recordingHooks) Damage(source, target *Unit, amount float64) {
	h.hits = append(h.hits, target.ID)
	target.Health -= amount
}

func (h *recordingHooks) Build(builder *Unit, unitType string, at geom.Point) bool {
	if h.rejectBuild {
		return false
	}
	h.builds = append(h.builds, at)
	return true
}

func (h *recordingHooks) CastComplete(caster *Unit, cast *Cast) {
	h.casts = append(h.casts, cast.OrderID)
}

type harness struct {
	world   *testWorld
	engine  *Engine
	hooks   *recordingHooks
	events  *sinks.MemorySink
	metrics *logging.Metrics
	tick    uint64
	now     float64
}

func newHarness(t *testing.T, resolution int, rows ...string) *harness {
	t.Helper()
	h := &harness{
		world:   newTestWorld(t, resolution, rows...),
		hooks:   &recordingHooks{},
		events:  sinks.NewMemorySink(),
		metrics: &logging.Metrics{},
	}
	h.engine = NewEngine(Deps{
		Map:       h.world.m,
		World:     h.world,
		Hooks:     h.hooks,
		Publisher: h.events,
		Metrics:   telemetry.WrapMetrics(h.metrics),
	})
	return h
}

// step advances every given unit by delta, in order, as one tick.
func (h *harness) step(delta float64, units ...*Unit) {
	h.tick++
	h.engine.BeginTick(h.tick, h.now)
	for _, u := range units {
		h.engine.Advance(u, delta)
	}
	h.now += delta
}

func newUnit(id, team string, x, y float64, stats Stats) *Unit {
	return &Unit{
		ID:     id,
		Team:   team,
		Pos:    geom.Pt(x, y),
		Stats:  stats,
		Health: 10,
		Flags:  pathing.Ground,
	}
}

func newPost(id string, x, y float64) *Unit {
	fp := pathing.SolidFootprint(2, 2, pathing.Ground|pathing.Build)
	return &Unit{
		ID:        id,
		Team:      "neutral",
		Pos:       geom.Pt(x, y),
		Flags:     pathing.Ground | pathing.Build,
		Footprint: &fp,
	}
}

func openRows(width, height int) []string {
	row := make([]byte, width)
	for i := range row {
		row[i] = '.'
	}
	rows := make([]string, height)
	for i := range rows {
		rows[i] = string(row)
	}
	return rows
}
