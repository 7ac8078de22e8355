package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"hunt-arena/server/internal/geom"
	"hunt-arena/server/internal/orders"
	"hunt-arena/server/internal/telemetry"
	"hunt-arena/server/internal/terrain"
	"hunt-arena/server/logging"
	loggingLifecycle "hunt-arena/server/logging/lifecycle"
	loggingOrders "hunt-arena/server/logging/orders"
	loggingSimulation "hunt-arena/server/logging/simulation"
	"hunt-arena/server/logging/sinks"
)

const testArena = `
name: paddock
resolution: 2
grid: |
  ........
  ..#.....
  ........
  ........
unitTypes:
  sheep:
    radius: 0.4
    speed: 2
    buildRange: 1
    health: 3
  wolf:
    radius: 0.4
    speed: 3
    attackRange: 0.5
    attackDamage: 2
    damagePoint: 0.1
    backswing: 0.2
    attackCooldown: 0.5
    rangeTolerance: 0.5
    health: 10
  pen:
    health: 20
    structure:
      width: 1
      height: 1
spawns:
  - {id: sheep-1, team: sheep, type: sheep, x: 0.5, y: 0.5}
  - {id: wolf-1, team: wolves, type: wolf, x: 6.5, y: 2.5}
`

type fixture struct {
	match   *Match
	events  *sinks.MemorySink
	metrics *logging.Metrics
	logged  []string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	arena, err := terrain.Parse([]byte(testArena))
	if err != nil {
		t.Fatalf("terrain.Parse returned error: %v", err)
	}
	f := &fixture{events: sinks.NewMemorySink(), metrics: &logging.Metrics{}}
	mt, err := New(arena, cfg, Deps{
		Publisher: f.events,
		Metrics:   telemetry.WrapMetrics(f.metrics),
		Logger: telemetry.LoggerFunc(func(format string, args ...any) {
			f.logged = append(f.logged, format)
		}),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	f.match = mt
	return f
}

func (f *fixture) unit(t *testing.T, id string) *orders.Unit {
	t.Helper()
	u, ok := f.match.Lookup(id)
	if !ok {
		t.Fatalf("unit %s not found", id)
	}
	return u
}

func TestNewPlacesSpawns(t *testing.T) {
	f := newFixture(t, Config{})
	mt := f.match

	if mt.ID() == "" || mt.TickRate() != DefaultConfig().TickRate {
		t.Fatalf("unexpected match header id=%q rate=%d", mt.ID(), mt.TickRate())
	}
	units := mt.Units()
	if len(units) != 2 || units[0].ID != "sheep-1" || units[1].ID != "wolf-1" {
		t.Fatalf("unexpected units %v", units)
	}
	for _, u := range units {
		if !mt.Map().Registered(u.ID) {
			t.Fatalf("%s not registered with the pathing map", u.ID)
		}
		if p, ok := mt.tree.Position(u.ID); !ok || p != u.Pos {
			t.Fatalf("%s not indexed at its position: %v", u.ID, p)
		}
	}
	if got := f.events.Count(loggingLifecycle.EventUnitSpawned); got != 2 {
		t.Fatalf("expected two spawn events, got %d", got)
	}
	snap := mt.Snapshot()
	if snap.MatchID != mt.ID() || len(snap.Units) != 2 || snap.Tick != 0 {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
}

func TestAddUnitPlacement(t *testing.T) {
	f := newFixture(t, Config{})
	mt := f.match
	arena := mt.Arena()

	blocked, err := arena.NewUnit("sheep-2", "sheep", "sheep", geom.Pt(2.5, 1.5))
	if err != nil {
		t.Fatalf("NewUnit returned error: %v", err)
	}
	if err := mt.AddUnit(blocked); err != nil {
		t.Fatalf("AddUnit returned error: %v", err)
	}
	if blocked.Pos == geom.Pt(2.5, 1.5) || !mt.Map().Pathable(blocked) {
		t.Fatalf("expected the unit to be moved off the wall, got %v", blocked.Pos)
	}

	dup, _ := arena.NewUnit("sheep-2", "sheep", "sheep", geom.Pt(4.5, 3.5))
	if err := mt.AddUnit(dup); !errors.Is(err, ErrDuplicateUnit) {
		t.Fatalf("expected ErrDuplicateUnit, got %v", err)
	}

	pen, _ := arena.NewUnit("pen-1", "sheep", "pen", geom.Pt(2.5, 1.5))
	if err := mt.AddUnit(pen); !errors.Is(err, ErrNoRoom) {
		t.Fatalf("expected ErrNoRoom for a structure on a wall, got %v", err)
	}

	if !mt.RemoveUnit("sheep-2", "test") {
		t.Fatalf("RemoveUnit reported false for a live unit")
	}
	if mt.RemoveUnit("sheep-2", "test") {
		t.Fatalf("RemoveUnit reported true twice")
	}
	if mt.Map().Registered("sheep-2") || mt.tree.Len() != 2 {
		t.Fatalf("removed unit still registered")
	}
}

func TestEnqueueIssuesOrdersOnStep(t *testing.T) {
	f := newFixture(t, Config{PerActorLimit: 2})
	mt := f.match

	if ok, reason := mt.Enqueue(Command{ActorID: "sheep-1", Type: CommandWalk, X: 4.5, Y: 3.5}); !ok {
		t.Fatalf("walk command rejected: %s", reason)
	}
	if ok, reason := mt.Enqueue(Command{ActorID: "sheep-1", Type: CommandHold, Queue: true}); !ok {
		t.Fatalf("hold command rejected: %s", reason)
	}
	if ok, reason := mt.Enqueue(Command{ActorID: "sheep-1", Type: CommandHold}); ok || reason != CommandRejectQueueLimit {
		t.Fatalf("expected per-actor limit, got ok=%v reason=%q", ok, reason)
	}
	if ok, reason := mt.Enqueue(Command{ActorID: "wolf-1", Type: CommandAttack}); ok || reason != CommandRejectInvalid {
		t.Fatalf("expected invalid attack without a target, got ok=%v reason=%q", ok, reason)
	}
	if ok, _ := mt.Enqueue(Command{ActorID: "ghost", Type: CommandHold}); !ok {
		t.Fatalf("unknown actors are only rejected when applied")
	}
	if mt.Pending() != 3 {
		t.Fatalf("expected three staged commands, got %d", mt.Pending())
	}

	sheep := f.unit(t, "sheep-1")
	start := sheep.Pos
	result := mt.Step(0.05)
	if result.Tick != 1 || result.Commands != 3 || mt.Pending() != 0 {
		t.Fatalf("unexpected step result %+v", result)
	}
	if _, ok := sheep.Order.(*orders.Walk); !ok || len(sheep.Queue) != 1 {
		t.Fatalf("expected walk with a queued hold, got %#v / %d", sheep.Order, len(sheep.Queue))
	}
	if sheep.Pos == start {
		t.Fatalf("sheep did not move on the first tick")
	}
	if got := f.events.Count(loggingSimulation.EventCommandRejected); got != 1 {
		t.Fatalf("expected the ghost command to be rejected, got %d", got)
	}
	if result.Snapshot.Tick != 1 || mt.Snapshot().Units[0].Order != "walk" {
		t.Fatalf("snapshot not refreshed: %+v", mt.Snapshot())
	}

	if ok, _ := mt.Enqueue(Command{ActorID: "sheep-1", Type: CommandStop}); !ok {
		t.Fatalf("stop command rejected")
	}
	mt.Step(0.05)
	if sheep.Order != nil || sheep.Queue != nil {
		t.Fatalf("stop left orders behind: %#v", sheep.Order)
	}
}

func TestWolfKillsSheep(t *testing.T) {
	f := newFixture(t, Config{})
	mt := f.match
	if !mt.Issue("wolf-1", &orders.Attack{TargetID: "sheep-1"}, false) {
		t.Fatalf("Issue rejected the attack")
	}

	for i := 0; i < 200; i++ {
		mt.Step(0.05)
		if _, ok := mt.Lookup("sheep-1"); !ok {
			break
		}
	}
	if _, ok := mt.Lookup("sheep-1"); ok {
		t.Fatalf("sheep survived")
	}
	if mt.Map().Registered("sheep-1") {
		t.Fatalf("dead sheep still occupies the map")
	}
	if got := f.metrics.Snapshot()[metricUnitsKilled]; got != 1 {
		t.Fatalf("units killed = %d, want 1", got)
	}
	if got := f.events.Count(loggingLifecycle.EventUnitRemoved); got != 1 {
		t.Fatalf("expected one removal event, got %d", got)
	}
	if len(mt.Snapshot().Units) != 1 {
		t.Fatalf("snapshot still lists the sheep")
	}
}

func TestBuildPlacesStructure(t *testing.T) {
	f := newFixture(t, Config{})
	mt := f.match
	sheep := f.unit(t, "sheep-1")

	mt.Enqueue(Command{ActorID: "sheep-1", Type: CommandBuild, UnitType: "pen", X: 5.5, Y: 3.5})
	for i := 0; i < 200 && (i == 0 || sheep.Order != nil); i++ {
		mt.Step(0.05)
	}
	if got := f.metrics.Snapshot()[metricStructures]; got != 1 {
		t.Fatalf("structures built = %d, want 1", got)
	}
	var pen *orders.Unit
	for _, u := range mt.Units() {
		if u.IsStructure() {
			pen = u
		}
	}
	if pen == nil || pen.Team != "sheep" || pen.Pos != geom.Pt(5.5, 3.5) {
		t.Fatalf("unexpected structure %+v", pen)
	}
	probe, _ := mt.Arena().NewUnit("probe", "sheep", "sheep", geom.Pt(5.5, 3.5))
	if mt.Map().PathableAt(probe, probe.Pos) {
		t.Fatalf("structure does not block its footprint")
	}
}

func TestBuildRejections(t *testing.T) {
	f := newFixture(t, Config{})
	mt := f.match
	sheep := f.unit(t, "sheep-1")

	mt.Enqueue(Command{ActorID: "sheep-1", Type: CommandBuild, UnitType: "wolf", X: 3, Y: 3})
	mt.Step(0.05)
	if sheep.Order != nil {
		t.Fatalf("non-structure build should be rejected")
	}
	if got := f.events.Count(loggingSimulation.EventCommandRejected); got != 1 {
		t.Fatalf("expected one rejected command, got %d", got)
	}

	mt.Enqueue(Command{ActorID: "sheep-1", Type: CommandBuild, UnitType: "pen", X: 2.5, Y: 1.5})
	for i := 0; i < 100 && (i == 0 || sheep.Order != nil); i++ {
		mt.Step(0.05)
	}
	if sheep.Order != nil {
		t.Fatalf("build on a wall still active")
	}
	if got := f.events.Count(loggingOrders.EventOrderCancelled); got != 1 {
		t.Fatalf("expected the placement to be cancelled, got %d", got)
	}
	if got := f.metrics.Snapshot()[metricStructures]; got != 0 {
		t.Fatalf("no structure should be built, got %d", got)
	}
}

func TestStructuresIgnoreCommands(t *testing.T) {
	f := newFixture(t, Config{})
	mt := f.match
	pen, _ := mt.Arena().NewUnit("pen-1", "sheep", "pen", geom.Pt(5.5, 0.5))
	if err := mt.AddUnit(pen); err != nil {
		t.Fatalf("AddUnit returned error: %v", err)
	}
	mt.Enqueue(Command{ActorID: "pen-1", Type: CommandWalk, X: 1, Y: 1})
	mt.Step(0.05)
	if pen.Order != nil {
		t.Fatalf("structure accepted an order")
	}
	if mt.Issue("pen-1", &orders.Hold{}, false) {
		t.Fatalf("Issue accepted an order for a structure")
	}
}

func TestCheckBudgetTracksStreak(t *testing.T) {
	f := newFixture(t, Config{})
	mt := f.match
	over := StepResult{Tick: 1, Duration: 80 * time.Millisecond, Budget: 50 * time.Millisecond}

	mt.checkBudget(context.Background(), over)
	mt.checkBudget(context.Background(), over)
	if mt.streak != 2 {
		t.Fatalf("streak = %d, want 2", mt.streak)
	}
	mt.checkBudget(context.Background(), StepResult{Tick: 3, Duration: time.Millisecond, Budget: 50 * time.Millisecond})
	if mt.streak != 0 {
		t.Fatalf("streak not reset: %d", mt.streak)
	}

	events := f.events.Events()
	var overruns []loggingSimulation.TickBudgetOverrunPayload
	for _, event := range events {
		if event.Type == loggingSimulation.EventTickBudgetOverrun {
			overruns = append(overruns, event.Payload.(loggingSimulation.TickBudgetOverrunPayload))
		}
	}
	if len(overruns) != 2 || overruns[1].Streak != 2 || overruns[0].BudgetMillis != 50 {
		t.Fatalf("unexpected overrun events %+v", overruns)
	}
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	f := newFixture(t, Config{TickRate: 200})
	mt := f.match
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	steps := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		mt.Run(ctx, LoopHooks{AfterStep: func(result StepResult) {
			steps++
			if result.Budget != 5*time.Millisecond {
				t.Errorf("budget = %v, want 5ms", result.Budget)
			}
			if steps == 3 {
				cancel()
			}
		}})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if steps < 3 {
		t.Fatalf("expected at least three steps, got %d", steps)
	}
	if f.events.Count(loggingLifecycle.EventMatchStarted) != 1 || f.events.Count(loggingLifecycle.EventMatchStopped) != 1 {
		t.Fatalf("missing lifecycle events: %+v", f.events.Events())
	}
	if mt.Snapshot().Tick < 3 {
		t.Fatalf("snapshot tick = %d", mt.Snapshot().Tick)
	}
}

const layeredArena = `
name: terraces
resolution: 2
grid: |
  ......
  ..#...
  ......
layers: |
  000111
  000111
  000111
unitTypes:
  sheep:
    radius: 0.4
    speed: 2
  pen:
    structure:
      width: 1
      height: 1
spawns:
  - {id: pen-1, team: sheep, type: pen, x: 2.5, y: 1.5}
  - {id: sheep-1, team: sheep, type: sheep, x: 3.2, y: 1.5}
`

func TestSpawnsStayOnTheirLayer(t *testing.T) {
	arena, err := terrain.Parse([]byte(layeredArena))
	if err != nil {
		t.Fatalf("terrain.Parse returned error: %v", err)
	}
	mt, err := New(arena, Config{}, Deps{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	tests := []struct {
		id    string
		layer int
	}{
		{"pen-1", 0},
		{"sheep-1", 1},
	}
	for _, tt := range tests {
		u, ok := mt.Lookup(tt.id)
		if !ok {
			t.Fatalf("%s was not spawned", tt.id)
		}
		if !mt.Map().Pathable(u) {
			t.Fatalf("%s spawned on blocked ground at %v", tt.id, u.Pos)
		}
		if layer, ok := mt.Map().Layer(u.Pos); !ok || layer != tt.layer {
			t.Fatalf("%s moved to layer %d at %v, want layer %d", tt.id, layer, u.Pos, tt.layer)
		}
	}
}
