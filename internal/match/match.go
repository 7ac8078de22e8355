// Package match runs one arena: it owns the units, the pathing map and the
// spatial index, applies order commands and advances the simulation on a
// fixed tick.
package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"hunt-arena/server/internal/geom"
	"hunt-arena/server/internal/orders"
	"hunt-arena/server/internal/pathing"
	"hunt-arena/server/internal/spatial"
	"hunt-arena/server/internal/telemetry"
	"hunt-arena/server/internal/terrain"
	"hunt-arena/server/logging"
	loggingLifecycle "hunt-arena/server/logging/lifecycle"
	loggingPathing "hunt-arena/server/logging/pathing"
)

var (
	// ErrDuplicateUnit is returned when a unit id is already in the match.
	ErrDuplicateUnit = errors.New("match: duplicate unit id")
	// ErrNoRoom is returned when a unit cannot be placed anywhere near its
	// requested position.
	ErrNoRoom = errors.New("match: no room for unit")
)

// Config tunes the tick loop and command intake.
type Config struct {
	Name            string
	TickRate        int
	CatchupMaxTicks int
	CommandCapacity int
	PerActorLimit   int
	// WarningStep logs when the command queue crosses multiples of it.
	WarningStep int
}

// DefaultConfig returns the settings used by the server binary.
func DefaultConfig() Config {
	return Config{
		TickRate:        20,
		CatchupMaxTicks: 3,
		CommandCapacity: 1024,
		PerActorLimit:   8,
	}
}

// Deps are the collaborators of a match. All are optional.
type Deps struct {
	Publisher  logging.Publisher
	Logger     telemetry.Logger
	Metrics    telemetry.Metrics
	Clock      logging.Clock
	Footprints *pathing.FootprintCache
	Classifier orders.Classifier
}

// Match is the simulation context of one arena. Units, the pathing map and
// the spatial index are only touched by the goroutine running Step; other
// goroutines use Enqueue and Snapshot.
type Match struct {
	id     string
	cfg    Config
	arena  *terrain.Arena
	m      *pathing.Map
	tree   *spatial.KDTree[string]
	units  map[string]*orders.Unit
	engine *orders.Engine

	publisher logging.Publisher
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	clock     logging.Clock

	tick   uint64
	now    float64
	streak uint64

	commands      *CommandBuffer
	queueMu       sync.Mutex
	perActorCount map[string]int
	dropCounts    map[string]uint64

	snapMu   sync.RWMutex
	snapshot Snapshot
}

// New builds a match on arena and places its spawns.
func New(arena *terrain.Arena, cfg Config, deps Deps) (*Match, error) {
	if arena == nil {
		return nil, errors.New("match: nil arena")
	}
	defaults := DefaultConfig()
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaults.TickRate
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = defaults.CommandCapacity
	}
	if cfg.Name == "" {
		cfg.Name = arena.Name
	}

	mt := &Match{
		id:            uuid.NewString(),
		cfg:           cfg,
		arena:         arena,
		units:         make(map[string]*orders.Unit),
		publisher:     deps.Publisher,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		clock:         deps.Clock,
		perActorCount: make(map[string]int),
		dropCounts:    make(map[string]uint64),
	}
	if mt.publisher == nil {
		mt.publisher = logging.NopPublisher()
	}
	if mt.logger == nil {
		mt.logger = telemetry.WrapLogger(log.Default())
	}
	if mt.clock == nil {
		mt.clock = logging.SystemClock{}
	}
	mt.publisher = logging.WithFields(mt.publisher, map[string]any{"match": mt.id})
	mt.tree = spatial.New[string](mt.publisher)
	mt.commands = NewCommandBuffer(cfg.CommandCapacity, mt.metrics)

	opts := arena.PathingOptions()
	opts.Movers = mt
	opts.Footprints = deps.Footprints
	opts.Publisher = mt.publisher
	m, err := pathing.New(arena.Terrain, opts)
	if err != nil {
		return nil, fmt.Errorf("match: build pathing map: %w", err)
	}
	mt.m = m

	mt.engine = orders.NewEngine(orders.Deps{
		Map:        m,
		World:      mt,
		Classifier: deps.Classifier,
		Hooks:      &hooks{match: mt},
		Publisher:  mt.publisher,
		Metrics:    mt.metrics,
	})

	for _, spawn := range arena.Spawns {
		u, err := arena.NewUnit(spawn.ID, spawn.Team, spawn.Type, geom.Pt(spawn.X, spawn.Y))
		if err != nil {
			return nil, fmt.Errorf("match: spawn %s: %w", spawn.ID, err)
		}
		mt.placeSpawn(u)
		if err := mt.AddUnit(u); err != nil {
			return nil, fmt.Errorf("match: spawn %s: %w", spawn.ID, err)
		}
	}
	mt.publishSnapshot()
	return mt, nil
}

// ID is the unique id of this match.
func (mt *Match) ID() string { return mt.id }

// Map exposes the pathing map for diagnostics and tests.
func (mt *Match) Map() *pathing.Map { return mt.m }

// Arena returns the map the match was built from.
func (mt *Match) Arena() *terrain.Arena { return mt.arena }

// TickRate reports the configured ticks per second.
func (mt *Match) TickRate() int { return mt.cfg.TickRate }

// AddUnit registers u with the pathing map and the spatial index. A mobile
// unit whose position is blocked is moved to the nearest free spot;
// structures must fit where they are.
func (mt *Match) AddUnit(u *orders.Unit) error {
	if u == nil || u.ID == "" {
		return errors.New("match: unit needs an id")
	}
	if _, exists := mt.units[u.ID]; exists {
		return fmt.Errorf("%w %q", ErrDuplicateUnit, u.ID)
	}
	if !mt.m.PathableAt(u, u.Pos) {
		if u.IsStructure() {
			return fmt.Errorf("%w: structure %q at %.2f,%.2f", ErrNoRoom, u.ID, u.Pos.X, u.Pos.Y)
		}
		p, ok := mt.m.NearestPathing(u.Pos, u, nil)
		if !ok {
			return fmt.Errorf("%w: unit %q near %.2f,%.2f", ErrNoRoom, u.ID, u.Pos.X, u.Pos.Y)
		}
		u.Pos = p
	}
	mt.units[u.ID] = u
	mt.m.AddEntity(u)
	mt.tree.Add(u.ID, u.Pos)
	loggingLifecycle.UnitSpawned(context.Background(), mt.publisher, mt.tick, unitRef(u),
		loggingLifecycle.UnitSpawnedPayload{Team: u.Team, SpawnX: u.Pos.X, SpawnY: u.Pos.Y}, map[string]any{"type": u.Type})
	return nil
}

// placeSpawn nudges a blocked arena spawn to the nearest free spot on the
// same terrain layer. Spawns that find none are left for AddUnit to place
// or reject.
func (mt *Match) placeSpawn(u *orders.Unit) {
	if mt.m.PathableAt(u, u.Pos) {
		return
	}
	layer := pathing.AnyLayer
	if l, ok := mt.m.Layer(u.Pos); ok {
		layer = l
	}
	u.Pos = mt.m.NearestSpiralPathing(u.Pos, u, layer)
}

// UnitChanged re-registers u after its position or shape changed.
func (mt *Match) UnitChanged(u *orders.Unit) {
	if u == nil {
		return
	}
	if _, ok := mt.units[u.ID]; !ok {
		return
	}
	mt.m.UpdateEntity(u)
	mt.tree.Replace(u.ID, u.Pos)
}

// RemoveUnit drops a unit from the match. It reports false for unknown ids.
func (mt *Match) RemoveUnit(id string, reason string) bool {
	u, ok := mt.units[id]
	if !ok {
		return false
	}
	delete(mt.units, id)
	mt.m.RemoveEntity(u)
	mt.tree.Delete(id)
	var extra map[string]any
	if reason != "" {
		extra = map[string]any{"reason": reason}
	}
	loggingLifecycle.UnitRemoved(context.Background(), mt.publisher, mt.tick, unitRef(u), extra)
	return true
}

// Lookup resolves a unit id.
func (mt *Match) Lookup(id string) (*orders.Unit, bool) {
	u, ok := mt.units[id]
	return u, ok
}

// Move commits a new position for u.
func (mt *Match) Move(u *orders.Unit, p geom.Point) {
	u.Pos = p
	mt.UnitChanged(u)
}

// UnitsWithin returns the units whose centres lie within radius of center.
func (mt *Match) UnitsWithin(center geom.Point, radius float64) []*orders.Unit {
	ids := mt.tree.RangeSearchCircle(center, radius)
	out := make([]*orders.Unit, 0, len(ids))
	for _, id := range ids {
		u, ok := mt.units[id]
		if !ok {
			p, _ := mt.tree.Position(id)
			loggingPathing.IndexDesync(context.Background(), mt.publisher, mt.tick,
				logging.EntityRef{ID: id, Kind: logging.EntityKindUnit},
				loggingPathing.IndexDesyncPayload{Operation: "lookup", X: p.X, Y: p.Y}, nil)
			continue
		}
		out = append(out, u)
	}
	return out
}

// Nearby backs the moving-obstacle query of the pathing map.
func (mt *Match) Nearby(center geom.Point, radius float64) []pathing.Entity {
	units := mt.UnitsWithin(center, radius)
	out := make([]pathing.Entity, 0, len(units))
	for _, u := range units {
		out = append(out, u)
	}
	return out
}

// Units returns the live units ordered by id.
func (mt *Match) Units() []*orders.Unit {
	out := make([]*orders.Unit, 0, len(mt.units))
	for _, u := range mt.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close releases resources held by the match.
func (mt *Match) Close() {
	mt.commands.Drain()
}

func unitRef(u *orders.Unit) logging.EntityRef {
	kind := logging.EntityKindUnit
	if u.IsStructure() {
		kind = logging.EntityKindStructure
	}
	return logging.EntityRef{ID: u.ID, Kind: kind}
}

var (
	_ orders.World       = (*Match)(nil)
	_ pathing.MoverQuery = (*Match)(nil)
)
