// Package pathing owns the tile grid that circular agents and structures
// occupy, and answers collision, line-of-sight, nearest-position and path
// queries against it.
package pathing

import (
	"errors"
	"fmt"
	"math"

	"hunt-arena/server/internal/geom"
	"hunt-arena/server/logging"
)

// ErrEmptyTerrain is returned when the terrain grid has no cells.
var ErrEmptyTerrain = errors.New("pathing: empty terrain")

// DefaultResolution is the number of tiles per world unit used when Options
// leaves it unset.
const DefaultResolution = 4

// Options configures a Map.
type Options struct {
	// Resolution is the number of tile subdivisions per world unit.
	Resolution int
	// Layers optionally assigns a discrete layer (cliff height) to each
	// world cell. Must match the terrain dimensions when set.
	Layers [][]int
	// Movers backs the moving-obstacle exclusion in Path.
	Movers     MoverQuery
	Footprints *FootprintCache
	Publisher  logging.Publisher
}

type cellFlags struct {
	index int
	flags Flags
}

type registration struct {
	id     string
	entity Entity
	cells  []cellFlags
}

// Map is the pathing grid for one match.
type Map struct {
	resolution  int
	width       int
	height      int
	worldWidth  int
	worldHeight int
	tiles       []Tile
	layers      [][]int

	movers     MoverQuery
	footprints *FootprintCache
	publisher  logging.Publisher

	entities map[string]*registration
	scratch  searchScratch
}

// New builds a map from a world-unit terrain grid indexed [y][x].
func New(terrain [][]Flags, opts Options) (*Map, error) {
	if len(terrain) == 0 || len(terrain[0]) == 0 {
		return nil, ErrEmptyTerrain
	}
	worldHeight := len(terrain)
	worldWidth := len(terrain[0])
	for y, row := range terrain {
		if len(row) != worldWidth {
			return nil, fmt.Errorf("pathing: terrain row %d has %d cells, want %d", y, len(row), worldWidth)
		}
	}
	if opts.Layers != nil {
		if len(opts.Layers) != worldHeight {
			return nil, fmt.Errorf("pathing: layer grid has %d rows, want %d", len(opts.Layers), worldHeight)
		}
		for y, row := range opts.Layers {
			if len(row) != worldWidth {
				return nil, fmt.Errorf("pathing: layer row %d has %d cells, want %d", y, len(row), worldWidth)
			}
		}
	}

	resolution := opts.Resolution
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}

	m := &Map{
		resolution:  resolution,
		width:       worldWidth * resolution,
		height:      worldHeight * resolution,
		worldWidth:  worldWidth,
		worldHeight: worldHeight,
		layers:      opts.Layers,
		movers:      opts.Movers,
		footprints:  opts.Footprints,
		publisher:   publisher,
		entities:    make(map[string]*registration),
	}

	m.tiles = make([]Tile, m.width*m.height)
	res := float64(resolution)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			flags := terrain[y/resolution][x/resolution]
			m.tiles[y*m.width+x] = Tile{
				X:        x,
				Y:        y,
				World:    geom.Point{X: float64(x) / res, Y: float64(y) / res},
				Original: flags,
				Pathing:  flags,
			}
		}
	}
	for i := range m.tiles {
		tile := &m.tiles[i]
		for slot, offset := range neighborOffsets {
			tile.Neighbors[slot] = m.Tile(tile.X+offset[0], tile.Y+offset[1])
		}
	}
	m.scratch.reset(len(m.tiles))
	return m, nil
}

// Resolution reports the tile subdivisions per world unit.
func (m *Map) Resolution() int { return m.resolution }

// Width reports the grid width in tiles.
func (m *Map) Width() int { return m.width }

// Height reports the grid height in tiles.
func (m *Map) Height() int { return m.height }

// Tile returns the tile at grid coordinates or nil when out of bounds.
func (m *Map) Tile(x, y int) *Tile {
	if !m.inBounds(x, y) {
		return nil
	}
	return &m.tiles[y*m.width+x]
}

// TileAt returns the tile containing a world position.
func (m *Map) TileAt(p geom.Point) *Tile {
	res := float64(m.resolution)
	return m.Tile(int(math.Floor(p.X*res)), int(math.Floor(p.Y*res)))
}

// Layer reports the layer of the world cell containing p.
func (m *Map) Layer(p geom.Point) (int, bool) {
	if m.layers == nil {
		return 0, false
	}
	x := int(math.Floor(p.X))
	y := int(math.Floor(p.Y))
	if x < 0 || y < 0 || x >= m.worldWidth || y >= m.worldHeight {
		return 0, false
	}
	return m.layers[y][x], true
}

func (m *Map) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.width && y < m.height
}

func (m *Map) index(x, y int) int {
	return y*m.width + x
}

// Registered reports whether the entity id currently contributes to the grid.
func (m *Map) Registered(id string) bool {
	_, ok := m.entities[id]
	return ok
}

// AddEntity registers an entity's contribution on every tile it covers.
func (m *Map) AddEntity(e Entity) {
	if e == nil {
		return
	}
	if _, exists := m.entities[e.PathingID()]; exists {
		m.UpdateEntity(e)
		return
	}
	reg := &registration{id: e.PathingID(), entity: e, cells: m.occupancy(e)}
	for _, cell := range reg.cells {
		m.tiles[cell.index].setContribution(reg.id, cell.flags)
	}
	m.entities[reg.id] = reg
}

// UpdateEntity re-registers an entity after it moved or changed shape,
// touching only tiles whose contribution changed.
func (m *Map) UpdateEntity(e Entity) {
	if e == nil {
		return
	}
	reg, exists := m.entities[e.PathingID()]
	if !exists {
		m.AddEntity(e)
		return
	}
	next := m.occupancy(e)
	previous := make(map[int]Flags, len(reg.cells))
	for _, cell := range reg.cells {
		previous[cell.index] = cell.flags
	}
	for _, cell := range next {
		if old, ok := previous[cell.index]; ok {
			delete(previous, cell.index)
			if old == cell.flags {
				continue
			}
		}
		m.tiles[cell.index].setContribution(reg.id, cell.flags)
	}
	for index := range previous {
		m.tiles[index].clearContribution(reg.id)
	}
	reg.entity = e
	reg.cells = next
}

// RemoveEntity deregisters an entity from every tile it covered.
func (m *Map) RemoveEntity(e Entity) {
	if e == nil {
		return
	}
	reg, exists := m.entities[e.PathingID()]
	if !exists {
		return
	}
	for _, cell := range reg.cells {
		m.tiles[cell.index].clearContribution(reg.id)
	}
	delete(m.entities, reg.id)
}

// occupancy lists the tiles an entity covers and the flags it imposes there.
func (m *Map) occupancy(e Entity) []cellFlags {
	pos := e.Position()
	var fp Footprint
	if s, ok := structureOf(e); ok {
		fp = *s.Tilemap()
	} else {
		if e.Radius() <= 0 || e.Pathing() == 0 {
			return nil
		}
		fp = m.circleFootprint(pos, e.Radius(), e.Pathing(), nil)
	}
	ax, ay := m.anchor(pos)
	cells := make([]cellFlags, 0, len(fp.Map))
	for j := 0; j < fp.Height; j++ {
		for i := 0; i < fp.Width; i++ {
			flags := fp.At(i, j)
			if flags == 0 {
				continue
			}
			x := ax + fp.Left + i
			y := ay + fp.Top + j
			if !m.inBounds(x, y) {
				continue
			}
			cells = append(cells, cellFlags{index: m.index(x, y), flags: flags})
		}
	}
	return cells
}

func (m *Map) anchor(p geom.Point) (int, int) {
	res := float64(m.resolution)
	return int(math.Floor(p.X * res)), int(math.Floor(p.Y * res))
}

func (m *Map) circleFootprint(p geom.Point, radius float64, flags Flags, cache *searchCache) Footprint {
	key := newFootprintKey(p.X, p.Y, radius, m.resolution, flags)
	if cache != nil {
		if fp, ok := cache.footprints[key]; ok {
			return fp
		}
	}
	fp := m.footprints.lookup(key)
	if cache != nil {
		cache.footprints[key] = fp
	}
	return fp
}

// suspend lifts the contributions of the given entities until the returned
// function runs. Callers must defer the restore. An entity removed or
// re-added in between is left as the map now has it; one updated in place
// gets its current cells back.
func (m *Map) suspend(ids ...string) func() {
	held := make([]*registration, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		reg, ok := m.entities[id]
		if !ok {
			continue
		}
		for _, cell := range reg.cells {
			m.tiles[cell.index].clearContribution(reg.id)
		}
		held = append(held, reg)
	}
	return func() {
		for _, reg := range held {
			if m.entities[reg.id] != reg {
				continue
			}
			for _, cell := range reg.cells {
				m.tiles[cell.index].setContribution(reg.id, cell.flags)
			}
		}
	}
}

// TilePredicate is an extra per-cell condition for footprint tests.
type TilePredicate func(*Tile) bool

func (m *Map) footprintPathable(fp Footprint, ax, ay int, pred TilePredicate) bool {
	for j := 0; j < fp.Height; j++ {
		for i := 0; i < fp.Width; i++ {
			flags := fp.At(i, j)
			if flags == 0 {
				continue
			}
			tile := m.Tile(ax+fp.Left+i, ay+fp.Top+j)
			if tile == nil || !tile.Pathable(flags) {
				return false
			}
			if pred != nil && !pred(tile) {
				return false
			}
		}
	}
	return true
}

// Pathable reports whether the entity fits at its current position.
func (m *Map) Pathable(e Entity) bool {
	return m.PathableAt(e, e.Position())
}

// PathableAt reports whether the entity would fit at p, ignoring its own
// contribution. The map is left unchanged.
func (m *Map) PathableAt(e Entity, p geom.Point) bool {
	restore := m.suspend(e.PathingID())
	defer restore()
	return m.pathableAt(e, p, nil, nil)
}

func (m *Map) pathableAt(e Entity, p geom.Point, pred TilePredicate, cache *searchCache) bool {
	ax, ay := m.anchor(p)
	if s, ok := structureOf(e); ok {
		fp := s.RequiresTilemap()
		if fp == nil {
			fp = s.Tilemap()
		}
		return m.footprintPathable(*fp, ax, ay, pred)
	}
	fp := m.circleFootprint(p, mustRadius(e), requiredFlags(e), cache)
	return m.footprintPathable(fp, ax, ay, pred)
}
