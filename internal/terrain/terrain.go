// Package terrain loads arena maps: the terrain grid, optional cliff layers,
// the unit types a match may spawn or build, and the initial spawns.
package terrain

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"hunt-arena/server/internal/geom"
	"hunt-arena/server/internal/orders"
	"hunt-arena/server/internal/pathing"
)

var (
	// ErrMalformedGrid is returned when the grid or layer rows are ragged,
	// empty, or use characters missing from the legend.
	ErrMalformedGrid = errors.New("terrain: malformed grid")
	// ErrUnknownUnitType is returned for spawns or builds of an undeclared type.
	ErrUnknownUnitType = errors.New("terrain: unknown unit type")
)

// DefaultLegend maps grid characters to terrain flags when the map does not
// override them.
var DefaultLegend = map[string]string{
	".": "",
	"#": "ground|build",
	"~": "ground|build",
	"^": "ground|build|air",
}

// UnitType describes a spawnable or buildable kind of unit.
type UnitType struct {
	orders.Stats `yaml:",inline"`

	Health float64 `yaml:"health"`
	// Flags imposed on covered tiles; empty means ground.
	Flags string `yaml:"flags"`
	// Requires are the flags that block the unit; empty means Flags.
	Requires  string          `yaml:"requires"`
	Structure *StructureShape `yaml:"structure"`
}

// StructureShape is the footprint of a structure in whole world units.
type StructureShape struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Flags  string `yaml:"flags"`
}

// Spawn places one unit when a match starts.
type Spawn struct {
	ID   string  `yaml:"id"`
	Team string  `yaml:"team"`
	Type string  `yaml:"type"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
}

type arenaFile struct {
	Name       string              `yaml:"name"`
	Resolution int                 `yaml:"resolution"`
	Legend     map[string]string   `yaml:"legend"`
	Grid       string              `yaml:"grid"`
	Layers     string              `yaml:"layers"`
	UnitTypes  map[string]UnitType `yaml:"unitTypes"`
	Spawns     []Spawn             `yaml:"spawns"`
}

// Arena is a parsed map ready to back a match.
type Arena struct {
	Name       string
	Resolution int
	Terrain    [][]pathing.Flags
	Layers     [][]int
	UnitTypes  map[string]UnitType
	Spawns     []Spawn
}

// Load reads and parses an arena file.
func Load(path string) (*Arena, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read arena %s: %w", path, err)
	}
	arena, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse arena %s: %w", path, err)
	}
	return arena, nil
}

// Parse decodes an arena from YAML.
func Parse(data []byte) (*Arena, error) {
	var f arenaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode arena: %w", err)
	}

	legend := make(map[rune]pathing.Flags, len(DefaultLegend)+len(f.Legend))
	for _, src := range []map[string]string{DefaultLegend, f.Legend} {
		for key, flags := range src {
			if utf8.RuneCountInString(key) != 1 {
				return nil, fmt.Errorf("%w: legend key %q is not a single character", ErrMalformedGrid, key)
			}
			r, _ := utf8.DecodeRuneInString(key)
			legend[r] = pathing.ParseFlags(flags)
		}
	}

	rows := gridRows(f.Grid)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrMalformedGrid)
	}
	width := utf8.RuneCountInString(rows[0])
	grid := make([][]pathing.Flags, len(rows))
	for y, row := range rows {
		if utf8.RuneCountInString(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrMalformedGrid, y, utf8.RuneCountInString(row), width)
		}
		grid[y] = make([]pathing.Flags, 0, width)
		for x, r := range []rune(row) {
			flags, ok := legend[r]
			if !ok {
				return nil, fmt.Errorf("%w: unknown cell %q at %d,%d", ErrMalformedGrid, r, x, y)
			}
			grid[y] = append(grid[y], flags)
		}
	}

	var layers [][]int
	if strings.TrimSpace(f.Layers) != "" {
		layerRows := gridRows(f.Layers)
		if len(layerRows) != len(rows) {
			return nil, fmt.Errorf("%w: %d layer rows, want %d", ErrMalformedGrid, len(layerRows), len(rows))
		}
		layers = make([][]int, len(layerRows))
		for y, row := range layerRows {
			if utf8.RuneCountInString(row) != width {
				return nil, fmt.Errorf("%w: layer row %d has %d cells, want %d", ErrMalformedGrid, y, utf8.RuneCountInString(row), width)
			}
			layers[y] = make([]int, 0, width)
			for x, r := range []rune(row) {
				if r < '0' || r > '9' {
					return nil, fmt.Errorf("%w: layer cell %q at %d,%d is not a digit", ErrMalformedGrid, r, x, y)
				}
				layers[y] = append(layers[y], int(r-'0'))
			}
		}
	}

	resolution := f.Resolution
	if resolution <= 0 {
		resolution = pathing.DefaultResolution
	}
	arena := &Arena{
		Name:       f.Name,
		Resolution: resolution,
		Terrain:    grid,
		Layers:     layers,
		UnitTypes:  f.UnitTypes,
		Spawns:     f.Spawns,
	}
	if arena.UnitTypes == nil {
		arena.UnitTypes = make(map[string]UnitType)
	}
	for i, spawn := range arena.Spawns {
		if _, ok := arena.UnitTypes[spawn.Type]; !ok {
			return nil, fmt.Errorf("spawn %d (%s): %w %q", i, spawn.ID, ErrUnknownUnitType, spawn.Type)
		}
	}
	return arena, nil
}

func gridRows(raw string) []string {
	var rows []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rows = append(rows, line)
	}
	return rows
}

// Size reports the arena dimensions in world units.
func (a *Arena) Size() (int, int) {
	if len(a.Terrain) == 0 {
		return 0, 0
	}
	return len(a.Terrain[0]), len(a.Terrain)
}

// TypeNames lists the declared unit types in lexical order.
func (a *Arena) TypeNames() []string {
	names := make([]string, 0, len(a.UnitTypes))
	for name := range a.UnitTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewUnit builds a unit of the named type. Structures get a solid footprint
// scaled to the arena resolution.
func (a *Arena) NewUnit(id, team, typeName string, at geom.Point) (*orders.Unit, error) {
	ut, ok := a.UnitTypes[typeName]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownUnitType, typeName)
	}
	u := &orders.Unit{
		ID:       id,
		Team:     team,
		Type:     typeName,
		Pos:      at,
		Stats:    ut.Stats,
		Health:   ut.Health,
		Flags:    pathing.ParseFlags(ut.Flags),
		Requires: pathing.ParseFlags(ut.Requires),
	}
	if shape := ut.Structure; shape != nil {
		flags := pathing.ParseFlags(shape.Flags)
		if flags == 0 {
			flags = pathing.Ground | pathing.Build
		}
		fp := pathing.SolidFootprint(shape.Width*a.Resolution, shape.Height*a.Resolution, flags)
		u.Footprint = &fp
		u.Stats.Radius = 0
		if u.Flags == 0 {
			u.Flags = flags
		}
	}
	if u.Flags == 0 {
		u.Flags = pathing.Ground
	}
	return u, nil
}

// PathingOptions returns the map options implied by the arena.
func (a *Arena) PathingOptions() pathing.Options {
	return pathing.Options{Resolution: a.Resolution, Layers: a.Layers}
}
