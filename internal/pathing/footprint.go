package pathing

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidFootprint is returned when a footprint's map does not cover its
// declared width and height.
var ErrInvalidFootprint = errors.New("pathing: invalid footprint")

// Footprint is a rectangular bitmap of flags positioned relative to an anchor
// tile. Cell (i, j) sits at anchor + (Left+i, Top+j).
type Footprint struct {
	Top    int
	Left   int
	Width  int
	Height int
	Map    []Flags
}

// NewFootprint validates the dimensions of a structure footprint.
func NewFootprint(top, left, width, height int, cells []Flags) (Footprint, error) {
	if width < 0 || height < 0 {
		return Footprint{}, fmt.Errorf("%w: negative size %dx%d", ErrInvalidFootprint, width, height)
	}
	if len(cells) != width*height {
		return Footprint{}, fmt.Errorf("%w: %d cells for %dx%d", ErrInvalidFootprint, len(cells), width, height)
	}
	copied := make([]Flags, len(cells))
	copy(copied, cells)
	return Footprint{Top: top, Left: left, Width: width, Height: height, Map: copied}, nil
}

// SolidFootprint builds a width x height footprint centred on its anchor with
// every cell set to flags.
func SolidFootprint(width, height int, flags Flags) Footprint {
	cells := make([]Flags, width*height)
	for i := range cells {
		cells[i] = flags
	}
	return Footprint{Top: -height / 2, Left: -width / 2, Width: width, Height: height, Map: cells}
}

// At returns the flags of cell (i, j).
func (f Footprint) At(i, j int) Flags {
	return f.Map[j*f.Width+i]
}

// PointToTilemap converts a circle into a footprint at the given resolution.
// The anchor is the tile containing the centre; a cell is occupied when the
// point of the cell nearest the centre lies strictly inside the circle.
func PointToTilemap(x, y, radius float64, resolution int, flags Flags) Footprint {
	res := float64(resolution)
	return tilemapInTiles(x*res, y*res, radius*res, flags)
}

// tilemapInTiles is PointToTilemap with every quantity already in tile units.
func tilemapInTiles(cx, cy, r float64, flags Flags) Footprint {
	anchorX := int(math.Floor(cx))
	anchorY := int(math.Floor(cy))
	minX := int(math.Floor(cx - r))
	maxX := int(math.Ceil(cx+r)) - 1
	minY := int(math.Floor(cy - r))
	maxY := int(math.Ceil(cy+r)) - 1

	width := maxX - minX + 1
	height := maxY - minY + 1
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}

	rSq := r * r
	cells := make([]Flags, width*height)
	for j := 0; j < height; j++ {
		ty := float64(minY + j)
		dy := cy - clamp(cy, ty, ty+1)
		for i := 0; i < width; i++ {
			tx := float64(minX + i)
			dx := cx - clamp(cx, tx, tx+1)
			if dx*dx+dy*dy < rSq {
				cells[j*width+i] = flags
			}
		}
	}

	return Footprint{
		Top:    minY - anchorY,
		Left:   minX - anchorX,
		Width:  width,
		Height: height,
		Map:    cells,
	}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
