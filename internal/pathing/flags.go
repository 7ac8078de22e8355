package pathing

import "strings"

// Flags is a bitmask of movement categories. A set bit on a cell means the
// cell blocks that category; a set bit on an entity's requirement means the
// entity is stopped by cells carrying it.
type Flags uint8

const (
	Ground Flags = 1 << iota
	Build
	Air
	Blight
)

// Blocks reports whether any bit of required is present in f.
func (f Flags) Blocks(required Flags) bool {
	return f&required != 0
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	parts := make([]string, 0, 4)
	if f&Ground != 0 {
		parts = append(parts, "ground")
	}
	if f&Build != 0 {
		parts = append(parts, "build")
	}
	if f&Air != 0 {
		parts = append(parts, "air")
	}
	if f&Blight != 0 {
		parts = append(parts, "blight")
	}
	return strings.Join(parts, "|")
}

// ParseFlags converts names such as "ground|build" into a bitmask. Unknown
// names are ignored.
func ParseFlags(raw string) Flags {
	var f Flags
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == '|' || r == ',' || r == ' ' }) {
		switch strings.ToLower(part) {
		case "ground":
			f |= Ground
		case "build":
			f |= Build
		case "air":
			f |= Air
		case "blight":
			f |= Blight
		}
	}
	return f
}
