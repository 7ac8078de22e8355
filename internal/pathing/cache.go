package pathing

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dgraph-io/ristretto/v2"
)

// FootprintCache memoises radius-derived footprints across searches. The
// shape of a circle's footprint only depends on the fractional position of
// its centre within the anchor tile, its radius and its flags.
type FootprintCache struct {
	cache *ristretto.Cache[string, Footprint]
}

// NewFootprintCache constructs a cache bounded to roughly capacity entries.
func NewFootprintCache(capacity int64) (*FootprintCache, error) {
	if capacity <= 0 {
		capacity = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, Footprint]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("footprint cache: %w", err)
	}
	return &FootprintCache{cache: cache}, nil
}

// Close releases the cache's background goroutines.
func (c *FootprintCache) Close() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Close()
}

func (c *FootprintCache) lookup(key footprintKey) Footprint {
	if c == nil || c.cache == nil {
		return key.compute()
	}
	name := key.String()
	if fp, ok := c.cache.Get(name); ok {
		return fp
	}
	fp := key.compute()
	c.cache.Set(name, fp, 1)
	return fp
}

// footprintKey identifies a circle footprint independent of its anchor.
type footprintKey struct {
	fracX  float64
	fracY  float64
	radius float64
	flags  Flags
}

func newFootprintKey(x, y, radius float64, resolution int, flags Flags) footprintKey {
	res := float64(resolution)
	cx := x * res
	cy := y * res
	return footprintKey{
		fracX:  cx - math.Floor(cx),
		fracY:  cy - math.Floor(cy),
		radius: radius * res,
		flags:  flags,
	}
}

func (k footprintKey) compute() Footprint {
	return tilemapInTiles(k.fracX, k.fracY, k.radius, k.flags)
}

func (k footprintKey) String() string {
	buf := make([]byte, 0, 64)
	buf = strconv.AppendFloat(buf, k.fracX, 'g', -1, 64)
	buf = append(buf, ':')
	buf = strconv.AppendFloat(buf, k.fracY, 'g', -1, 64)
	buf = append(buf, ':')
	buf = strconv.AppendFloat(buf, k.radius, 'g', -1, 64)
	buf = append(buf, ':')
	buf = strconv.AppendUint(buf, uint64(k.flags), 10)
	return string(buf)
}

// losKey orders its endpoints so a->b and b->a share an entry.
type losKey struct {
	a int
	b int
}

func newLOSKey(a, b int) losKey {
	if a > b {
		a, b = b, a
	}
	return losKey{a: a, b: b}
}

// searchCache holds memoised sub-query results for one Path call.
type searchCache struct {
	footprints map[footprintKey]Footprint
	los        map[losKey]bool
}

func newSearchCache() *searchCache {
	return &searchCache{
		footprints: make(map[footprintKey]Footprint),
		los:        make(map[losKey]bool),
	}
}
