// Package spatial provides a dynamic 2-D KD-tree used to answer "what is
// near here" queries for units.
package spatial

import (
	"context"
	"fmt"
	"math"

	"hunt-arena/server/internal/geom"
	"hunt-arena/server/logging"
	loggingpathing "hunt-arena/server/logging/pathing"
)

// Item is a value stored at a point.
type Item[T comparable] struct {
	Value T
	Point geom.Point
}

type node[T comparable] struct {
	item  Item[T]
	left  *node[T]
	right *node[T]
}

// KDTree indexes values by position. Even depths split on x, odd depths on
// y; a node's left subtree holds strictly smaller coordinates on its axis and
// the right subtree greater or equal ones. Each value is stored at most once.
type KDTree[T comparable] struct {
	root      *node[T]
	positions map[T]geom.Point
	publisher logging.Publisher
}

// New returns an empty tree. Desync warnings go to publisher.
func New[T comparable](publisher logging.Publisher) *KDTree[T] {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &KDTree[T]{positions: make(map[T]geom.Point), publisher: publisher}
}

func coord(p geom.Point, axis int) float64 {
	if axis == 0 {
		return p.X
	}
	return p.Y
}

// Len reports the number of stored values.
func (t *KDTree[T]) Len() int {
	return len(t.positions)
}

// Position reports where a value is stored.
func (t *KDTree[T]) Position(value T) (geom.Point, bool) {
	p, ok := t.positions[value]
	return p, ok
}

// Add inserts value at p. A value already present is moved instead.
func (t *KDTree[T]) Add(value T, p geom.Point) {
	if _, exists := t.positions[value]; exists {
		t.Replace(value, p)
		return
	}
	t.insert(value, p)
}

func (t *KDTree[T]) insert(value T, p geom.Point) {
	t.positions[value] = p
	fresh := &node[T]{item: Item[T]{Value: value, Point: p}}
	if t.root == nil {
		t.root = fresh
		return
	}
	current := t.root
	for depth := 0; ; depth++ {
		axis := depth % 2
		if coord(p, axis) < coord(current.item.Point, axis) {
			if current.left == nil {
				current.left = fresh
				return
			}
			current = current.left
		} else {
			if current.right == nil {
				current.right = fresh
				return
			}
			current = current.right
		}
	}
}

// Delete removes value. Deleting a value that is not stored publishes a
// warning and leaves the tree unchanged.
func (t *KDTree[T]) Delete(value T) bool {
	p, ok := t.positions[value]
	if !ok {
		t.warn("delete", value, geom.Point{})
		return false
	}
	root, removed := t.deleteAt(t.root, value, p, 0)
	if !removed {
		t.warn("delete", value, p)
		return false
	}
	t.root = root
	delete(t.positions, value)
	return true
}

// Replace moves value to p.
func (t *KDTree[T]) Replace(value T, p geom.Point) {
	if current, ok := t.positions[value]; ok && current == p {
		return
	}
	if _, ok := t.positions[value]; ok && !t.Delete(value) {
		delete(t.positions, value)
	}
	t.insert(value, p)
}

func (t *KDTree[T]) warn(operation string, value T, p geom.Point) {
	loggingpathing.IndexDesync(context.Background(), t.publisher, 0,
		logging.EntityRef{ID: fmt.Sprint(value), Kind: logging.EntityKindUnit},
		loggingpathing.IndexDesyncPayload{Operation: operation, X: p.X, Y: p.Y}, nil)
}

func (t *KDTree[T]) deleteAt(n *node[T], value T, p geom.Point, depth int) (*node[T], bool) {
	if n == nil {
		return nil, false
	}
	axis := depth % 2
	if n.item.Value == value && n.item.Point == p {
		switch {
		case n.right != nil:
			replacement := findMin(n.right, axis, depth+1)
			n.item = replacement.item
			n.right, _ = t.deleteAt(n.right, replacement.item.Value, replacement.item.Point, depth+1)
		case n.left != nil:
			replacement := findMin(n.left, axis, depth+1)
			n.item = replacement.item
			n.right, _ = t.deleteAt(n.left, replacement.item.Value, replacement.item.Point, depth+1)
			n.left = nil
		default:
			return nil, true
		}
		return n, true
	}
	var removed bool
	if coord(p, axis) < coord(n.item.Point, axis) {
		n.left, removed = t.deleteAt(n.left, value, p, depth+1)
	} else {
		n.right, removed = t.deleteAt(n.right, value, p, depth+1)
	}
	return n, removed
}

// findMin returns the node with the smallest coordinate on axis in the
// subtree rooted at n, which sits at depth.
func findMin[T comparable](n *node[T], axis, depth int) *node[T] {
	if n == nil {
		return nil
	}
	if depth%2 == axis {
		if n.left == nil {
			return n
		}
		return findMin(n.left, axis, depth+1)
	}
	best := n
	for _, child := range [2]*node[T]{n.left, n.right} {
		if candidate := findMin(child, axis, depth+1); candidate != nil && coord(candidate.item.Point, axis) < coord(best.item.Point, axis) {
			best = candidate
		}
	}
	return best
}

// RangeSearchRect returns every value inside the closed rectangle.
func (t *KDTree[T]) RangeSearchRect(lo, hi geom.Point) []T {
	var out []T
	var walk func(n *node[T], depth int)
	walk = func(n *node[T], depth int) {
		if n == nil {
			return
		}
		p := n.item.Point
		if p.X >= lo.X && p.X <= hi.X && p.Y >= lo.Y && p.Y <= hi.Y {
			out = append(out, n.item.Value)
		}
		axis := depth % 2
		split := coord(p, axis)
		if coord(lo, axis) < split {
			walk(n.left, depth+1)
		}
		if coord(hi, axis) >= split {
			walk(n.right, depth+1)
		}
	}
	walk(t.root, 0)
	return out
}

// RangeSearchCircle returns every value within radius of center.
func (t *KDTree[T]) RangeSearchCircle(center geom.Point, radius float64) []T {
	var out []T
	radiusSq := radius * radius
	var walk func(n *node[T], depth int)
	walk = func(n *node[T], depth int) {
		if n == nil {
			return
		}
		if geom.DistanceSq(center, n.item.Point) <= radiusSq {
			out = append(out, n.item.Value)
		}
		axis := depth % 2
		split := coord(n.item.Point, axis)
		c := coord(center, axis)
		if c-radius < split {
			walk(n.left, depth+1)
		}
		if c+radius >= split {
			walk(n.right, depth+1)
		}
	}
	walk(t.root, 0)
	return out
}

// Nearest returns the value closest to p that pred accepts. A nil pred
// accepts everything.
func (t *KDTree[T]) Nearest(p geom.Point, pred func(T) bool) (T, bool) {
	var best T
	found := false
	bestSq := math.Inf(1)
	var walk func(n *node[T], depth int)
	walk = func(n *node[T], depth int) {
		if n == nil {
			return
		}
		if d := geom.DistanceSq(p, n.item.Point); d < bestSq && (pred == nil || pred(n.item.Value)) {
			best, bestSq, found = n.item.Value, d, true
		}
		axis := depth % 2
		diff := coord(p, axis) - coord(n.item.Point, axis)
		near, far := n.right, n.left
		if diff < 0 {
			near, far = n.left, n.right
		}
		walk(near, depth+1)
		if diff*diff < bestSq {
			walk(far, depth+1)
		}
	}
	walk(t.root, 0)
	return best, found
}

// Items returns every stored value with its point in tree order.
func (t *KDTree[T]) Items() []Item[T] {
	out := make([]Item[T], 0, len(t.positions))
	var walk func(n *node[T])
	walk = func(n *node[T]) {
		if n == nil {
			return
		}
		walk(n.left)
		out = append(out, n.item)
		walk(n.right)
	}
	walk(t.root)
	return out
}
