package pathing

import (
	"context"

	"hunt-arena/server/logging"
)

const (
	// EventIndexDesync is emitted when the spatial index is asked to drop a
	// point it does not hold, or returns an id with no live entity.
	EventIndexDesync logging.EventType = "pathing.index_desync"
	// EventSearchStalled is emitted when a path search gives up after its
	// stagnation cutoff and returns a partial path.
	EventSearchStalled logging.EventType = "pathing.search_stalled"
)

// IndexDesyncPayload identifies the point the index could not resolve.
type IndexDesyncPayload struct {
	Operation string  `json:"operation"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// SearchStalledPayload summarises a search that exhausted its budget.
type SearchStalledPayload struct {
	Iterations int     `json:"iterations"`
	TargetX    float64 `json:"targetX"`
	TargetY    float64 `json:"targetY"`
	Remaining  float64 `json:"remaining"`
}

// IndexDesync publishes a warning about an index entry that is out of sync.
func IndexDesync(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload IndexDesyncPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventIndexDesync,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryPathing,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// SearchStalled publishes a debug event for a degenerate path search.
func SearchStalled(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SearchStalledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSearchStalled,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryPathing,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
