package lifecycle

import (
	"context"

	"hunt-arena/server/logging"
)

const (
	// EventMatchStarted is emitted when a match begins ticking.
	EventMatchStarted logging.EventType = "lifecycle.match_started"
	// EventMatchStopped is emitted when a match loop exits.
	EventMatchStopped logging.EventType = "lifecycle.match_stopped"
	// EventUnitSpawned is emitted when a unit joins the match.
	EventUnitSpawned logging.EventType = "lifecycle.unit_spawned"
	// EventUnitRemoved is emitted when a unit leaves the match.
	EventUnitRemoved logging.EventType = "lifecycle.unit_removed"
)

// MatchStartedPayload describes the map a match runs on.
type MatchStartedPayload struct {
	Map        string `json:"map"`
	TickRate   int    `json:"tickRate"`
	Resolution int    `json:"resolution"`
}

// MatchStoppedPayload carries the final tick count.
type MatchStoppedPayload struct {
	Ticks uint64 `json:"ticks"`
}

// UnitSpawnedPayload captures spawn metadata for a new unit.
type UnitSpawnedPayload struct {
	Team   string  `json:"team"`
	SpawnX float64 `json:"spawnX"`
	SpawnY float64 `json:"spawnY"`
}

// MatchStarted publishes a match start event.
func MatchStarted(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload MatchStartedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventMatchStarted,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// MatchStopped publishes a match stop event.
func MatchStopped(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MatchStoppedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventMatchStopped,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// UnitSpawned publishes a unit spawn event.
func UnitSpawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload UnitSpawnedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventUnitSpawned,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// UnitRemoved publishes a unit removal event.
func UnitRemoved(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventUnitRemoved,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
