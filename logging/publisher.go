package logging

import (
	"context"
	"maps"
	"slices"
	"time"
)

// EventType names an event, e.g. "orders.attack_landed".
type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity maps a level name onto a Severity. Unknown names fall back
// to info.
func ParseSeverity(name string) Severity {
	switch name {
	case "debug":
		return SeverityDebug
	case "warn", "warning":
		return SeverityWarn
	case "error":
		return SeverityError
	default:
		return SeverityInfo
	}
}

// EntityKind tags what an EntityRef points at.
type EntityKind string

const (
	EntityKindUnit      EntityKind = "unit"
	EntityKindStructure EntityKind = "structure"
	EntityKindObserver  EntityKind = "observer"
	EntityKindMatch     EntityKind = "match"
)

// EntityRef identifies a participant in an event.
type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

// Event is one structured record from the arena. Payload holds the typed
// body defined by the per-category helper packages.
type Event struct {
	Type     EventType      `json:"type"`
	Tick     uint64         `json:"tick"`
	Time     time.Time      `json:"time"`
	Actor    EntityRef      `json:"actor"`
	Targets  []EntityRef    `json:"targets,omitempty"`
	Severity Severity       `json:"severity"`
	Category string         `json:"category,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Clone copies the slices and maps of e so the copy can cross goroutines.
// Payload is shared; helpers only ever publish value payloads.
func (e Event) Clone() Event {
	e.Targets = slices.Clone(e.Targets)
	e.Extra = maps.Clone(e.Extra)
	return e
}

// withDefaults returns e with every key of fields it lacks filled in.
func withDefaults(e Event, fields map[string]any) Event {
	if len(fields) == 0 {
		return e
	}
	e = e.Clone()
	if e.Extra == nil {
		e.Extra = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if _, set := e.Extra[k]; !set {
			e.Extra[k] = v
		}
	}
	return e
}

const (
	CategoryPathing    = "pathing"
	CategoryOrders     = "orders"
	CategorySimulation = "simulation"
	CategoryLifecycle  = "lifecycle"
	CategoryNetwork    = "network"
)

// Publisher accepts events. Implementations must not block the caller for
// long; the simulation publishes from inside its tick.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

func NopPublisher() Publisher {
	return nopPublisher{}
}

type fieldPublisher struct {
	next   Publisher
	fields map[string]any
}

func (p *fieldPublisher) Publish(ctx context.Context, event Event) {
	p.next.Publish(ctx, withDefaults(event, p.fields))
}

// WithFields decorates a publisher so every event carries the given extras.
// Fields already present on an event win.
func WithFields(p Publisher, fields map[string]any) Publisher {
	if p == nil {
		return NopPublisher()
	}
	if len(fields) == 0 {
		return p
	}
	return &fieldPublisher{next: p, fields: maps.Clone(fields)}
}
