package network

import (
	"context"

	"hunt-arena/server/logging"
)

const (
	// EventObserverConnected is emitted when a websocket observer attaches.
	EventObserverConnected logging.EventType = "network.observer_connected"
	// EventObserverDisconnected is emitted when a websocket observer detaches.
	EventObserverDisconnected logging.EventType = "network.observer_disconnected"
)

// ObserverPayload describes an observer session.
type ObserverPayload struct {
	RemoteAddr string `json:"remoteAddr,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ObserverConnected publishes an info event for a new observer session.
func ObserverConnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ObserverPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventObserverConnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// ObserverDisconnected publishes an info event when an observer leaves.
func ObserverDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ObserverPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventObserverDisconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}
