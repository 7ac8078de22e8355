package orders

import (
	"context"

	"hunt-arena/server/logging"
)

const (
	// EventLoopCapExceeded is emitted when a unit's order loop runs out of
	// iterations before its tick budget is spent.
	EventLoopCapExceeded logging.EventType = "orders.loop_cap_exceeded"
	// EventOrderCancelled is emitted when the engine drops an order it can
	// no longer carry out.
	EventOrderCancelled logging.EventType = "orders.cancelled"
	// EventBlockedPath is emitted on each escalation step of a blocked path.
	EventBlockedPath logging.EventType = "orders.blocked_path"
)

// LoopCapPayload captures the state left over when the loop cap tripped.
type LoopCapPayload struct {
	Order      string  `json:"order"`
	Iterations int     `json:"iterations"`
	Remaining  float64 `json:"remaining"`
}

// CancelledPayload names the order and why it was dropped.
type CancelledPayload struct {
	Order  string `json:"order"`
	Reason string `json:"reason"`
}

// BlockedPathPayload describes one retry step.
type BlockedPathPayload struct {
	Order      string `json:"order"`
	Step       string `json:"step"`
	PathLength int    `json:"pathLength"`
}

// LoopCapExceeded publishes a warning for a tripped order loop cap.
func LoopCapExceeded(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload LoopCapPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventLoopCapExceeded,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryOrders,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// OrderCancelled publishes an info event for a dropped order.
func OrderCancelled(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CancelledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventOrderCancelled,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryOrders,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// BlockedPath publishes a debug event for a blocked path retry.
func BlockedPath(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload BlockedPathPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventBlockedPath,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryOrders,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
