package network

import (
	"context"

	"netsync/logging"
)

const (
	// EventFrameDropped is emitted when the transport discards an inbound frame.
	EventFrameDropped logging.EventType = "network.frame_dropped"
)

// Frame drop reasons.
const (
	DropMalformed    = "malformed"
	DropUnregistered = "unregistered"
	DropRateLimited  = "rate_limited"
	DropBacklog      = "backlog"
)

// FrameDroppedPayload captures why an inbound frame was discarded.
type FrameDroppedPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// FrameDropped publishes a warning event for a discarded inbound frame.
func FrameDropped(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload FrameDroppedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFrameDropped,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
