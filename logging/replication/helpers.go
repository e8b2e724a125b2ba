package replication

import (
	"context"

	"netsync/logging"
)

const (
	// EventOverlapHazard is emitted once per entity when a ToFrom direction has overlapping filters.
	EventOverlapHazard logging.EventType = "replication.overlap_hazard"
	// EventSendFailed is emitted for every envelope the transport refused.
	EventSendFailed logging.EventType = "replication.send_failed"
	// EventDecodeFailed is emitted when a winning payload cannot be decoded.
	EventDecodeFailed logging.EventType = "replication.decode_failed"
	// EventForcedResync is emitted when an outbound pass consumes resync signals.
	EventForcedResync logging.EventType = "replication.forced_resync"
	// EventUpdateApplied is emitted when an inbound update is written to an attribute.
	EventUpdateApplied logging.EventType = "replication.update_applied"
	// EventChannelRegistered is emitted when an attribute channel is wired.
	EventChannelRegistered logging.EventType = "replication.channel_registered"
)

// OverlapPayload describes the overlapping filters of a ToFrom direction.
type OverlapPayload struct {
	Message string `json:"message"`
	To      string `json:"to"`
	From    string `json:"from"`
}

// SendFailedPayload identifies the failed send attempt.
type SendFailedPayload struct {
	Message   string `json:"message"`
	Recipient uint64 `json:"recipient"`
	Error     string `json:"error"`
}

// DecodeFailedPayload identifies the payload that could not be decoded.
type DecodeFailedPayload struct {
	Message string `json:"message"`
	Sender  uint64 `json:"sender"`
	Error   string `json:"error"`
}

// ForcedResyncPayload summarises the drained resync signals.
type ForcedResyncPayload struct {
	Message  string `json:"message"`
	All      bool   `json:"all"`
	Entities int    `json:"entities"`
}

// UpdateAppliedPayload captures the accepted update.
type UpdateAppliedPayload struct {
	Message    string  `json:"message"`
	Sender     uint64  `json:"sender"`
	SendTime   *uint32 `json:"sendTime,omitempty"`
	Candidates int     `json:"candidates"`
}

// ChannelRegisteredPayload describes a newly wired channel.
type ChannelRegisteredPayload struct {
	Message     string `json:"message"`
	Reliability string `json:"reliability"`
	Role        string `json:"role"`
}

// OverlapHazard publishes a warning about overlapping ToFrom filters.
func OverlapHazard(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload OverlapPayload, extra map[string]any) {
	publish(ctx, pub, EventOverlapHazard, logging.SeverityWarn, tick, actor, payload, extra)
}

// SendFailed publishes an error for a refused envelope.
func SendFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SendFailedPayload, extra map[string]any) {
	publish(ctx, pub, EventSendFailed, logging.SeverityError, tick, actor, payload, extra)
}

// DecodeFailed publishes a warning for an undecodable payload.
func DecodeFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DecodeFailedPayload, extra map[string]any) {
	publish(ctx, pub, EventDecodeFailed, logging.SeverityWarn, tick, actor, payload, extra)
}

// ForcedResync publishes a debug event for consumed resync signals.
func ForcedResync(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ForcedResyncPayload, extra map[string]any) {
	publish(ctx, pub, EventForcedResync, logging.SeverityDebug, tick, actor, payload, extra)
}

// UpdateApplied publishes a debug event for an applied update.
func UpdateApplied(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload UpdateAppliedPayload, extra map[string]any) {
	publish(ctx, pub, EventUpdateApplied, logging.SeverityDebug, tick, actor, payload, extra)
}

// ChannelRegistered publishes an info event for a wired channel.
func ChannelRegistered(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ChannelRegisteredPayload, extra map[string]any) {
	publish(ctx, pub, EventChannelRegistered, logging.SeverityInfo, tick, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	})
}
