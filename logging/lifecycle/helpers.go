package lifecycle

import (
	"context"

	"netsync/logging"
)

const (
	// EventPeerConnected is emitted when the authority accepts a peer connection.
	EventPeerConnected logging.EventType = "lifecycle.peer_connected"
	// EventPeerDisconnected is emitted when a peer connection closes.
	EventPeerDisconnected logging.EventType = "lifecycle.peer_disconnected"
)

// PeerConnectedPayload captures connection metadata for a new peer.
type PeerConnectedPayload struct {
	Session    string `json:"session"`
	RemoteAddr string `json:"remoteAddr"`
}

// PeerDisconnectedPayload captures the reason a peer left.
type PeerDisconnectedPayload struct {
	Session string `json:"session"`
	Reason  string `json:"reason"`
}

// PeerConnected publishes a peer join event.
func PeerConnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerConnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPeerConnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
		TraceID:  payload.Session,
	}
	pub.Publish(ctx, event)
}

// PeerDisconnected publishes a peer leave event.
func PeerDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerDisconnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPeerDisconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
		TraceID:  payload.Session,
	}
	pub.Publish(ctx, event)
}
