package proto

import (
	"encoding/json"
	"errors"
	"fmt"

	"netsync/replication"
)

// Version tracks the wire-protocol revision both ends must speak.
const Version = 1

var (
	// ErrVersion reports a frame from an incompatible protocol revision.
	ErrVersion = errors.New("unsupported protocol version")
	// ErrMalformed reports a frame that is not valid JSON or misses required fields.
	ErrMalformed = errors.New("malformed frame")
)

// Frame is the JSON envelope carried by one websocket text message. The
// payload is the attribute codec's output, base64 encoded by encoding/json.
type Frame struct {
	Ver     int     `json:"ver"`
	Type    string  `json:"type"`
	Entity  uint64  `json:"entity"`
	Payload []byte  `json:"payload"`
	Time    *uint32 `json:"time,omitempty"`
}

// EncodeFrame renders an envelope of message type msg. The sender is never
// encoded; receivers stamp it from the connection.
func EncodeFrame(msg replication.MessageType, env replication.Envelope) ([]byte, error) {
	if msg == "" {
		return nil, fmt.Errorf("encode frame: %w: empty type", ErrMalformed)
	}
	return json.Marshal(Frame{
		Ver:     Version,
		Type:    string(msg),
		Entity:  uint64(env.Entity),
		Payload: env.Payload,
		Time:    env.Time.Pointer(),
	})
}

// DecodeFrame parses a frame. A missing version is treated as the current
// one.
func DecodeFrame(data []byte) (replication.MessageType, replication.Envelope, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return "", replication.Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if frame.Ver == 0 {
		frame.Ver = Version
	}
	if frame.Ver != Version {
		return "", replication.Envelope{}, fmt.Errorf("%w %d", ErrVersion, frame.Ver)
	}
	if frame.Type == "" {
		return "", replication.Envelope{}, fmt.Errorf("%w: empty type", ErrMalformed)
	}
	return replication.MessageType(frame.Type), replication.Envelope{
		Entity:  replication.EntityID(frame.Entity),
		Payload: frame.Payload,
		Time:    replication.SendTimeFrom(frame.Time),
	}, nil
}
