package replication

import (
	"encoding/json"
	"fmt"
)

// Codec converts an attribute value to and from its wire payload. Encode and
// Decode must be inverses up to the precision the attribute declares.
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// JSONCodec encodes the attribute value itself as JSON.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}

func (JSONCodec[T]) Decode(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

// MirrorCodec sends an attribute through a net-able mirror type M. The mirror
// conversions may narrow precision; that loss is part of the attribute's
// contract.
type MirrorCodec[T, M any] struct {
	toWire   func(T) M
	fromWire func(M) T
	wire     JSONCodec[M]
}

// Mirror builds a codec from a pair of conversions between T and M.
func Mirror[T, M any](toWire func(T) M, fromWire func(M) T) MirrorCodec[T, M] {
	return MirrorCodec[T, M]{toWire: toWire, fromWire: fromWire}
}

func (c MirrorCodec[T, M]) Encode(v T) ([]byte, error) {
	return c.wire.Encode(c.toWire(v))
}

func (c MirrorCodec[T, M]) Decode(data []byte) (T, error) {
	m, err := c.wire.Decode(data)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.fromWire(m), nil
}
