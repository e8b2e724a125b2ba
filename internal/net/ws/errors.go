package ws

import "errors"

var (
	// ErrUnknownConnection is returned when sending to a connection that is not open.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrBackpressure is returned when a connection's send queue is full.
	ErrBackpressure = errors.New("send queue full")
	// ErrClosed is returned after the transport was closed.
	ErrClosed = errors.New("transport closed")
)
