package core

import "errors"

// Frame is a marshaled outbound event, ready for the wire.
type Frame []byte

// ConnID identifies one live transport session.
type ConnID string

var ErrBackpressure = errors.New("backpressure")

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
