package exception

import "github.com/yanun0323/errors"

var (
	ErrBusNilHandler     = errors.New("bus: nil handler")
	ErrBusUnknownKind    = errors.New("bus: unknown event kind")
	ErrBusHandlerPanic   = errors.New("bus: handler panic")
	ErrBusQueueFull      = errors.New("bus: event queue full")
	ErrBusQueueClosed    = errors.New("bus: event queue closed")
	ErrBusPayloadMissing = errors.New("bus: payload key missing")
	ErrBusPayloadType    = errors.New("bus: payload key has unexpected type")
)
