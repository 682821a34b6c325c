package domain

import "errors"

// ErrDisconnected is returned by Emit when the push channel is down.
// Callers fall back to REST; the channel reconnects on its own.
var ErrDisconnected = errors.New("push channel disconnected")

// HandlerID identifies a registered listener for later removal.
// Consumers must call Off on unmount or listeners leak across
// conversation switches.
type HandlerID string

// PushChannel is the single process-wide push connection. Exactly one
// network connection exists no matter how many components hold the
// handle; construct it once and inject it (no package-level singleton).
type PushChannel interface {
	// On registers fn for every inbound ServerEvent.
	On(fn func(ServerEvent)) HandlerID
	// Off removes a listener registered with On.
	Off(id HandlerID)
	// Emit sends a ClientEvent, failing fast with ErrDisconnected when
	// the connection is down.
	Emit(ev ClientEvent) error
	// Connected reports the current transport state.
	Connected() bool
}
