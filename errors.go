package linkcore

import "errors"

var (
	// ErrNilTransport is returned by New when no transport is supplied.
	ErrNilTransport = errors.New("linkcore: transport is nil")

	// ErrSessionActive is returned by Connect while a session is already
	// established or being established.
	ErrSessionActive = errors.New("linkcore: session already active or pending")

	// ErrNotConnected is returned by the send operations before a
	// session is established.
	ErrNotConnected = errors.New("linkcore: session not connected")

	// ErrDead is returned by the send operations after the session has
	// been marked dead; DeadReason explains why.
	ErrDead = errors.New("linkcore: session is dead")

	// ErrBusy is returned by Send while a previous reliable message is
	// still awaiting acknowledgment.
	ErrBusy = errors.New("linkcore: reliable message already in flight")

	// ErrPayloadTooLarge is returned when a payload exceeds the
	// per-frame maximum.
	ErrPayloadTooLarge = errors.New("linkcore: payload exceeds maximum frame size")

	// ErrTransmitFailed is returned when the transport could not take a
	// whole frame within the transmit-space budget.
	ErrTransmitFailed = errors.New("linkcore: frame transmission failed")
)
