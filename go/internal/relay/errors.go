package relay

import "errors"

// Protocol usage errors. They are answered with an error response and count
// towards the per-session error threshold.
var (
	ErrDuplicateRole     = errors.New("role already declared")
	ErrRoleMismatch      = errors.New("command not allowed for this role")
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrProtocolViolation = errors.New("client type must be declared first")
)

// Session and lookup errors
var (
	ErrSessionClosed      = errors.New("session closed")
	ErrSendBufferFull     = errors.New("send buffer full")
	ErrPlayerNotConnected = errors.New("player not connected")
)
