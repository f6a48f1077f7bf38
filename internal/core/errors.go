package core

import "errors"

// Error codes reported on the optional error reply and as rejection reasons.
const (
	ErrCodeInvalidJoin      = "invalid_join"
	ErrCodeNotJoined        = "not_joined"
	ErrCodeMalformedMessage = "malformed_message"
	ErrCodeUnknownType      = "unknown_type"
	ErrCodeRateLimited      = "rate_limited"
)

var (
	// ErrInvalidJoin is a join without a room reference.
	ErrInvalidJoin = errors.New("invalid join: room id is required")
	// ErrNotJoined is a room-scoped message sent before joining, or for another room.
	ErrNotJoined = errors.New("not joined to room")
	// ErrUnknownMember is a state update for a member the room has no record of.
	ErrUnknownMember = errors.New("unknown member")
	// ErrConnectionGone is a send to a connection that already closed.
	ErrConnectionGone = errors.New("connection gone")
	// ErrSendBufferFull is a send to a connection whose outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrNotFound is a lookup of a connection the registry does not hold.
	ErrNotFound = errors.New("connection not found")
)
