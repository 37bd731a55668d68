package session

import "errors"

// Sentinel errors for room lifecycle and input admission. Handlers surface
// the message verbatim to the originating connection.
var (
	ErrOwnerNotFound     = errors.New("owner not found")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomNotJoinable   = errors.New("room is not accepting new players")
	ErrRoomFull          = errors.New("room is full")
	ErrNotOwner          = errors.New("only room owner can start the game")
	ErrInvalidTransition = errors.New("game already started or finished")
	ErrMalformedInput    = errors.New("invalid input format")
	ErrRateLimited       = errors.New("input rate limit exceeded")
	ErrNotInRoom         = errors.New("not in a room")
)
