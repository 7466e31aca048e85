package chat

import "errors"

// Validation failures are the only errors surfaced to the initiating user.
// Everything else (drift, fan-out failures) is logged and self-healed.
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomClosed     = errors.New("room is closed")
	ErrRoomExists     = errors.New("room already exists")
	ErrRoomNotPrivate = errors.New("room is not private")
	ErrAccessDenied   = errors.New("you do not have access to this room")
	ErrNotInRoom      = errors.New("you are not in this room")
	ErrUserNotFound   = errors.New("user not found")
	ErrMessageTooLong = errors.New("message is too long")
)
