package services

import "errors"

// Sentinel errors returned by the store services. gorm.ErrRecordNotFound is
// translated into these at the service boundary and never leaked upward.
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExpired     = errors.New("room has expired")
	ErrRoomFull        = errors.New("room is full")
	ErrNotMember       = errors.New("not a member of this room")
	ErrMemberNotFound  = errors.New("member not found")
	ErrAdminRequired   = errors.New("admin access required")
	ErrCannotKickAdmin = errors.New("cannot kick admin")
	ErrCodeExhausted   = errors.New("failed to generate unique room code")
)
