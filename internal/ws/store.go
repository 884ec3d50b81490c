package ws

import (
	"github.com/utsavbhardwaj/secretroom/internal/models"
	"github.com/utsavbhardwaj/secretroom/internal/services"
)

// Store is the slice of the durable room store the hub depends on. The
// store is authoritative for correctness gates (room active, membership
// active); the hub's registry is authoritative only for who is reachable
// right now. Implemented by services.RoomService; tests supply a fake.
type Store interface {
	// ActiveRoomByCode returns services.ErrRoomNotFound or
	// services.ErrRoomExpired for dead rooms.
	ActiveRoomByCode(code string) (*models.Room, error)

	// ActiveMember returns services.ErrNotMember when (room, session) has
	// no active membership row.
	ActiveMember(roomID uint, sessionID string) (*services.MemberInfo, error)

	// DeactivateMember marks the membership row inactive with a leave
	// timestamp. Idempotent.
	DeactivateMember(roomID uint, sessionID string) error

	// SetMemberCount persists the live connection count. Advisory.
	SetMemberCount(roomID uint, count int) error

	SaveMessage(msg *models.Message) error
}
