package models

import "time"

type Room struct {
	ID                         uint         `gorm:"primaryKey" json:"id"`
	Code                       string       `gorm:"size:8;not null;uniqueIndex" json:"code"`
	AdminID                    uint         `gorm:"not null;index" json:"admin_id"`
	Duration                   int          `gorm:"not null" json:"duration"` // minutes
	MaxMembers                 int          `gorm:"default:10" json:"max_members"`
	EnableScreenshotProtection bool         `gorm:"default:true" json:"enable_screenshot_protection"`
	EnableMessageEncryption    bool         `gorm:"default:true" json:"enable_message_encryption"`
	MemberCount                int          `gorm:"default:0" json:"member_count"`
	IsActive                   bool         `gorm:"default:true;index" json:"is_active"`
	Members                    []RoomMember `gorm:"foreignKey:RoomID" json:"members,omitempty"`
	CreatedAt                  time.Time    `json:"created_at"`
	ExpiresAt                  time.Time    `gorm:"not null;index" json:"expires_at"`
}

// Expired reports whether the room's lifetime has elapsed. The is_active
// flag is flipped lazily (on read or by the cleanup sweep), so callers
// must check both.
func (r *Room) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

type RoomMember struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	RoomID    uint       `gorm:"not null;index" json:"room_id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	SessionID string     `gorm:"size:255;not null;index" json:"session_id"`
	IsAdmin   bool       `gorm:"default:false" json:"is_admin"`
	IsActive  bool       `gorm:"default:true" json:"is_active"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}
