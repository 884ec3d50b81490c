package models

import "time"

const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"
)

// Message rows are append-only.
type Message struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RoomID      uint      `gorm:"not null;index" json:"room_id"`
	UserID      uint      `gorm:"not null" json:"user_id"`
	SessionID   string    `gorm:"size:255;not null" json:"session_id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Encrypted   bool      `gorm:"default:false" json:"encrypted"`
	MessageType string    `gorm:"size:20;default:'user'" json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}
