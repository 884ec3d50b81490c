package models

import "time"

// User is identified by a client-generated session id that survives
// reconnects. There are no accounts or passwords.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:255;not null;uniqueIndex" json:"session_id"`
	Username  string    `gorm:"size:50;not null" json:"username"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
