package ws

// Wire error codes. The human-readable text travels alongside in the
// error field.
const (
	CodeValidation   = "VALIDATION"
	CodeNotFound     = "NOT_FOUND"
	CodeExpired      = "EXPIRED"
	CodeNotMember    = "NOT_MEMBER"
	CodeForbidden    = "FORBIDDEN"
	CodeCapacity     = "CAPACITY"
	CodeStoreFailure = "STORE_FAILURE"
)

// clientFrame is the inbound envelope. One flat struct covers every
// client frame type; dispatch happens on Type.
type clientFrame struct {
	Type            string `json:"type"`
	RoomCode        string `json:"roomCode,omitempty"`
	SessionID       string `json:"sessionId,omitempty"`
	Username        string `json:"username,omitempty"`
	Content         string `json:"content,omitempty"`
	Encrypted       bool   `json:"encrypted,omitempty"`
	IsTyping        bool   `json:"isTyping,omitempty"`
	TargetSessionID string `json:"targetSessionId,omitempty"`
}

// WireUser identifies a member inside hub→client frames.
type WireUser struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	SessionID string `json:"sessionId,omitempty"`
	IsAdmin   bool   `json:"isAdmin"`
}

type pongFrame struct {
	Type string `json:"type"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type joinedFrame struct {
	Type        string   `json:"type"`
	RoomCode    string   `json:"roomCode"`
	User        WireUser `json:"user"`
	MemberCount int      `json:"memberCount"`
}

type userJoinedFrame struct {
	Type        string   `json:"type"`
	User        WireUser `json:"user"`
	MemberCount int      `json:"memberCount"`
}

type userLeftFrame struct {
	Type        string   `json:"type"`
	User        WireUser `json:"user"`
	SessionID   string   `json:"sessionId"`
	MemberCount int      `json:"memberCount"`
}

type userKickedFrame struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	User      *WireUser `json:"user,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

type messageFrame struct {
	Type      string   `json:"type"`
	ID        uint     `json:"id"`
	Content   string   `json:"content"`
	Encrypted bool     `json:"encrypted"`
	User      WireUser `json:"user"`
	SessionID string   `json:"sessionId"`
	Timestamp int64    `json:"timestamp"`
}

type typingFrame struct {
	Type      string   `json:"type"`
	User      WireUser `json:"user"`
	SessionID string   `json:"sessionId"`
	IsTyping  bool     `json:"isTyping"`
}

type roomExpiredFrame struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode"`
}
