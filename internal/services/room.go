package services

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/utsavbhardwaj/secretroom/internal/models"

	"gorm.io/gorm"
)

const codeAttempts = 10

var roomCodePattern = regexp.MustCompile(`^[0-9]{8}$`)

// ValidRoomCode reports whether code has the 8-digit shareable format.
func ValidRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}

type RoomService struct {
	db *gorm.DB
}

func NewRoomService(db *gorm.DB) *RoomService {
	return &RoomService{db: db}
}

// MemberInfo is the membership row joined with its user, as exposed to the
// hub and the HTTP member list.
type MemberInfo struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	SessionID string    `json:"session_id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	JoinedAt  time.Time `json:"joined_at"`
}

// MessageInfo is a message row joined with its author.
type MessageInfo struct {
	ID          uint      `json:"id"`
	Content     string    `json:"content"`
	Encrypted   bool      `json:"encrypted"`
	MessageType string    `json:"message_type"`
	SessionID   string    `json:"session_id"`
	UserID      uint      `json:"user_id"`
	Username    string    `json:"username"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *RoomService) Create(admin *models.User, duration, maxMembers int, screenshotProtection, messageEncryption bool) (*models.Room, error) {
	code, err := s.generateUniqueCode()
	if err != nil {
		return nil, err
	}

	room := models.Room{
		Code:                       code,
		AdminID:                    admin.ID,
		Duration:                   duration,
		MaxMembers:                 maxMembers,
		EnableScreenshotProtection: screenshotProtection,
		EnableMessageEncryption:    messageEncryption,
		MemberCount:                1,
		IsActive:                   true,
		ExpiresAt:                  time.Now().Add(time.Duration(duration) * time.Minute),
	}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, err
	}

	member := models.RoomMember{
		RoomID:    room.ID,
		UserID:    admin.ID,
		SessionID: admin.SessionID,
		IsAdmin:   true,
		IsActive:  true,
		JoinedAt:  time.Now(),
	}
	if err := s.db.Create(&member).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// generateUniqueCode draws 8-digit codes until one is free, bounded by
// codeAttempts so a dense code space surfaces as an error instead of a spin.
func (s *RoomService) generateUniqueCode() (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := fmt.Sprintf("%08d", 10000000+rand.Intn(90000000))
		var count int64
		if err := s.db.Model(&models.Room{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

// ActiveRoomByCode finds a live room. A room found past its expiry instant is
// flipped inactive on the spot and reported as expired, so readers never see
// a stale-active room regardless of sweep timing.
func (s *RoomService) ActiveRoomByCode(code string) (*models.Room, error) {
	var room models.Room
	err := s.db.Where("code = ? AND is_active = ?", code, true).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}

	if room.Expired(time.Now()) {
		if err := s.DeactivateRoom(room.ID); err != nil {
			return nil, err
		}
		return nil, ErrRoomExpired
	}
	return &room, nil
}

// RoomByCode finds a room regardless of its active flag. Used by leave,
// which must still work against a just-expired room.
func (s *RoomService) RoomByCode(code string) (*models.Room, error) {
	var room models.Room
	err := s.db.Where("code = ?", code).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Join adds the user to the room. Re-joining with an already-active
// membership for the same session is a no-op returning the existing row.
func (s *RoomService) Join(room *models.Room, user *models.User) (*models.RoomMember, bool, error) {
	var existing models.RoomMember
	err := s.db.Where("room_id = ? AND session_id = ? AND is_active = ?",
		room.ID, user.SessionID, true).First(&existing).Error
	if err == nil {
		return &existing, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if room.MemberCount >= room.MaxMembers {
		return nil, false, ErrRoomFull
	}

	member := models.RoomMember{
		RoomID:    room.ID,
		UserID:    user.ID,
		SessionID: user.SessionID,
		IsAdmin:   false,
		IsActive:  true,
		JoinedAt:  time.Now(),
	}
	if err := s.db.Create(&member).Error; err != nil {
		return nil, false, err
	}

	if err := s.db.Model(room).Update("member_count", gorm.Expr("member_count + 1")).Error; err != nil {
		return nil, false, err
	}
	room.MemberCount++
	return &member, false, nil
}

// Leave deactivates the caller's membership and decrements the advisory
// member count. Leaving a room you are not in is not an error.
func (s *RoomService) Leave(roomID uint, sessionID string) error {
	var member models.RoomMember
	err := s.db.Where("room_id = ? AND session_id = ? AND is_active = ?",
		roomID, sessionID, true).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.DeactivateMember(roomID, sessionID); err != nil {
		return err
	}
	return s.db.Model(&models.Room{}).
		Where("id = ? AND member_count > 0", roomID).
		Update("member_count", gorm.Expr("member_count - 1")).Error
}

// ActiveMember returns the active membership for (room, session) joined with
// its user, or ErrNotMember.
func (s *RoomService) ActiveMember(roomID uint, sessionID string) (*MemberInfo, error) {
	var info MemberInfo
	err := s.db.Model(&models.RoomMember{}).
		Select("room_members.id, room_members.user_id, room_members.session_id, room_members.is_admin, room_members.joined_at, users.username").
		Joins("INNER JOIN users ON users.id = room_members.user_id").
		Where("room_members.room_id = ? AND room_members.session_id = ? AND room_members.is_active = ?",
			roomID, sessionID, true).
		First(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *RoomService) Members(roomID uint) ([]MemberInfo, error) {
	var members []MemberInfo
	err := s.db.Model(&models.RoomMember{}).
		Select("room_members.id, room_members.user_id, room_members.session_id, room_members.is_admin, room_members.joined_at, users.username").
		Joins("INNER JOIN users ON users.id = room_members.user_id").
		Where("room_members.room_id = ? AND room_members.is_active = ?", roomID, true).
		Order("room_members.joined_at").
		Find(&members).Error
	return members, err
}

// RequireAdmin verifies the session holds an active admin membership.
func (s *RoomService) RequireAdmin(roomID uint, sessionID string) error {
	var count int64
	err := s.db.Model(&models.RoomMember{}).
		Where("room_id = ? AND session_id = ? AND is_admin = ? AND is_active = ?",
			roomID, sessionID, true, true).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrAdminRequired
	}
	return nil
}

// Kick deactivates the target's membership. The room admin cannot be kicked.
func (s *RoomService) Kick(roomID uint, targetSessionID string) error {
	var target models.RoomMember
	err := s.db.Where("room_id = ? AND session_id = ? AND is_active = ?",
		roomID, targetSessionID, true).First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMemberNotFound
	}
	if err != nil {
		return err
	}
	if target.IsAdmin {
		return ErrCannotKickAdmin
	}

	if err := s.DeactivateMember(roomID, targetSessionID); err != nil {
		return err
	}
	return s.db.Model(&models.Room{}).
		Where("id = ? AND member_count > 0", roomID).
		Update("member_count", gorm.Expr("member_count - 1")).Error
}

func (s *RoomService) Extend(roomID uint, minutes int) (*models.Room, error) {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return nil, err
	}
	room.ExpiresAt = room.ExpiresAt.Add(time.Duration(minutes) * time.Minute)
	if err := s.db.Model(&room).Update("expires_at", room.ExpiresAt).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// Close deactivates the room and all of its memberships in one pass.
func (s *RoomService) Close(roomID uint) error {
	if err := s.DeactivateRoom(roomID); err != nil {
		return err
	}
	_, err := s.DeactivateRoomMembers(roomID, time.Now())
	return err
}

// DeactivateMember marks one membership inactive with a leave timestamp.
// Step 2 of the eviction path; already-inactive rows are untouched.
func (s *RoomService) DeactivateMember(roomID uint, sessionID string) error {
	now := time.Now()
	return s.db.Model(&models.RoomMember{}).
		Where("room_id = ? AND session_id = ? AND is_active = ?", roomID, sessionID, true).
		Updates(map[string]interface{}{"is_active": false, "left_at": &now}).Error
}

// SetMemberCount persists the live connection count recomputed by the hub.
// Advisory display data, not a correctness gate.
func (s *RoomService) SetMemberCount(roomID uint, count int) error {
	return s.db.Model(&models.Room{}).Where("id = ?", roomID).
		Update("member_count", count).Error
}

func (s *RoomService) SaveMessage(msg *models.Message) error {
	return s.db.Create(msg).Error
}

// Messages returns a page of history in chronological order. Pagination
// walks backwards from the newest message.
func (s *RoomService) Messages(roomID uint, limit, offset int) ([]MessageInfo, error) {
	var msgs []MessageInfo
	err := s.db.Model(&models.Message{}).
		Select("messages.id, messages.content, messages.encrypted, messages.message_type, messages.session_id, messages.user_id, messages.created_at, users.username").
		Joins("INNER JOIN users ON users.id = messages.user_id").
		Where("messages.room_id = ?", roomID).
		Order("messages.created_at DESC").
		Limit(limit).Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *RoomService) DeactivateRoom(roomID uint) error {
	return s.db.Model(&models.Room{}).Where("id = ?", roomID).
		Update("is_active", false).Error
}

// ExpiredActiveRooms lists rooms whose lifetime elapsed but whose active
// flag has not been flipped yet.
func (s *RoomService) ExpiredActiveRooms(now time.Time) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.Where("is_active = ? AND expires_at <= ?", true, now).Find(&rooms).Error
	return rooms, err
}

// DeactivateRoomMembers bulk-deactivates every active membership of a room.
func (s *RoomService) DeactivateRoomMembers(roomID uint, now time.Time) (int64, error) {
	res := s.db.Model(&models.RoomMember{}).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Updates(map[string]interface{}{"is_active": false, "left_at": &now})
	return res.RowsAffected, res.Error
}

// RoomsInactiveSince lists rooms that expired before the cutoff and are
// already inactive; their messages are past retention.
func (s *RoomService) RoomsInactiveSince(cutoff time.Time) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.Where("is_active = ? AND expires_at < ?", false, cutoff).Find(&rooms).Error
	return rooms, err
}

func (s *RoomService) DeleteRoomMessages(roomID uint) (int64, error) {
	res := s.db.Where("room_id = ?", roomID).Delete(&models.Message{})
	return res.RowsAffected, res.Error
}

// DeactivateOrphanedMembers repairs memberships left active on inactive
// rooms, e.g. after a crash skipped the eviction path.
func (s *RoomService) DeactivateOrphanedMembers(now time.Time) (int64, error) {
	res := s.db.Model(&models.RoomMember{}).
		Where("is_active = ?", true).
		Where("room_id IN (?)", s.db.Model(&models.Room{}).
			Select("id").Where("is_active = ?", false)).
		Updates(map[string]interface{}{"is_active": false, "left_at": &now})
	return res.RowsAffected, res.Error
}

// StoreStats are the durable-side counters reported by /api/stats.
type StoreStats struct {
	TotalRooms    int64 `json:"total_rooms"`
	ActiveRooms   int64 `json:"active_rooms"`
	ActiveUsers   int64 `json:"active_users"`
	TotalMessages int64 `json:"total_messages"`
	ActiveMembers int64 `json:"active_members"`
}

func (s *RoomService) Stats() (*StoreStats, error) {
	var stats StoreStats
	if err := s.db.Model(&models.Room{}).Count(&stats.TotalRooms).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Room{}).Where("is_active = ?", true).Count(&stats.ActiveRooms).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.User{}).Where("is_active = ?", true).Count(&stats.ActiveUsers).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Message{}).Count(&stats.TotalMessages).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.RoomMember{}).Where("is_active = ?", true).Count(&stats.ActiveMembers).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}
