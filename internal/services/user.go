package services

import (
	"errors"
	"time"

	"github.com/utsavbhardwaj/secretroom/internal/models"

	"gorm.io/gorm"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// FindOrCreate resolves the client-held session id to a user row, creating
// one on first contact and refreshing the username if it changed.
func (s *UserService) FindOrCreate(sessionID, username string) (*models.User, error) {
	var user models.User
	err := s.db.Where("session_id = ?", sessionID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			SessionID: sessionID,
			Username:  username,
			IsActive:  true,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}

	if user.Username != username || !user.IsActive {
		user.Username = username
		user.IsActive = true
		if err := s.db.Save(&user).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

func (s *UserService) ByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// DeactivateStale marks users inactive when they have not been touched since
// the cutoff and hold no active membership. Used by the retention sweep.
func (s *UserService) DeactivateStale(cutoff time.Time) (int64, error) {
	res := s.db.Model(&models.User{}).
		Where("is_active = ? AND updated_at < ?", true, cutoff).
		Where("id NOT IN (?)", s.db.Model(&models.RoomMember{}).
			Select("user_id").Where("is_active = ?", true)).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
