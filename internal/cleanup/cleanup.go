package cleanup

import (
	"context"
	"time"

	"github.com/utsavbhardwaj/secretroom/internal/models"

	"github.com/sirupsen/logrus"
)

// RoomStore is the slice of the durable store the sweep needs.
// Implemented by services.RoomService.
type RoomStore interface {
	ExpiredActiveRooms(now time.Time) ([]models.Room, error)
	DeactivateRoom(roomID uint) error
	DeactivateRoomMembers(roomID uint, now time.Time) (int64, error)
	RoomsInactiveSince(cutoff time.Time) ([]models.Room, error)
	DeleteRoomMessages(roomID uint) (int64, error)
	DeactivateOrphanedMembers(now time.Time) (int64, error)
}

// UserStore is implemented by services.UserService.
type UserStore interface {
	DeactivateStale(cutoff time.Time) (int64, error)
}

// Broadcaster lets the sweep force-close the live sockets of an expired
// room. Implemented by ws.Hub.
type Broadcaster interface {
	ExpireRoom(roomCode string) int
}

// Sweeper is the consistency backstop between the live connection layer
// and the durable store. The eviction path keeps them in sync during
// normal operation; the sweep guarantees convergence after crashes, missed
// broadcasts, or clock drift.
type Sweeper struct {
	rooms RoomStore
	users UserStore
	hub   Broadcaster

	interval         time.Duration
	messageRetention time.Duration
	userRetention    time.Duration
}

func NewSweeper(rooms RoomStore, users UserStore, hub Broadcaster, interval, messageRetention, userRetention time.Duration) *Sweeper {
	return &Sweeper{
		rooms:            rooms,
		users:            users,
		hub:              hub,
		interval:         interval,
		messageRetention: messageRetention,
		userRetention:    userRetention,
	}
}

// Run sweeps once immediately, then on every tick until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	logrus.WithField("interval", s.interval.String()).Info("cleanup service started")
	s.Sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("cleanup service stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one full cycle. Each task isolates its own failures so one
// bad room never starves the rest of the cycle.
func (s *Sweeper) Sweep() {
	now := time.Now()
	s.expireRooms(now)
	s.purgeOldMessages(now)
	s.deactivateStaleUsers(now)
	s.repairOrphanedMembers(now)
}

// expireRooms deactivates rooms whose expiry instant has passed, bulk-marks
// their memberships as left, and tears down any sockets still registered.
func (s *Sweeper) expireRooms(now time.Time) {
	expired, err := s.rooms.ExpiredActiveRooms(now)
	if err != nil {
		logrus.WithError(err).Error("cleanup: expired room query failed")
		return
	}

	for _, room := range expired {
		log := logrus.WithField("room", room.Code)
		if err := s.rooms.DeactivateRoom(room.ID); err != nil {
			log.WithError(err).Error("cleanup: failed to deactivate room")
			continue
		}
		members, err := s.rooms.DeactivateRoomMembers(room.ID, now)
		if err != nil {
			log.WithError(err).Error("cleanup: failed to deactivate members")
		}
		closed := s.hub.ExpireRoom(room.Code)
		log.WithFields(logrus.Fields{
			"members": members,
			"closed":  closed,
		}).Info("cleanup: expired room")
	}
}

// purgeOldMessages deletes message rows of rooms that expired before the
// retention window.
func (s *Sweeper) purgeOldMessages(now time.Time) {
	cutoff := now.Add(-s.messageRetention)
	old, err := s.rooms.RoomsInactiveSince(cutoff)
	if err != nil {
		logrus.WithError(err).Error("cleanup: old room query failed")
		return
	}

	var total int64
	for _, room := range old {
		deleted, err := s.rooms.DeleteRoomMessages(room.ID)
		if err != nil {
			logrus.WithField("room", room.Code).WithError(err).Error("cleanup: failed to delete messages")
			continue
		}
		total += deleted
	}
	if total > 0 {
		logrus.WithField("deleted", total).Info("cleanup: purged old messages")
	}
}

func (s *Sweeper) deactivateStaleUsers(now time.Time) {
	cutoff := now.Add(-s.userRetention)
	n, err := s.users.DeactivateStale(cutoff)
	if err != nil {
		logrus.WithError(err).Error("cleanup: stale user update failed")
		return
	}
	if n > 0 {
		logrus.WithField("users", n).Info("cleanup: deactivated stale users")
	}
}

// repairOrphanedMembers deactivates memberships left active on inactive
// rooms, e.g. when a process restart skipped the eviction path.
func (s *Sweeper) repairOrphanedMembers(now time.Time) {
	n, err := s.rooms.DeactivateOrphanedMembers(now)
	if err != nil {
		logrus.WithError(err).Error("cleanup: orphan repair failed")
		return
	}
	if n > 0 {
		logrus.WithField("members", n).Info("cleanup: repaired orphaned memberships")
	}
}
