package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/utsavbhardwaj/secretroom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoomStore struct {
	mu sync.Mutex

	expired       []models.Room
	expiredErr    error
	inactive      []models.Room
	inactiveErr   error
	deactivateErr map[uint]error

	deactivatedRooms   []uint
	deactivatedMembers []uint
	deletedMessages    []uint
	orphanCalls        int
	inactiveCutoff     time.Time
}

func (f *fakeRoomStore) ExpiredActiveRooms(now time.Time) ([]models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expired, f.expiredErr
}

func (f *fakeRoomStore) DeactivateRoom(roomID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deactivateErr[roomID]; err != nil {
		return err
	}
	f.deactivatedRooms = append(f.deactivatedRooms, roomID)
	return nil
}

func (f *fakeRoomStore) DeactivateRoomMembers(roomID uint, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivatedMembers = append(f.deactivatedMembers, roomID)
	return 2, nil
}

func (f *fakeRoomStore) RoomsInactiveSince(cutoff time.Time) ([]models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inactiveCutoff = cutoff
	return f.inactive, f.inactiveErr
}

func (f *fakeRoomStore) DeleteRoomMessages(roomID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedMessages = append(f.deletedMessages, roomID)
	return 5, nil
}

func (f *fakeRoomStore) DeactivateOrphanedMembers(now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orphanCalls++
	return 1, nil
}

type fakeUserStore struct {
	mu     sync.Mutex
	cutoff time.Time
	calls  int
	err    error
}

func (f *fakeUserStore) DeactivateStale(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = cutoff
	f.calls++
	return 3, f.err
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	expired []string
}

func (f *fakeBroadcaster) ExpireRoom(roomCode string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, roomCode)
	return 1
}

func newTestSweeper(rooms *fakeRoomStore, users *fakeUserStore, hub *fakeBroadcaster) *Sweeper {
	return NewSweeper(rooms, users, hub, time.Minute, 7*24*time.Hour, 30*24*time.Hour)
}

func TestSweepExpiresRooms(t *testing.T) {
	rooms := &fakeRoomStore{
		expired: []models.Room{
			{ID: 1, Code: "11111111"},
			{ID: 2, Code: "22222222"},
		},
	}
	users := &fakeUserStore{}
	hub := &fakeBroadcaster{}

	newTestSweeper(rooms, users, hub).Sweep()

	assert.Equal(t, []uint{1, 2}, rooms.deactivatedRooms)
	assert.Equal(t, []uint{1, 2}, rooms.deactivatedMembers)
	assert.Equal(t, []string{"11111111", "22222222"}, hub.expired)
}

func TestSweepContinuesPastRoomFailure(t *testing.T) {
	rooms := &fakeRoomStore{
		expired: []models.Room{
			{ID: 1, Code: "11111111"},
			{ID: 2, Code: "22222222"},
		},
		deactivateErr: map[uint]error{1: errors.New("deadlock")},
	}
	users := &fakeUserStore{}
	hub := &fakeBroadcaster{}

	newTestSweeper(rooms, users, hub).Sweep()

	// Room 1 failed before its fan-out; room 2 still went through, and so
	// did every later task in the cycle.
	assert.Equal(t, []uint{2}, rooms.deactivatedRooms)
	assert.Equal(t, []string{"22222222"}, hub.expired)
	assert.Equal(t, 1, users.calls)
	assert.Equal(t, 1, rooms.orphanCalls)
}

func TestSweepContinuesPastQueryFailure(t *testing.T) {
	rooms := &fakeRoomStore{
		expiredErr:  errors.New("connection refused"),
		inactiveErr: errors.New("connection refused"),
	}
	users := &fakeUserStore{}
	hub := &fakeBroadcaster{}

	newTestSweeper(rooms, users, hub).Sweep()

	assert.Empty(t, hub.expired)
	assert.Equal(t, 1, users.calls)
	assert.Equal(t, 1, rooms.orphanCalls)
}

func TestSweepPurgesMessagesPastRetention(t *testing.T) {
	rooms := &fakeRoomStore{
		inactive: []models.Room{
			{ID: 7, Code: "77777777"},
		},
	}
	users := &fakeUserStore{}
	hub := &fakeBroadcaster{}

	before := time.Now()
	newTestSweeper(rooms, users, hub).Sweep()

	assert.Equal(t, []uint{7}, rooms.deletedMessages)

	wantCutoff := before.Add(-7 * 24 * time.Hour)
	require.False(t, rooms.inactiveCutoff.IsZero())
	assert.WithinDuration(t, wantCutoff, rooms.inactiveCutoff, time.Minute)
}

func TestSweepDeactivatesStaleUsers(t *testing.T) {
	rooms := &fakeRoomStore{}
	users := &fakeUserStore{}
	hub := &fakeBroadcaster{}

	before := time.Now()
	newTestSweeper(rooms, users, hub).Sweep()

	assert.Equal(t, 1, users.calls)
	wantCutoff := before.Add(-30 * 24 * time.Hour)
	assert.WithinDuration(t, wantCutoff, users.cutoff, time.Minute)
}

func TestRunSweepsImmediatelyAndStops(t *testing.T) {
	rooms := &fakeRoomStore{}
	users := &fakeUserStore{}
	hub := &fakeBroadcaster{}
	sweeper := NewSweeper(rooms, users, hub, time.Hour, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	// The first sweep happens before the first tick.
	assert.Eventually(t, func() bool {
		users.mu.Lock()
		defer users.mu.Unlock()
		return users.calls == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
