package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/utsavbhardwaj/secretroom/internal/models"
	"github.com/utsavbhardwaj/secretroom/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   []interface{}
	closed   bool
	writeErr error
	pingErr  error
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.frames = append(f.frames, v)
	return nil
}

func (f *fakeConn) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// sent returns every recorded frame decoded into a generic map, so tests
// can assert on the wire shape rather than internal struct types.
func (f *fakeConn) sent(t *testing.T) []map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(f.frames))
	for _, frame := range f.frames {
		raw, err := json.Marshal(frame)
		require.NoError(t, err)
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) sentOfType(t *testing.T, frameType string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, m := range f.sent(t) {
		if m["type"] == frameType {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeConn) lastFrame(t *testing.T) map[string]interface{} {
	t.Helper()
	all := f.sent(t)
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

type fakeStore struct {
	mu      sync.Mutex
	rooms   map[string]*models.Room
	members map[uint]map[string]*services.MemberInfo
	deactivated []string
	counts      map[uint]int
	saved       []*models.Message
	saveErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:   make(map[string]*models.Room),
		members: make(map[uint]map[string]*services.MemberInfo),
		counts:  make(map[uint]int),
	}
}

func (s *fakeStore) addRoom(code string, maxMembers int, expiresAt time.Time) *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := &models.Room{
		ID:         uint(len(s.rooms) + 1),
		Code:       code,
		MaxMembers: maxMembers,
		IsActive:   true,
		ExpiresAt:  expiresAt,
	}
	s.rooms[code] = room
	s.members[room.ID] = make(map[string]*services.MemberInfo)
	return room
}

func (s *fakeStore) addMember(roomID uint, sessionID, username string, admin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[roomID][sessionID] = &services.MemberInfo{
		ID:        uint(len(s.members[roomID]) + 1),
		UserID:    uint(len(s.members[roomID]) + 100),
		SessionID: sessionID,
		Username:  username,
		IsAdmin:   admin,
	}
}

func (s *fakeStore) ActiveRoomByCode(code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok || !room.IsActive {
		return nil, services.ErrRoomNotFound
	}
	if room.Expired(time.Now()) {
		return nil, services.ErrRoomExpired
	}
	return room, nil
}

func (s *fakeStore) ActiveMember(roomID uint, sessionID string) (*services.MemberInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member, ok := s.members[roomID][sessionID]
	if !ok {
		return nil, services.ErrNotMember
	}
	return member, nil
}

func (s *fakeStore) DeactivateMember(roomID uint, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivated = append(s.deactivated, fmt.Sprintf("%d/%s", roomID, sessionID))
	delete(s.members[roomID], sessionID)
	return nil
}

func (s *fakeStore) SetMemberCount(roomID uint, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[roomID] = count
	return nil
}

func (s *fakeStore) SaveMessage(msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	msg.ID = uint(len(s.saved) + 1)
	msg.CreatedAt = time.Now()
	s.saved = append(s.saved, msg)
	return nil
}

func (s *fakeStore) deactivations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deactivated...)
}

func (s *fakeStore) savedMessages() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Message(nil), s.saved...)
}

func (s *fakeStore) memberCount(roomID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[roomID]
}

func frame(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func joinFrame(t *testing.T, code, session, username string) []byte {
	return frame(t, map[string]interface{}{
		"type":      "join",
		"roomCode":  code,
		"sessionId": session,
		"username":  username,
	})
}

// joinClient connects and joins a fresh fake socket as the given session.
func joinClient(t *testing.T, hub *Hub, code, session string) (*Client, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	client := newClient(hub, conn)
	client.HandleFrame(joinFrame(t, code, session, "user-"+session))
	require.NotEmpty(t, conn.sentOfType(t, "joined"), "join should succeed for %s", session)
	return client, conn
}

func TestJoinSuccess(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 10, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", true)

	conn := &fakeConn{}
	client := newClient(hub, conn)
	client.HandleFrame(joinFrame(t, "12345678", "s1", "alice"))

	reply := conn.lastFrame(t)
	assert.Equal(t, "joined", reply["type"])
	assert.Equal(t, "12345678", reply["roomCode"])
	assert.Equal(t, float64(1), reply["memberCount"])

	user := reply["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, true, user["isAdmin"])

	assert.Equal(t, 1, hub.LiveCount("12345678"))
	assert.Same(t, client, hub.Lookup("s1"))
}

func TestJoinRejections(t *testing.T) {
	store := newFakeStore()
	expired := store.addRoom("11112222", 10, time.Now().Add(-time.Minute))
	store.addMember(expired.ID, "s1", "alice", false)
	store.addRoom("33334444", 10, time.Now().Add(time.Hour))

	tests := []struct {
		name     string
		frame    map[string]interface{}
		wantCode string
	}{
		{
			name:     "missing fields",
			frame:    map[string]interface{}{"type": "join", "roomCode": "33334444"},
			wantCode: CodeValidation,
		},
		{
			name:     "bad code format",
			frame:    map[string]interface{}{"type": "join", "roomCode": "abc", "sessionId": "s1"},
			wantCode: CodeValidation,
		},
		{
			name:     "room not found",
			frame:    map[string]interface{}{"type": "join", "roomCode": "99999999", "sessionId": "s1"},
			wantCode: CodeNotFound,
		},
		{
			name:     "room expired",
			frame:    map[string]interface{}{"type": "join", "roomCode": "11112222", "sessionId": "s1"},
			wantCode: CodeExpired,
		},
		{
			name:     "not a member",
			frame:    map[string]interface{}{"type": "join", "roomCode": "33334444", "sessionId": "stranger"},
			wantCode: CodeNotMember,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(store)
			conn := &fakeConn{}
			client := newClient(hub, conn)

			client.HandleFrame(frame(t, tt.frame))

			reply := conn.lastFrame(t)
			assert.Equal(t, "error", reply["type"])
			assert.Equal(t, tt.wantCode, reply["code"])
			assert.False(t, conn.isClosed(), "protocol errors must not close the socket")
			_, clients := hub.Counts()
			assert.Zero(t, clients, "rejected join must not touch the registry")
		})
	}
}

func TestJoinCapacity(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 2, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", true)
	store.addMember(room.ID, "s2", "bob", false)
	store.addMember(room.ID, "s3", "carol", false)

	_, conn1 := joinClient(t, hub, "12345678", "s1")
	_, _ = joinClient(t, hub, "12345678", "s2")

	// Both present members saw each other arrive.
	require.Len(t, conn1.sentOfType(t, "user_joined"), 1)

	conn3 := &fakeConn{}
	client3 := newClient(hub, conn3)
	client3.HandleFrame(joinFrame(t, "12345678", "s3", "carol"))

	reply := conn3.lastFrame(t)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, CodeCapacity, reply["code"])
	assert.Equal(t, 2, hub.LiveCount("12345678"))
	assert.Nil(t, hub.Lookup("s3"))
	assert.Empty(t, store.deactivations(), "rejected join must not mutate the store")
}

func TestJoinSupersedesPriorSocket(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 10, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", false)

	_, oldConn := joinClient(t, hub, "12345678", "s1")

	newConn := &fakeConn{}
	replacement := newClient(hub, newConn)
	replacement.HandleFrame(joinFrame(t, "12345678", "s1", "alice"))

	require.NotEmpty(t, newConn.sentOfType(t, "joined"))
	assert.True(t, oldConn.isClosed(), "old socket for the session must be closed")
	assert.Equal(t, 1, hub.LiveCount("12345678"))
	assert.Same(t, replacement, hub.Lookup("s1"))
	assert.Empty(t, store.deactivations(), "supersede must not deactivate the membership")
}

func TestMessageBroadcastAndPersist(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 10, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", true)
	store.addMember(room.ID, "s2", "bob", false)

	client1, conn1 := joinClient(t, hub, "12345678", "s1")
	_, conn2 := joinClient(t, hub, "12345678", "s2")

	client1.HandleFrame(frame(t, map[string]interface{}{
		"type":    "message",
		"content": "  hi  ",
	}))

	saved := store.savedMessages()
	require.Len(t, saved, 1)
	assert.Equal(t, "hi", saved[0].Content)
	assert.Equal(t, models.MessageTypeUser, saved[0].MessageType)
	assert.Equal(t, "s1", saved[0].SessionID)

	got := conn2.sentOfType(t, "message")
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0]["content"])
	assert.Equal(t, "s1", got[0]["sessionId"])
	assert.NotZero(t, got[0]["id"])
	assert.NotZero(t, got[0]["timestamp"])

	// Sender gets its own message back with the server-assigned id.
	require.Len(t, conn1.sentOfType(t, "message"), 1)
}

func TestMessageValidation(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 10, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", false)

	client, conn := joinClient(t, hub, "12345678", "s1")

	long := make([]rune, maxMessageLen+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too long", string(long)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.HandleFrame(frame(t, map[string]interface{}{
				"type":    "message",
				"content": tt.content,
			}))
			reply := conn.lastFrame(t)
			assert.Equal(t, "error", reply["type"])
			assert.Equal(t, CodeValidation, reply["code"])
		})
	}

	assert.Empty(t, store.savedMessages())
}

func TestMessageRequiresJoinedState(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)

	conn := &fakeConn{}
	client := newClient(hub, conn)
	client.HandleFrame(frame(t, map[string]interface{}{
		"type":    "message",
		"content": "hello",
	}))

	reply := conn.lastFrame(t)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, CodeValidation, reply["code"])
	assert.Empty(t, store.savedMessages())
}

func TestTypingExcludesSender(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 10, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", false)
	store.addMember(room.ID, "s2", "bob", false)

	client1, conn1 := joinClient(t, hub, "12345678", "s1")
	_, conn2 := joinClient(t, hub, "12345678", "s2")

	client1.HandleFrame(frame(t, map[string]interface{}{
		"type":     "typing",
		"isTyping": true,
	}))

	got := conn2.sentOfType(t, "typing")
	require.Len(t, got, 1)
	assert.Equal(t, true, got[0]["isTyping"])
	assert.Equal(t, "s1", got[0]["sessionId"])

	assert.Empty(t, conn1.sentOfType(t, "typing"), "typing must never echo to the sender")
}

func TestKickByAdmin(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 10, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", true)
	store.addMember(room.ID, "s2", "bob", false)

	admin, adminConn := joinClient(t, hub, "12345678", "s1")
	_, targetConn := joinClient(t, hub, "12345678", "s2")

	admin.HandleFrame(frame(t, map[string]interface{}{
		"type":            "kick_user",
		"targetSessionId": "s2",
	}))

	// Target is notified and force-closed.
	notices := targetConn.sentOfType(t, "user_kicked")
	require.Len(t, notices, 1)
	assert.Equal(t, "s2", notices[0]["sessionId"])
	assert.Equal(t, "Kicked by admin", notices[0]["reason"])
	assert.True(t, targetConn.isClosed())

	// The room hears about it and the store reflects the departure.
	require.Len(t, adminConn.sentOfType(t, "user_kicked"), 1)
	assert.Equal(t, []string{fmt.Sprintf("%d/s2", room.ID)}, store.deactivations())
	assert.Equal(t, 1, store.memberCount(room.ID))
	assert.Equal(t, 1, hub.LiveCount("12345678"))
}

func TestKickRequiresAdmin(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 10, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", true)
	store.addMember(room.ID, "s2", "bob", false)

	joinClient(t, hub, "12345678", "s1")
	member, memberConn := joinClient(t, hub, "12345678", "s2")

	member.HandleFrame(frame(t, map[string]interface{}{
		"type":            "kick_user",
		"targetSessionId": "s1",
	}))

	reply := memberConn.lastFrame(t)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, CodeForbidden, reply["code"])
	assert.Equal(t, 2, hub.LiveCount("12345678"))
	assert.Empty(t, store.deactivations())
}

func TestLeaveAndRejoin(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 10, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", false)
	store.addMember(room.ID, "s2", "bob", false)

	client1, conn1 := joinClient(t, hub, "12345678", "s1")
	_, conn2 := joinClient(t, hub, "12345678", "s2")

	client1.HandleFrame(frame(t, map[string]interface{}{"type": "leave"}))

	left := conn2.sentOfType(t, "user_left")
	require.Len(t, left, 1)
	assert.Equal(t, "s1", left[0]["sessionId"])
	assert.Equal(t, float64(1), left[0]["memberCount"])

	assert.False(t, conn1.isClosed(), "explicit leave keeps the socket open")
	assert.Equal(t, 1, hub.LiveCount("12345678"))
	assert.Equal(t, []string{fmt.Sprintf("%d/s1", room.ID)}, store.deactivations())

	// The same socket may join again once the membership is restored.
	store.addMember(room.ID, "s1", "alice", false)
	client1.HandleFrame(joinFrame(t, "12345678", "s1", "alice"))
	assert.NotEmpty(t, conn1.sentOfType(t, "joined"))
	assert.Equal(t, 2, hub.LiveCount("12345678"))
}

func TestDisconnectRunsEviction(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 10, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", false)
	store.addMember(room.ID, "s2", "bob", false)

	client1, conn1 := joinClient(t, hub, "12345678", "s1")
	_, conn2 := joinClient(t, hub, "12345678", "s2")

	hub.Evict(client1, ReasonDisconnect)

	left := conn2.sentOfType(t, "user_left")
	require.Len(t, left, 1)
	assert.Equal(t, float64(1), left[0]["memberCount"])
	assert.True(t, conn1.isClosed())
	assert.Equal(t, 1, store.memberCount(room.ID))
}

func TestEvictionIsIdempotent(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 10, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", false)
	store.addMember(room.ID, "s2", "bob", false)

	client1, _ := joinClient(t, hub, "12345678", "s1")
	_, conn2 := joinClient(t, hub, "12345678", "s2")

	hub.Evict(client1, ReasonDisconnect)
	hub.Evict(client1, ReasonDisconnect)

	assert.Len(t, store.deactivations(), 1, "second eviction must not touch the store")
	assert.Len(t, conn2.sentOfType(t, "user_left"), 1, "second eviction must not re-broadcast")
}

func TestPingPong(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)

	conn := &fakeConn{}
	client := newClient(hub, conn)
	client.HandleFrame(frame(t, map[string]interface{}{"type": "ping"}))

	assert.Equal(t, "pong", conn.lastFrame(t)["type"])
}

func TestUnknownFrameKeepsConnectionOpen(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)

	conn := &fakeConn{}
	client := newClient(hub, conn)

	client.HandleFrame([]byte(`{"type":"dance"}`))
	reply := conn.lastFrame(t)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, CodeValidation, reply["code"])

	client.HandleFrame([]byte(`not json`))
	assert.Equal(t, "error", conn.lastFrame(t)["type"])

	client.HandleFrame(frame(t, map[string]interface{}{"type": "ping"}))
	assert.Equal(t, "pong", conn.lastFrame(t)["type"])
	assert.False(t, conn.isClosed())
}

func TestJoinTwiceFromSameSocket(t *testing.T) {
	store := newFakeStore()
	hub := NewHub(store)
	room := store.addRoom("12345678", 10, time.Now().Add(time.Hour))
	store.addMember(room.ID, "s1", "alice", false)

	client, conn := joinClient(t, hub, "12345678", "s1")

	client.HandleFrame(joinFrame(t, "12345678", "s1", "alice"))
	reply := conn.lastFrame(t)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, CodeValidation, reply["code"])
	assert.Equal(t, 1, hub.LiveCount("12345678"))
}
