package ws

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/utsavbhardwaj/secretroom/internal/models"
	"github.com/utsavbhardwaj/secretroom/internal/services"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxMessageLen = 1000

// Connection states. A socket starts connected, becomes joined once bound
// to a (room, session) pair, and is closed for good on teardown. An
// explicit leave returns it to connected.
const (
	stateConnected = iota
	stateJoined
	stateClosed
)

// Client is one socket's protocol state machine. Frames from a single
// connection arrive sequentially (one read loop), but evictions may come
// from other goroutines — the kick path, the heartbeat, the sweeper — so
// state lives under a mutex.
type Client struct {
	id   string
	conn Conn
	hub  *Hub

	mu       sync.Mutex
	state    int
	alive    bool
	session  string
	roomCode string
	roomID   uint
	user     WireUser
}

func newClient(hub *Hub, conn Conn) *Client {
	return &Client{
		id:    uuid.New().String(),
		conn:  conn,
		hub:   hub,
		state: stateConnected,
		alive: true,
	}
}

// HandleFrame decodes one inbound frame and dispatches it against the
// current state. Protocol errors are replied to this connection only and
// never close the socket.
func (c *Client) HandleFrame(data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.sendError(CodeValidation, "invalid message format")
		return
	}

	switch frame.Type {
	case "ping":
		c.handlePing()
	case "join":
		c.handleJoin(frame)
	case "leave":
		c.handleLeave()
	case "message":
		c.handleMessage(frame)
	case "typing":
		c.handleTyping(frame)
	case "kick_user":
		c.handleKick(frame)
	default:
		c.sendError(CodeValidation, "unknown message type")
	}
}

func (c *Client) handlePing() {
	c.markAlive()
	c.send(pongFrame{Type: "pong"})
}

func (c *Client) handleJoin(frame clientFrame) {
	if state := c.currentState(); state != stateConnected {
		if state == stateJoined {
			c.sendError(CodeValidation, "already in a room")
		}
		return
	}

	if frame.RoomCode == "" || frame.SessionID == "" {
		c.sendError(CodeValidation, "room code and session ID are required")
		return
	}
	if !services.ValidRoomCode(frame.RoomCode) {
		c.sendError(CodeValidation, "invalid room code format")
		return
	}

	room, err := c.hub.store.ActiveRoomByCode(frame.RoomCode)
	if err != nil {
		c.sendStoreError(err, "failed to join room")
		return
	}

	member, err := c.hub.store.ActiveMember(room.ID, frame.SessionID)
	if err != nil {
		c.sendStoreError(err, "failed to join room")
		return
	}

	user := WireUser{
		ID:        member.UserID,
		Username:  member.Username,
		SessionID: frame.SessionID,
		IsAdmin:   member.IsAdmin,
	}
	count, ok := c.hub.register(c, frame.SessionID, room.Code, room.ID, user, room.MaxMembers)
	if !ok {
		c.sendError(CodeCapacity, "room is full")
		return
	}

	c.hub.Broadcast(room.Code, userJoinedFrame{
		Type:        "user_joined",
		User:        user,
		MemberCount: count,
	}, frame.SessionID)

	c.send(joinedFrame{
		Type:     "joined",
		RoomCode: room.Code,
		User: WireUser{
			ID:       member.UserID,
			Username: member.Username,
			IsAdmin:  member.IsAdmin,
		},
		MemberCount: count,
	})

	logrus.WithFields(logrus.Fields{
		"conn_id": c.id,
		"room":    room.Code,
		"user":    member.Username,
	}).Info("user joined room")
}

func (c *Client) handleLeave() {
	session, _, _, _, joined := c.snapshot()
	if !joined || session == "" {
		c.sendError(CodeValidation, "not connected to a room")
		return
	}
	c.hub.Evict(c, ReasonLeft)
}

func (c *Client) handleMessage(frame clientFrame) {
	session, roomCode, _, user, joined := c.snapshot()
	if !joined {
		c.sendError(CodeValidation, "not connected to a room")
		return
	}

	content := strings.TrimSpace(frame.Content)
	if content == "" {
		c.sendError(CodeValidation, "message content is required")
		return
	}
	if utf8.RuneCountInString(content) > maxMessageLen {
		c.sendError(CodeValidation, "message too long")
		return
	}

	// Re-validate the room at the gating moment; the registry entry may
	// outlive the room by up to one sweep interval.
	room, err := c.hub.store.ActiveRoomByCode(roomCode)
	if err != nil {
		c.sendStoreError(err, "failed to send message")
		return
	}

	msg := &models.Message{
		RoomID:      room.ID,
		UserID:      user.ID,
		SessionID:   session,
		Content:     content,
		Encrypted:   frame.Encrypted,
		MessageType: models.MessageTypeUser,
	}
	if err := c.hub.store.SaveMessage(msg); err != nil {
		logrus.WithField("conn_id", c.id).WithError(err).Error("failed to persist message")
		c.sendError(CodeStoreFailure, "failed to send message")
		return
	}

	c.hub.Broadcast(roomCode, messageFrame{
		Type:      "message",
		ID:        msg.ID,
		Content:   msg.Content,
		Encrypted: msg.Encrypted,
		User: WireUser{
			ID:       user.ID,
			Username: user.Username,
			IsAdmin:  user.IsAdmin,
		},
		SessionID: session,
		Timestamp: msg.CreatedAt.UnixMilli(),
	}, "")
}

func (c *Client) handleTyping(frame clientFrame) {
	session, roomCode, _, user, joined := c.snapshot()
	if !joined {
		c.sendError(CodeValidation, "not connected to a room")
		return
	}

	c.hub.Broadcast(roomCode, typingFrame{
		Type:      "typing",
		User:      WireUser{ID: user.ID, Username: user.Username},
		SessionID: session,
		IsTyping:  frame.IsTyping,
	}, session)
}

func (c *Client) handleKick(frame clientFrame) {
	_, roomCode, _, user, joined := c.snapshot()
	if !joined {
		c.sendError(CodeValidation, "not connected to a room")
		return
	}
	if !user.IsAdmin {
		c.sendError(CodeForbidden, "admin access required")
		return
	}
	if frame.TargetSessionID == "" {
		c.sendError(CodeValidation, "target session ID required")
		return
	}

	// A target without a live socket in this room is a silent no-op; the
	// HTTP kick covers durable-only members.
	c.hub.KickSession(roomCode, frame.TargetSessionID, "Kicked by admin")
}

// --- state accessors ---

func (c *Client) currentState() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) snapshot() (session, roomCode string, roomID uint, user WireUser, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.roomCode, c.roomID, c.user, c.state == stateJoined
}

// bind transitions connected → joined. Called by the hub while it holds
// the registry lock so registration and the state flip are atomic.
func (c *Client) bind(session, roomCode string, roomID uint, user WireUser) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConnected {
		return false
	}
	c.state = stateJoined
	c.session = session
	c.roomCode = roomCode
	c.roomID = roomID
	c.user = user
	return true
}

// leaveRoom transitions out of joined, handing the caller the identity it
// needs for store updates and broadcasts. A second call finds the client
// already out of the room and reports false, which makes eviction
// idempotent.
func (c *Client) leaveRoom(next int) (session, roomCode string, roomID uint, user WireUser, wasJoined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateJoined {
		if next == stateClosed {
			c.state = stateClosed
		}
		return "", "", 0, WireUser{}, false
	}
	session, roomCode, roomID, user = c.session, c.roomCode, c.roomID, c.user
	c.state = next
	c.session, c.roomCode, c.roomID, c.user = "", "", 0, WireUser{}
	return session, roomCode, roomID, user, true
}

// supersede marks a socket replaced by a newer one for the same session.
// No store writes: the membership row still belongs to the session.
func (c *Client) supersede() {
	c.mu.Lock()
	c.state = stateClosed
	c.session, c.roomCode, c.roomID, c.user = "", "", 0, WireUser{}
	c.mu.Unlock()
}

// forceClose is the sweeper's teardown: the bulk store update already
// happened, only the in-memory state flips.
func (c *Client) forceClose() {
	c.supersede()
}

func (c *Client) markAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// checkAlive reports whether the client answered since the last heartbeat
// tick and arms the flag for the next one.
func (c *Client) checkAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.alive
	c.alive = false
	return was
}

func (c *Client) send(frame interface{}) {
	if err := c.conn.WriteJSON(frame); err != nil {
		logrus.WithField("conn_id", c.id).WithError(err).Debug("direct send failed")
	}
}

func (c *Client) sendError(code, msg string) {
	c.send(errorFrame{Type: "error", Code: code, Error: msg})
}

// sendStoreError maps service sentinels onto wire codes; anything
// unexpected is logged and surfaced as a generic store failure.
func (c *Client) sendStoreError(err error, generic string) {
	switch {
	case errors.Is(err, services.ErrRoomNotFound):
		c.sendError(CodeNotFound, "room not found")
	case errors.Is(err, services.ErrRoomExpired):
		c.sendError(CodeExpired, "room has expired")
	case errors.Is(err, services.ErrNotMember):
		c.sendError(CodeNotMember, "not a member of this room")
	default:
		logrus.WithField("conn_id", c.id).WithError(err).Error("store call failed")
		c.sendError(CodeStoreFailure, generic)
	}
}
