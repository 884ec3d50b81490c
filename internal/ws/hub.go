package ws

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EvictReason selects the departure broadcast and whether the socket is
// torn down. An explicit leave keeps the socket open so the client may
// join again.
type EvictReason int

const (
	ReasonLeft EvictReason = iota
	ReasonDisconnect
	ReasonKicked
	ReasonTimeout
	ReasonWriteFailed
)

func (r EvictReason) terminal() bool { return r != ReasonLeft }

func (r EvictReason) String() string {
	switch r {
	case ReasonLeft:
		return "left"
	case ReasonDisconnect:
		return "disconnect"
	case ReasonKicked:
		return "kicked"
	case ReasonTimeout:
		return "timeout"
	case ReasonWriteFailed:
		return "write_failed"
	}
	return "unknown"
}

// Hub is the in-process connection registry: session id → live client and
// room code → set of live clients. It is the only state shared between
// connection handlers and the cleanup sweep; every mutation happens under
// one mutex. The registry is a cache of who is reachable right now — the
// durable store stays authoritative for membership.
type Hub struct {
	store Store

	mu       sync.Mutex
	sessions map[string]*Client
	rooms    map[string]map[*Client]bool
}

func NewHub(store Store) *Hub {
	return &Hub{
		store:    store,
		sessions: make(map[string]*Client),
		rooms:    make(map[string]map[*Client]bool),
	}
}

// register inserts the client under both maps and binds its room identity,
// all as one atomic step. A prior socket for the same session is superseded
// (closed without touching the store — the membership row still belongs to
// the session). Returns the room's live count and false when the room is
// at capacity.
func (h *Hub) register(c *Client, session, roomCode string, roomID uint, user WireUser, maxMembers int) (int, bool) {
	h.mu.Lock()

	prev := h.sessions[session]
	set := h.rooms[roomCode]
	if set != nil && len(set) >= maxMembers && (prev == nil || !set[prev]) {
		h.mu.Unlock()
		return 0, false
	}

	if prev != nil && prev != c {
		h.removeLocked(prev)
		prev.supersede()
		defer func() { _ = prev.conn.Close() }()
	}

	if !c.bind(session, roomCode, roomID, user) {
		h.mu.Unlock()
		return 0, false
	}

	if set == nil {
		set = make(map[*Client]bool)
		h.rooms[roomCode] = set
	}
	set[c] = true
	h.sessions[session] = c
	count := len(set)
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"conn_id": c.id,
		"room":    roomCode,
		"session": session,
		"live":    count,
	}).Info("connection registered")
	return count, true
}

// removeLocked drops a client from both maps. Caller holds h.mu.
func (h *Hub) removeLocked(c *Client) int {
	session, roomCode, _, _, _ := c.snapshot()
	if h.sessions[session] == c {
		delete(h.sessions, session)
	}
	set := h.rooms[roomCode]
	if set == nil {
		return 0
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.rooms, roomCode)
		return 0
	}
	return len(set)
}

// Lookup returns the live client for a session, if any.
func (h *Hub) Lookup(session string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[session]
}

// LiveCount reports how many sockets are currently registered for a room.
func (h *Hub) LiveCount(roomCode string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomCode])
}

// Counts reports registry totals for the stats endpoint.
func (h *Hub) Counts() (rooms, clients int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms), len(h.sessions)
}

// Broadcast sends a frame to every live socket of the room except
// excludeSession. A failed write evicts that socket and never aborts
// delivery to the rest.
func (h *Hub) Broadcast(roomCode string, frame interface{}, excludeSession string) {
	h.mu.Lock()
	set := h.rooms[roomCode]
	targets := make([]*Client, 0, len(set))
	for c := range set {
		if excludeSession != "" && c.Session() == excludeSession {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var failed []*Client
	for _, c := range targets {
		if err := c.conn.WriteJSON(frame); err != nil {
			logrus.WithFields(logrus.Fields{
				"conn_id": c.id,
				"room":    roomCode,
			}).WithError(err).Warn("broadcast write failed")
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		h.Evict(c, ReasonWriteFailed)
	}
}

// Evict is the single teardown path shared by leave, kick, disconnect,
// heartbeat timeout and broadcast failure. Safe to call more than once for
// the same client; only the first call past the joined state does any work.
func (h *Hub) Evict(c *Client, reason EvictReason) {
	next := stateClosed
	if reason == ReasonLeft {
		next = stateConnected
	}
	session, roomCode, roomID, user, wasJoined := c.leaveRoom(next)
	if !wasJoined {
		if reason.terminal() {
			_ = c.conn.Close()
		}
		return
	}

	h.mu.Lock()
	if h.sessions[session] == c {
		delete(h.sessions, session)
	}
	var remaining int
	if set := h.rooms[roomCode]; set != nil {
		delete(set, c)
		remaining = len(set)
		if remaining == 0 {
			delete(h.rooms, roomCode)
		}
	}
	h.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"conn_id": c.id,
		"room":    roomCode,
		"session": session,
		"reason":  reason.String(),
		"live":    remaining,
	})

	if err := h.store.DeactivateMember(roomID, session); err != nil {
		log.WithError(err).Error("failed to deactivate membership")
	}
	// Advisory display count; best-effort by design.
	if err := h.store.SetMemberCount(roomID, remaining); err != nil {
		log.WithError(err).Warn("failed to refresh member count")
	}

	if remaining > 0 {
		switch reason {
		case ReasonKicked:
			h.Broadcast(roomCode, userKickedFrame{
				Type:      "user_kicked",
				SessionID: session,
				User:      &WireUser{ID: user.ID, Username: user.Username},
			}, session)
		default:
			h.Broadcast(roomCode, userLeftFrame{
				Type:        "user_left",
				User:        WireUser{ID: user.ID, Username: user.Username},
				SessionID:   session,
				MemberCount: remaining,
			}, session)
		}
	}

	if reason.terminal() {
		_ = c.conn.Close()
	}
	log.Info("connection evicted")
}

// EvictSession runs the eviction path for a session's live socket, if one
// is registered in the given room. Lets the HTTP leave path reflect the
// departure to connected peers immediately.
func (h *Hub) EvictSession(session, roomCode string, reason EvictReason) bool {
	c := h.Lookup(session)
	if c == nil {
		return false
	}
	if _, code, _, _, joined := c.snapshot(); !joined || code != roomCode {
		return false
	}
	h.Evict(c, reason)
	return true
}

// KickSession notifies and evicts the live socket of a kicked session.
// Shared by the admin kick frame and the admin HTTP kick.
func (h *Hub) KickSession(roomCode, targetSession, reason string) bool {
	c := h.Lookup(targetSession)
	if c == nil {
		return false
	}
	if _, code, _, _, joined := c.snapshot(); !joined || code != roomCode {
		return false
	}
	c.send(userKickedFrame{
		Type:      "user_kicked",
		SessionID: targetSession,
		Reason:    reason,
	})
	h.Evict(c, ReasonKicked)
	return true
}

// ExpireRoom notifies and force-closes every socket of an expired room.
// The sweeper has already bulk-deactivated the room and its memberships,
// so no per-connection store writes happen here. Returns how many sockets
// were closed.
func (h *Hub) ExpireRoom(roomCode string) int {
	h.mu.Lock()
	set := h.rooms[roomCode]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
		if session := c.Session(); h.sessions[session] == c {
			delete(h.sessions, session)
		}
	}
	delete(h.rooms, roomCode)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteJSON(roomExpiredFrame{Type: "room_expired", RoomCode: roomCode})
		c.forceClose()
		_ = c.conn.Close()
	}

	if len(clients) > 0 {
		logrus.WithFields(logrus.Fields{
			"room":   roomCode,
			"closed": len(clients),
		}).Info("expired room connections closed")
	}
	return len(clients)
}

// RunHeartbeat pings every registered client on a fixed cadence and evicts
// clients that did not answer since the previous tick.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pingClients()
		}
	}
}

func (h *Hub) pingClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.sessions))
	for _, c := range h.sessions {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if !c.checkAlive() {
			logrus.WithField("conn_id", c.id).Warn("terminating dead connection")
			h.Evict(c, ReasonTimeout)
			continue
		}
		if err := c.conn.Ping(); err != nil {
			h.Evict(c, ReasonTimeout)
		}
	}
}
