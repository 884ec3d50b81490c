package handlers

import (
	"net/http"
	"time"

	"github.com/utsavbhardwaj/secretroom/internal/services"
	"github.com/utsavbhardwaj/secretroom/internal/ws"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	rooms *services.RoomService
	users *services.UserService
	hub   *ws.Hub
}

func NewRoomHandler(rooms *services.RoomService, users *services.UserService, hub *ws.Hub) *RoomHandler {
	return &RoomHandler{rooms: rooms, users: users, hub: hub}
}

type CreateRoomRequest struct {
	SessionID                  string `json:"sessionId" binding:"required"`
	Username                   string `json:"username" binding:"required,min=1,max=50"`
	Duration                   int    `json:"duration"`
	MaxMembers                 int    `json:"maxMembers"`
	EnableScreenshotProtection *bool  `json:"enableScreenshotProtection"`
	EnableMessageEncryption    *bool  `json:"enableMessageEncryption"`
}

type JoinRoomRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Username  string `json:"username" binding:"required,min=1,max=50"`
}

type SessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type ExtendRoomRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Minutes   int    `json:"minutes"`
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if req.Duration == 0 {
		req.Duration = 15
	}
	if req.Duration < 5 || req.Duration > 480 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "duration must be between 5 and 480 minutes"})
		return
	}
	if req.MaxMembers == 0 {
		req.MaxMembers = 10
	}
	if req.MaxMembers < 2 || req.MaxMembers > 50 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "maxMembers must be between 2 and 50"})
		return
	}
	screenshot := req.EnableScreenshotProtection == nil || *req.EnableScreenshotProtection
	encryption := req.EnableMessageEncryption == nil || *req.EnableMessageEncryption

	user, err := h.users.FindOrCreate(req.SessionID, req.Username)
	if err != nil {
		serviceError(c, err)
		return
	}

	room, err := h.rooms.Create(user, req.Duration, req.MaxMembers, screenshot, encryption)
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room, "user": user})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	code := c.Param("code")
	if !services.ValidRoomCode(code) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room code format"})
		return
	}

	room, err := h.rooms.ActiveRoomByCode(code)
	if err != nil {
		serviceError(c, err)
		return
	}

	admin, err := h.users.ByID(room.AdminID)
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room, "admin": admin})
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	room, err := h.rooms.ActiveRoomByCode(c.Param("code"))
	if err != nil {
		serviceError(c, err)
		return
	}

	user, err := h.users.FindOrCreate(req.SessionID, req.Username)
	if err != nil {
		serviceError(c, err)
		return
	}

	member, rejoined, err := h.rooms.Join(room, user)
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":     room,
		"user":     user,
		"member":   member,
		"isRejoin": rejoined,
	})
}

func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	// Leave must work against a just-expired room, so no active filter.
	room, err := h.rooms.RoomByCode(c.Param("code"))
	if err != nil {
		serviceError(c, err)
		return
	}

	// A live socket goes through the eviction path, which also deactivates
	// the membership and tells the room. Otherwise only the rows change.
	if !h.hub.EvictSession(req.SessionID, room.Code, ws.ReasonLeft) {
		if err := h.rooms.Leave(room.ID, req.SessionID); err != nil {
			serviceError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "left room successfully"})
}

func (h *RoomHandler) GetMembers(c *gin.Context) {
	room, err := h.rooms.ActiveRoomByCode(c.Param("code"))
	if err != nil {
		serviceError(c, err)
		return
	}

	members, err := h.rooms.Members(room.ID)
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *RoomHandler) KickMember(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	targetSessionID := c.Param("targetSessionId")

	room, err := h.rooms.ActiveRoomByCode(c.Param("code"))
	if err != nil {
		serviceError(c, err)
		return
	}

	if err := h.rooms.RequireAdmin(room.ID, req.SessionID); err != nil {
		serviceError(c, err)
		return
	}

	if err := h.rooms.Kick(room.ID, targetSessionID); err != nil {
		serviceError(c, err)
		return
	}

	// Reap the live socket too; the row flip alone would leave the kicked
	// member receiving broadcasts until the heartbeat notices.
	h.hub.KickSession(room.Code, targetSessionID, "Kicked by admin")

	c.JSON(http.StatusOK, MessageResponse{Message: "member kicked successfully"})
}

func (h *RoomHandler) ExtendRoom(c *gin.Context) {
	var req ExtendRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if req.Minutes == 0 {
		req.Minutes = 15
	}
	if req.Minutes < 0 || req.Minutes > 480 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "minutes must be between 1 and 480"})
		return
	}

	room, err := h.rooms.ActiveRoomByCode(c.Param("code"))
	if err != nil {
		serviceError(c, err)
		return
	}

	if err := h.rooms.RequireAdmin(room.ID, req.SessionID); err != nil {
		serviceError(c, err)
		return
	}

	updated, err := h.rooms.Extend(room.ID, req.Minutes)
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": updated})
}

func (h *RoomHandler) CloseRoom(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	room, err := h.rooms.ActiveRoomByCode(c.Param("code"))
	if err != nil {
		serviceError(c, err)
		return
	}

	if err := h.rooms.RequireAdmin(room.ID, req.SessionID); err != nil {
		serviceError(c, err)
		return
	}

	if err := h.rooms.Close(room.ID); err != nil {
		serviceError(c, err)
		return
	}
	h.hub.ExpireRoom(room.Code)

	c.JSON(http.StatusOK, MessageResponse{Message: "room closed successfully"})
}

func (h *RoomHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *RoomHandler) Stats(c *gin.Context) {
	liveRooms, liveClients := h.hub.Counts()
	stats, err := h.rooms.Stats()
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"live_rooms":   liveRooms,
		"live_clients": liveClients,
		"store":        stats,
	})
}
