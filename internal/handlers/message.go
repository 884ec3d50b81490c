package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/utsavbhardwaj/secretroom/internal/models"
	"github.com/utsavbhardwaj/secretroom/internal/services"
	"github.com/utsavbhardwaj/secretroom/internal/ws"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	rooms *services.RoomService
	hub   *ws.Hub
}

func NewMessageHandler(rooms *services.RoomService, hub *ws.Hub) *MessageHandler {
	return &MessageHandler{rooms: rooms, hub: hub}
}

type PostMessageRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Content   string `json:"content" binding:"required"`
	Encrypted bool   `json:"encrypted"`
}

// GetMessages returns a page of room history in chronological order.
// Requires an active membership for the X-Session-ID caller.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	sessionID := c.GetString("session_id")

	room, err := h.rooms.ActiveRoomByCode(c.Param("code"))
	if err != nil {
		serviceError(c, err)
		return
	}

	if _, err := h.rooms.ActiveMember(room.ID, sessionID); err != nil {
		serviceError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	msgs, err := h.rooms.Messages(room.ID, limit, offset)
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage persists a message over plain HTTP. The socket path is the
// normal one; this exists for clients that lost their connection mid-send.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message content is required"})
		return
	}
	if utf8.RuneCountInString(content) > 1000 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message too long"})
		return
	}

	room, err := h.rooms.ActiveRoomByCode(c.Param("code"))
	if err != nil {
		serviceError(c, err)
		return
	}

	member, err := h.rooms.ActiveMember(room.ID, req.SessionID)
	if err != nil {
		serviceError(c, err)
		return
	}

	msg := &models.Message{
		RoomID:      room.ID,
		UserID:      member.UserID,
		SessionID:   req.SessionID,
		Content:     content,
		Encrypted:   req.Encrypted,
		MessageType: models.MessageTypeUser,
	}
	if err := h.rooms.SaveMessage(msg); err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}
