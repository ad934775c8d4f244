package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatroom-service/internal/models"
	"chatroom-service/internal/repositories"
	"chatroom-service/internal/telemetry"
)

// RoomFetcher reads a room as seen by a viewer. livequery.Store implements it.
type RoomFetcher interface {
	FetchRoom(ctx context.Context, roomID, viewerID string) (models.RoomSnapshot, error)
}

// RoomHandler manages room endpoints.
type RoomHandler struct {
	roomRepo    repositories.RoomRepository
	messageRepo repositories.MessageRepository
	fetcher     RoomFetcher
	audit       *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler. audit may be nil.
func NewRoomHandler(roomRepo repositories.RoomRepository, messageRepo repositories.MessageRepository, fetcher RoomFetcher, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		fetcher:     fetcher,
		audit:       audit,
	}
}

// CreateRoom creates a room owned by the authenticated user.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Title    string   `json:"title" binding:"required,max=200"`
		Invitees []string `json:"invitees" binding:"omitempty,dive,required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload", "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.roomRepo.CreateRoom(c.Request.Context(), c.GetString("userID"), req.Title, req.Invitees)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error", "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	h.emitAudit(c, "INFO", "Room created", room.ID)
	c.JSON(http.StatusCreated, room)
}

// GetRoom returns the room once. Missing rooms and rooms the caller may not
// see are both reported as not found.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, ok := h.visibleRoom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, room)
}

// AddInvitee lets the owner invite another user.
func (h *RoomHandler) AddInvitee(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString("userID")

	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload", roomID)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, ok := h.visibleRoom(c)
	if !ok {
		return
	}
	if room.OwnerID != userID {
		h.emitAudit(c, "ERROR", "not allowed to invite", roomID)
		c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can invite"})
		return
	}

	err := h.roomRepo.AddInvitee(c.Request.Context(), roomID, req.UserID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error", roomID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add invitee"})
		return
	}

	h.emitAudit(c, "INFO", "Invitee added", roomID)
	c.Status(http.StatusNoContent)
}

// DeleteRoom deletes a room owned by the caller. Open visits see it vanish.
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	roomID := c.Param("room_id")

	err := h.roomRepo.DeleteRoom(c.Request.Context(), roomID, c.GetString("userID"))
	if errors.Is(err, repositories.ErrRoomNotFound) {
		h.emitAudit(c, "ERROR", "not allowed to delete", roomID)
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error", roomID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete room"})
		return
	}

	h.emitAudit(c, "INFO", "Room deleted", roomID)
	c.Status(http.StatusNoContent)
}

// ListRoomMessages returns the room's messages in display order.
func (h *RoomHandler) ListRoomMessages(c *gin.Context) {
	room, ok := h.visibleRoom(c)
	if !ok {
		return
	}

	msgs, err := h.messageRepo.ListRoomMessages(c.Request.Context(), room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// visibleRoom writes the error response itself when it returns false.
func (h *RoomHandler) visibleRoom(c *gin.Context) (models.Room, bool) {
	roomID := c.Param("room_id")
	snap, err := h.fetcher.FetchRoom(c.Request.Context(), roomID, c.GetString("userID"))
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error", roomID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return models.Room{}, false
	}
	if !snap.Available() {
		if snap.Status == models.RoomDenied {
			h.emitAudit(c, "ERROR", "not allowed", roomID)
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return models.Room{}, false
	}
	return snap.Room, true
}

func (h *RoomHandler) emitAudit(c *gin.Context, level, text, roomID string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c), roomID)
}
