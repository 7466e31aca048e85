package handler

import (
	"errors"
	"net/http"

	"jabbr/internal/chat"
	"jabbr/internal/domain"
	"jabbr/internal/middleware"
	"jabbr/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type RoomHandler struct {
	repo        *repository.ChatRepository
	coordinator *chat.Coordinator
}

func NewRoomHandler(repo *repository.ChatRepository, coordinator *chat.Coordinator) *RoomHandler {
	return &RoomHandler{repo: repo, coordinator: coordinator}
}

// List returns the lobby: every room the caller may see, with online counts.
func (h *RoomHandler) List(c *gin.Context) {
	user, err := h.repo.GetUserByID(middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	rooms, err := h.repo.ListRooms(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	out := make([]gin.H, 0, len(rooms))
	for i := range rooms {
		count, _ := h.repo.OnlineUserCount(rooms[i].ID)
		out = append(out, gin.H{
			"name":    rooms[i].Name,
			"private": rooms[i].Private,
			"closed":  rooms[i].Closed,
			"topic":   rooms[i].Topic,
			"count":   count,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

// Get returns room detail: online members, owners, topic, welcome.
func (h *RoomHandler) Get(c *gin.Context) {
	user, err := h.repo.GetUserByID(middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	room, err := h.repo.GetRoomByName(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if !user.AllowedInto(room) {
		// Private rooms are invisible to outsiders, not forbidden.
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	online, err := h.repo.GetOnlineUsers(room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}
	users := make([]gin.H, 0, len(online))
	for i := range online {
		users = append(users, gin.H{
			"name":   online[i].Name,
			"status": online[i].Status,
			"is_afk": online[i].IsAfk,
		})
	}
	owners := make([]string, 0, len(room.Owners))
	for _, o := range room.Owners {
		owners = append(owners, o.Name)
	}
	c.JSON(http.StatusOK, gin.H{
		"name":    room.Name,
		"private": room.Private,
		"closed":  room.Closed,
		"topic":   room.Topic,
		"welcome": room.Welcome,
		"users":   users,
		"owners":  owners,
	})
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req struct {
		Name    string `json:"name" binding:"required,min=1"`
		Private bool   `json:"private"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Name) > domain.MaxRoomNameLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room name too long"})
		return
	}
	room, err := h.coordinator.CreateRoom(middleware.GetUserID(c), req.Name, req.Private)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrRoomExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		}
		return
	}
	c.JSON(http.StatusCreated, room)
}

// Unread returns the caller's unread mention count.
func (h *RoomHandler) Unread(c *gin.Context) {
	count, err := h.repo.UnreadNotificationCount(middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}
