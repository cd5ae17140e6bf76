package handlers

import (
	"errors"
	"net/http"
	"strings"

	"storyroom/models"
	"storyroom/services"

	"github.com/gin-gonic/gin"
)

type GameHandler struct {
	games *services.GameService
}

func NewGameHandler(games *services.GameService) *GameHandler {
	return &GameHandler{games: games}
}

func (h *GameHandler) CreateRoom(c *gin.Context) {
	pin, err := h.games.CreateRoom(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pin": pin})
}

func (h *GameHandler) GetRoom(c *gin.Context) {
	pin := strings.ToUpper(c.Param("pin"))
	if pin == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room PIN required"})
		return
	}

	state, err := h.games.RoomSnapshot(c.Request.Context(), pin)
	if err != nil {
		if errors.Is(err, models.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}
