package routes

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"storyroom/handlers"
	"storyroom/models"
	"storyroom/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are filtered by the CORS middleware
	},
}

func SetupRoutes(
	router *gin.Engine,
	gameHandler *handlers.GameHandler,
	hub *services.Hub,
	games *services.GameService,
) {
	api := router.Group("/api")
	{
		rooms := api.Group("/rooms")
		{
			rooms.POST("", gameHandler.CreateRoom)
			rooms.GET("/:pin", gameHandler.GetRoom)
		}
	}

	// WebSocket endpoint: joining the room and opening the connection are one
	// step, so a validation failure never leaves a half-joined socket behind.
	router.GET("/ws/:pin", func(c *gin.Context) {
		pin := strings.ToUpper(c.Param("pin"))
		username := c.Query("username")
		userID := c.Query("userId")
		if userID == "" {
			// No persisted identity from the client; mint one and hand it
			// back in the welcome message so reconnects can reuse it.
			userID = uuid.NewString()
		}

		state, err := games.JoinRoom(c.Request.Context(), pin, userID, username)
		if err != nil {
			c.JSON(joinStatus(err), gin.H{"error": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for room %s, user %s: %v", pin, userID, err)
			return
		}

		client := hub.RegisterClient(conn, pin, userID, username)
		hub.SendToClient(client, "welcome", gin.H{"user_id": userID})
		hub.SendToClient(client, "sync_state", state)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func joinStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrGameInProgress), errors.Is(err, models.ErrRoomFull):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
