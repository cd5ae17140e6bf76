package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"storyroom/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub fans room broadcasts out to websocket connections and feeds socket
// drops into the presence manager. Connections are grouped by room pin;
// identity travels with the client, never with the socket handle.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	games    *GameService
	presence *PresenceManager
}

type Client struct {
	hub      *Hub
	id       string
	socket   *websocket.Conn
	send     chan []byte
	pin      string
	userID   string
	username string
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewHub(games *GameService, presence *PresenceManager) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		games:      games,
		presence:   presence,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client %s registered for room %s (user %s) - total clients: %d", client.id, client.pin, client.userID, total)

		case client := <-h.unregister:
			h.mutex.Lock()
			_, known := h.clients[client]
			if known {
				delete(h.clients, client)
				close(client.send)
			}
			remaining := h.userStillConnected(client.pin, client.userID)
			h.mutex.Unlock()

			if !known {
				// Already evicted (room reset); presence was handled there.
				continue
			}
			log.Printf("Client %s unregistered from room %s (user %s)", client.id, client.pin, client.userID)
			if remaining {
				// Another connection for the same user is still up, e.g. a
				// reconnect that raced the old socket's close.
				continue
			}
			if err := h.presence.HandleDisconnect(context.Background(), client.pin, client.userID); err != nil {
				log.Printf("Disconnect handling for user %s in room %s: %v", client.userID, client.pin, err)
			}
		}
	}
}

// BroadcastToRoom sends a typed message to every connection in a room.
func (h *Hub) BroadcastToRoom(pin string, messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s message: %v", messageType, err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		if client.pin != pin {
			continue
		}
		select {
		case client.send <- data:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// SendToUser sends a typed message to every connection a user has in a room.
func (h *Hub) SendToUser(pin, userID, messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s message: %v", messageType, err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		if client.pin != pin || client.userID != userID {
			continue
		}
		select {
		case client.send <- data:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// EvictRoom force-removes every connection in a room from the broadcast
// group and closes their sockets, so a reset room starts from an empty lobby.
func (h *Hub) EvictRoom(pin string) {
	h.mutex.Lock()
	var evicted []*Client
	for client := range h.clients {
		if client.pin == pin {
			delete(h.clients, client)
			close(client.send)
			evicted = append(evicted, client)
		}
	}
	h.mutex.Unlock()

	for _, client := range evicted {
		client.socket.Close()
	}
	log.Printf("Evicted %d clients from room %s", len(evicted), pin)
}

func (h *Hub) SendToClient(client *Client, messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s message: %v", messageType, err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) RegisterClient(conn *websocket.Conn, pin, userID, username string) *Client {
	client := &Client{
		hub:      h,
		id:       uuid.NewString(),
		socket:   conn,
		send:     make(chan []byte, 256),
		pin:      pin,
		userID:   userID,
		username: username,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

// userStillConnected reports whether any other connection for (pin, user)
// remains registered. Callers hold the mutex.
func (h *Hub) userStillConnected(pin, userID string) bool {
	for client := range h.clients {
		if client.pin == pin && client.userID == userID {
			return true
		}
	}
	return false
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.socket.Close()
	}()

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message from %s: %v", c.id, err)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

type submitStoriesPayload struct {
	Stories []string `json:"stories"`
}

type roundPayload struct {
	Round int `json:"round"`
}

type votePayload struct {
	ChoiceID string `json:"choice_id"`
}

func (c *Client) handleMessage(msg Message) {
	ctx := context.Background()

	switch msg.Type {
	case "ping":
		c.hub.SendToClient(c, "pong", "pong")

	case "submit_stories":
		var payload submitStoriesPayload
		if err := decodePayload(msg.Payload, &payload); err != nil {
			c.sendError("invalid submit_stories payload")
			return
		}
		c.report(c.hub.games.SubmitStories(ctx, c.pin, c.userID, payload.Stories))

	case "start_game":
		c.report(c.hub.games.StartGame(ctx, c.pin, c.userID))

	case "start_vote":
		var payload roundPayload
		if err := decodePayload(msg.Payload, &payload); err != nil {
			c.sendError("invalid start_vote payload")
			return
		}
		c.report(c.hub.games.BeginVote(ctx, c.pin, payload.Round))

	case "next_round":
		var payload roundPayload
		if err := decodePayload(msg.Payload, &payload); err != nil {
			c.sendError("invalid next_round payload")
			return
		}
		c.report(c.hub.games.AdvanceRound(ctx, c.pin, c.userID, payload.Round))

	case "vote":
		var payload votePayload
		if err := decodePayload(msg.Payload, &payload); err != nil {
			c.sendError("invalid vote payload")
			return
		}
		c.report(c.hub.games.CastVote(ctx, c.pin, c.userID, payload.ChoiceID))

	case "reset_game":
		c.report(c.hub.games.ResetGame(ctx, c.pin, c.userID))

	case "request_state":
		state, err := c.hub.games.RoomSnapshot(ctx, c.pin)
		if err != nil {
			c.report(err)
			return
		}
		c.hub.SendToClient(c, "sync_state", state)

	default:
		log.Printf("Unknown message type %q from user %s in room %s", msg.Type, c.userID, c.pin)
	}
}

// report relays an operation result to this client. Unauthorized actors and
// duplicate lease-protected triggers are deliberately silent.
func (c *Client) report(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, models.ErrUnauthorized) || errors.Is(err, models.ErrAlreadyProcessed) {
		log.Printf("Ignored action from user %s in room %s: %v", c.userID, c.pin, err)
		return
	}
	c.sendError(err.Error())
}

func (c *Client) sendError(message string) {
	c.hub.SendToClient(c, "error", map[string]string{"message": message})
}

// decodePayload round-trips the generic payload through JSON into a typed
// struct.
func decodePayload(payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
