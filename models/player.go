package models

// Player is one member of a room, keyed by their stable user id. The id is
// supplied by the client and survives reconnects, unlike the websocket
// connection itself.
type Player struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	IsHost    bool   `json:"is_host"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
}
