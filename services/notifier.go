package services

// Notifier is the push side of the control plane. The websocket Hub satisfies
// it; tests substitute a recorder.
type Notifier interface {
	// BroadcastToRoom sends a typed message to every connection in a room.
	BroadcastToRoom(pin, messageType string, payload interface{})
	// SendToUser sends a typed message to every connection a user has in a room.
	SendToUser(pin, userID, messageType string, payload interface{})
	// EvictRoom force-removes every connection from a room's broadcast group.
	EvictRoom(pin string)
}

// noopNotifier stands in before the hub is attached, so store mutations never
// depend on the push layer being up.
type noopNotifier struct{}

func (noopNotifier) BroadcastToRoom(string, string, interface{})    {}
func (noopNotifier) SendToUser(string, string, string, interface{}) {}
func (noopNotifier) EvictRoom(string)                               {}
