package relay

import (
	"fmt"
	"time"
)

// SystemSender is the sender name used for messages authored by the relay itself.
const SystemSender = "System"

// Message is a delivered chat line, either system-authored or sent by a user.
// The JSON shape is the "message" event payload seen by clients.
type Message struct {
	Username string `json:"username"`
	Text     string `json:"text"`
	Room     string `json:"room"`
}

// LoggedMessage is a Message as kept in a room's bounded log.
type LoggedMessage struct {
	Message
	Timestamp time.Time `json:"timestamp"`
}

// JoinRoomPayload is the client payload of the joinRoom event.
type JoinRoomPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// SendMessagePayload is the client payload of the sendMessage event.
type SendMessagePayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Text     string `json:"text"`
}

// Welcome builds the message sent only to a connection that just joined room.
func Welcome(username, room string) Message {
	return Message{
		Username: SystemSender,
		Text:     fmt.Sprintf("Welcome, %s! You joined room: %s", username, room),
		Room:     room,
	}
}

// JoinNotice builds the message sent to the other members of room when username joins.
func JoinNotice(username, room string) Message {
	return Message{
		Username: SystemSender,
		Text:     fmt.Sprintf("%s has joined the room.", username),
		Room:     room,
	}
}
