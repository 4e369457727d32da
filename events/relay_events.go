package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// RoomJoinedEvent is emitted when a session becomes a member of a room.
type RoomJoinedEvent struct {
	SessionID string    `json:"session_id"`
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageRelayedEvent is emitted after a user message has been fanned out.
type MessageRelayedEvent struct {
	Room       string    `json:"room"`
	Username   string    `json:"username"`
	Recipients int       `json:"recipients"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionClosedEvent is emitted when a session is torn down, either by the
// client disconnecting or by slow-consumer eviction.
type SessionClosedEvent struct {
	SessionID string    `json:"session_id"`
	Username  string    `json:"username"`
	Rooms     []string  `json:"rooms"`
	Evicted   bool      `json:"evicted"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the relay domain.
var (
	RoomJoinedV1 = helper.EventDefinition[RoomJoinedEvent](
		"relay",
		"RoomJoined",
		"v1",
	)

	MessageRelayedV1 = helper.EventDefinition[MessageRelayedEvent](
		"relay",
		"MessageRelayed",
		"v1",
	)

	SessionClosedV1 = helper.EventDefinition[SessionClosedEvent](
		"relay",
		"SessionClosed",
		"v1",
	)
)
