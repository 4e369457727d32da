package relay

import (
	domain "github.com/example/room-relay/domain/relay"
	"github.com/example/room-relay/modules/registry"
)

// Service names for request-reply services exposed by the relay module.
const (
	ServiceListRooms  = "list-rooms"
	ServiceGetRoom    = "get-room"
	ServiceGetHistory = "get-history"
	ServiceGetStats   = "get-stats"
)

// DefaultHistoryLimit is used when a history request carries no limit.
const DefaultHistoryLimit = 50

// ListRoomsRequest is the request for listing rooms.
type ListRoomsRequest struct{}

// ListRoomsResponse is the response for listing rooms.
type ListRoomsResponse struct {
	Rooms []registry.RoomInfo `json:"rooms"`
}

// GetRoomRequest is the request for one room's members.
type GetRoomRequest struct {
	Room string `json:"room"`
}

// GetRoomResponse is the response for one room's members.
type GetRoomResponse struct {
	Room    string   `json:"room"`
	Members []string `json:"members"`
	Found   bool     `json:"found"`
}

// GetHistoryRequest is the request for a room's message log.
type GetHistoryRequest struct {
	Room  string `json:"room"`
	Limit int    `json:"limit,omitempty"`
}

// GetHistoryResponse is the response for a room's message log.
type GetHistoryResponse struct {
	Room     string                 `json:"room"`
	Messages []domain.LoggedMessage `json:"messages"`
	Found    bool                   `json:"found"`
}

// GetStatsRequest is the request for relay statistics.
type GetStatsRequest struct{}

// Stats is a snapshot of relay activity.
type Stats struct {
	Sessions        int    `json:"sessions"`
	Rooms           int    `json:"rooms"`
	Joins           uint64 `json:"joins"`
	MessagesRelayed uint64 `json:"messages_relayed"`
	SessionsClosed  uint64 `json:"sessions_closed"`
	SessionsEvicted uint64 `json:"sessions_evicted"`
}
