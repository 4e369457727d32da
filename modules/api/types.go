package api

import (
	domain "github.com/example/room-relay/domain/relay"
	"github.com/example/room-relay/modules/registry"
)

// RoomListResponse is the API response for listing rooms.
type RoomListResponse struct {
	Rooms []registry.RoomInfo `json:"rooms"`
	Total int                 `json:"total"`
}

// RoomResponse is the API response for one room.
type RoomResponse struct {
	Room    string   `json:"room"`
	Members []string `json:"members"`
	Count   int      `json:"count"`
}

// HistoryResponse is the API response for message history.
type HistoryResponse struct {
	Room     string                 `json:"room"`
	Messages []domain.LoggedMessage `json:"messages"`
	Total    int                    `json:"total"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
