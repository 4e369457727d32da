package api

import (
	"errors"

	"github.com/example/room-relay/modules/relay"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxHistoryLimit = 1000

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes() {
	m.app.Get("/health", m.healthHandler)
	m.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})))

	// WebSocket endpoint
	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws", websocket.New(m.ws.HandleWebSocket))

	// REST API v1
	api := m.app.Group("/api/v1")
	api.Get("/rooms", m.listRooms)
	api.Get("/rooms/:room", m.getRoom)
	api.Get("/rooms/:room/history", m.getHistory)
	if m.presence != nil {
		api.Get("/rooms/:room/presence", m.getPresence)
	}
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	stats, err := m.relay.GetStats(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status:  "unhealthy",
			Details: map[string]any{"error": err.Error()},
		})
	}
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"connected_clients": stats.Sessions,
			"rooms":             stats.Rooms,
			"messages_relayed":  stats.MessagesRelayed,
			"sessions_evicted":  stats.SessionsEvicted,
		},
	})
}

// listRooms handles GET /api/v1/rooms.
func (m *APIModule) listRooms(c *fiber.Ctx) error {
	rooms, err := m.relay.ListRooms(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list rooms",
		})
	}
	return c.JSON(RoomListResponse{Rooms: rooms, Total: len(rooms)})
}

// getRoom handles GET /api/v1/rooms/:room.
func (m *APIModule) getRoom(c *fiber.Ctx) error {
	room := c.Params("room")

	members, err := m.relay.GetRoom(c.UserContext(), room)
	if err != nil {
		return roomError(c, err)
	}
	return c.JSON(RoomResponse{Room: room, Members: members, Count: len(members)})
}

// getHistory handles GET /api/v1/rooms/:room/history.
func (m *APIModule) getHistory(c *fiber.Ctx) error {
	room := c.Params("room")
	limit := c.QueryInt("limit", relay.DefaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "limit must be between 1 and 1000",
		})
	}

	messages, err := m.relay.GetHistory(c.UserContext(), room, limit)
	if err != nil {
		return roomError(c, err)
	}
	return c.JSON(HistoryResponse{Room: room, Messages: messages, Total: len(messages)})
}

// getPresence handles GET /api/v1/rooms/:room/presence.
func (m *APIModule) getPresence(c *fiber.Ctx) error {
	p, err := m.presence.Presence(c.UserContext(), c.Params("room"))
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "presence_unavailable",
			Message: "Presence store unavailable",
		})
	}
	return c.JSON(p)
}

func roomError(c *fiber.Ctx, err error) error {
	if errors.Is(err, relay.ErrRoomNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Room not found",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "lookup_failed",
		Message: "Failed to read room",
	})
}
