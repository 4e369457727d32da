package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	domain "github.com/example/room-relay/domain/relay"
	"github.com/example/room-relay/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module hosts the session manager and exposes its read side as services.
type Module struct {
	manager  *Manager
	eventBus mono.EventBus
	logger   types.Logger

	cancel context.CancelFunc

	joins   atomic.Uint64
	relayed atomic.Uint64
	closed  atomic.Uint64
	evicted atomic.Uint64
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ Observer                   = (*Module)(nil)
)

// NewModule creates the relay module around a fresh Manager.
func NewModule(cfg Config, metrics *Metrics, logger types.Logger) *Module {
	m := &Module{
		manager: NewManager(cfg, logger, metrics),
		logger:  logger,
	}
	m.manager.SetObserver(m)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "relay"
}

// Manager returns the session manager used by transports.
func (m *Module) Manager() *Manager {
	return m.manager
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.RoomJoinedV1.ToBase(),
		events.MessageRelayedV1.ToBase(),
		events.SessionClosedV1.ToBase(),
	}
}

// Start launches the dispatcher.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.manager.Run(ctx)
	m.logger.Info("Relay module started")
	return nil
}

// Stop closes every session and waits for the dispatcher to exit.
func (m *Module) Stop(_ context.Context) error {
	sessions := m.manager.SessionCount()
	if m.cancel != nil {
		m.cancel()
		m.manager.Wait()
	}
	m.logger.Info("Relay module stopped", "sessions", sessions)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	select {
	case <-m.manager.done:
		return mono.HealthStatus{Healthy: false, Message: "dispatcher stopped"}
	default:
	}
	return mono.HealthStatus{
		Healthy: m.cancel != nil,
		Message: "operational",
		Details: map[string]any{
			"sessions": m.manager.SessionCount(),
			"rooms":    m.manager.RoomCount(),
		},
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceListRooms,
		json.Unmarshal,
		json.Marshal,
		m.handleListRooms,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListRooms, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceGetRoom,
		json.Unmarshal,
		json.Marshal,
		m.handleGetRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetRoom, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceGetHistory,
		json.Unmarshal,
		json.Marshal,
		m.handleGetHistory,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetHistory, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceGetStats,
		json.Unmarshal,
		json.Marshal,
		m.handleGetStats,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetStats, err)
	}

	m.logger.Info("Registered relay services",
		"services", []string{ServiceListRooms, ServiceGetRoom, ServiceGetHistory, ServiceGetStats})
	return nil
}

func (m *Module) handleListRooms(_ context.Context, _ ListRoomsRequest, _ *mono.Msg) (ListRoomsResponse, error) {
	return ListRoomsResponse{Rooms: m.manager.Rooms()}, nil
}

func (m *Module) handleGetRoom(_ context.Context, req GetRoomRequest, _ *mono.Msg) (GetRoomResponse, error) {
	if !m.manager.RoomExists(req.Room) {
		return GetRoomResponse{Room: req.Room, Members: []string{}}, nil
	}
	return GetRoomResponse{
		Room:    req.Room,
		Members: m.manager.MemberNames(req.Room),
		Found:   true,
	}, nil
}

func (m *Module) handleGetHistory(_ context.Context, req GetHistoryRequest, _ *mono.Msg) (GetHistoryResponse, error) {
	if !m.manager.RoomExists(req.Room) {
		return GetHistoryResponse{Room: req.Room, Messages: []domain.LoggedMessage{}}, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return GetHistoryResponse{
		Room:     req.Room,
		Messages: m.manager.History(req.Room, limit),
		Found:    true,
	}, nil
}

func (m *Module) handleGetStats(_ context.Context, _ GetStatsRequest, _ *mono.Msg) (Stats, error) {
	return m.Stats(), nil
}

// Stats returns a snapshot of relay activity.
func (m *Module) Stats() Stats {
	return Stats{
		Sessions:        m.manager.SessionCount(),
		Rooms:           m.manager.RoomCount(),
		Joins:           m.joins.Load(),
		MessagesRelayed: m.relayed.Load(),
		SessionsClosed:  m.closed.Load(),
		SessionsEvicted: m.evicted.Load(),
	}
}

// RoomJoined publishes a RoomJoined event.
func (m *Module) RoomJoined(sessionID, username, room string) {
	m.joins.Add(1)
	m.publish("RoomJoined.v1", func(bus mono.EventBus) error {
		return events.RoomJoinedV1.Publish(bus, events.RoomJoinedEvent{
			SessionID: sessionID,
			Username:  username,
			Room:      room,
			Timestamp: time.Now(),
		}, nil)
	})
}

// MessageRelayed publishes a MessageRelayed event.
func (m *Module) MessageRelayed(msg domain.Message, recipients int) {
	m.relayed.Add(1)
	m.publish("MessageRelayed.v1", func(bus mono.EventBus) error {
		return events.MessageRelayedV1.Publish(bus, events.MessageRelayedEvent{
			Room:       msg.Room,
			Username:   msg.Username,
			Recipients: recipients,
			Timestamp:  time.Now(),
		}, nil)
	})
}

// SessionClosed publishes a SessionClosed event.
func (m *Module) SessionClosed(sessionID, username string, rooms []string, evicted bool) {
	m.closed.Add(1)
	if evicted {
		m.evicted.Add(1)
	}
	m.publish("SessionClosed.v1", func(bus mono.EventBus) error {
		return events.SessionClosedV1.Publish(bus, events.SessionClosedEvent{
			SessionID: sessionID,
			Username:  username,
			Rooms:     rooms,
			Evicted:   evicted,
			Timestamp: time.Now(),
		}, nil)
	})
}

// publish never fails the caller; relaying does not depend on the bus.
func (m *Module) publish(event string, fn func(mono.EventBus) error) {
	if m.eventBus == nil {
		return
	}
	if err := fn(m.eventBus); err != nil {
		m.logger.Warn("Failed to publish event", "event", event, "error", err)
	}
}
