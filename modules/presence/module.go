package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/room-relay/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// opTimeout bounds each Redis round trip made from an event consumer.
const opTimeout = 3 * time.Second

// Config configures the presence module.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Module mirrors relay membership into Redis from relay events.
type Module struct {
	cfg    Config
	client *redis.Client
	store  *Store
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
)

// NewModule creates the presence module. The Redis connection is verified on Start.
func NewModule(cfg Config, logger types.Logger) *Module {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &Module{
		cfg:    cfg,
		client: client,
		store:  NewStore(client, cfg.Prefix, cfg.TTL),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "presence"
}

// Start verifies the Redis connection.
func (m *Module) Start(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	m.logger.Info("Presence module started", "addr", m.cfg.Addr, "prefix", m.cfg.Prefix, "ttl", m.cfg.TTL)
	return nil
}

// Stop closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	m.logger.Info("Presence module stopped")
	return nil
}

// Health reports whether Redis answers.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("redis ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"redis": m.cfg.Addr,
		},
	}
}

// Store returns the presence store.
func (m *Module) Store() *Store {
	return m.store
}

// RegisterServices registers the presence-count service.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServicePresenceCount,
		json.Unmarshal,
		json.Marshal,
		m.handlePresence,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServicePresenceCount, err)
	}
	return nil
}

// RegisterEventConsumers subscribes to relay membership events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomJoinedV1, m.handleRoomJoined, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.SessionClosedV1, m.handleSessionClosed, m,
	); err != nil {
		return fmt.Errorf("failed to register SessionClosed consumer: %w", err)
	}
	m.logger.Info("Registered presence event consumers")
	return nil
}

func (m *Module) handlePresence(ctx context.Context, req PresenceRequest, _ *mono.Msg) (Presence, error) {
	names, err := m.store.Usernames(ctx, req.Room)
	if err != nil {
		return Presence{}, err
	}
	count, err := m.store.Count(ctx, req.Room)
	if err != nil {
		return Presence{}, err
	}
	return Presence{Room: req.Room, Count: count, Usernames: names}, nil
}

// Redis errors are logged and swallowed so relay events are never redelivered.
func (m *Module) handleRoomJoined(ctx context.Context, ev events.RoomJoinedEvent, _ *mono.Msg) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := m.store.Join(ctx, ev.SessionID, ev.Username, ev.Room); err != nil {
		m.logger.Warn("Failed to record presence", "sessionID", ev.SessionID, "room", ev.Room, "error", err)
	}
	return nil
}

func (m *Module) handleSessionClosed(ctx context.Context, ev events.SessionClosedEvent, _ *mono.Msg) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := m.store.Leave(ctx, ev.SessionID, ev.Rooms); err != nil {
		m.logger.Warn("Failed to clear presence", "sessionID", ev.SessionID, "error", err)
	}
	return nil
}
