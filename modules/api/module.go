package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/example/room-relay/modules/presence"
	"github.com/example/room-relay/modules/relay"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
)

// WebSocketHandler serves one upgraded connection.
type WebSocketHandler interface {
	HandleWebSocket(c *websocket.Conn)
}

// Options configures the HTTP server.
type Options struct {
	Port           int
	AllowedOrigins string
	// Presence adds the presence dependency and route.
	Presence bool
}

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	opts     Options
	app      *fiber.App
	listener net.Listener
	relay    relay.RelayPort
	presence presence.PresencePort
	ws       WebSocketHandler
	gatherer prometheus.Gatherer
	logger   types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule.
func NewModule(opts Options, logger types.Logger) *APIModule {
	if opts.AllowedOrigins == "" {
		opts.AllowedOrigins = "*"
	}
	return &APIModule{
		opts:     opts,
		gatherer: prometheus.DefaultGatherer,
		logger:   logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	if m.opts.Presence {
		return []string{"relay", "presence"}
	}
	return []string{"relay"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "relay":
		m.relay = relay.NewRelayAdapter(container)
	case "presence":
		m.presence = presence.NewPresenceAdapter(container)
	}
}

// SetWebSocketHandler sets the /ws handler (called from main.go, since the
// relay manager is not exposed via ServiceContainer).
func (m *APIModule) SetWebSocketHandler(h WebSocketHandler) {
	m.ws = h
}

// SetGatherer sets the registry served at /metrics.
func (m *APIModule) SetGatherer(g prometheus.Gatherer) {
	m.gatherer = g
}

// Addr returns the bound listen address, or "" before Start.
func (m *APIModule) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.relay == nil {
		return errors.New("relay adapter dependency not set")
	}
	if m.ws == nil {
		return errors.New("websocket handler not set")
	}

	m.newApp()

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(m.opts.Port))
	if err != nil {
		return fmt.Errorf("HTTP server failed to listen: %w", err)
	}
	m.listener = ln

	go func() {
		if err := m.app.Listener(ln); err != nil {
			m.logger.Error("HTTP server error", "error", err)
		}
	}()

	m.logger.Info("HTTP server started", "addr", ln.Addr().String())
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"addr":     m.Addr(),
			"presence": m.presence != nil,
		},
	}
}

// newApp builds the Fiber app with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	m.app = fiber.New(fiber.Config{
		AppName:               "room-relay",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	m.app.Use(recover.New())
	m.app.Use(m.loggerMiddleware())
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: m.opts.AllowedOrigins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes()
	return m.app
}

// errorHandler handles Fiber errors.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}
	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// loggerMiddleware logs each request; websocket upgrades are logged by the
// websocket handler instead.
func (m *APIModule) loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		m.logger.Debug("HTTP request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start).String())
		return err
	}
}
