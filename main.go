package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/example/room-relay/config"
	"github.com/example/room-relay/modules/api"
	"github.com/example/room-relay/modules/presence"
	"github.com/example/room-relay/modules/relay"
	"github.com/example/room-relay/modules/wsserver"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	log.Println("=== Room Relay - Fiber WebSocket + mono ===")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.Shutdown.Timeout),
		mono.WithLogLevel(logLevel(cfg.Log.Level)),
		mono.WithLogFormat(logFormat(cfg.Log.Format)),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Create modules
	relayModule := relay.NewModule(relayConfig(cfg), relay.NewMetrics(reg), logger.WithModule("relay"))
	apiModule := api.NewModule(api.Options{
		Port:           cfg.Port,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Presence:       cfg.PresenceEnabled(),
	}, logger.WithModule("api"))

	// The manager is not exposed via ServiceContainer, so the websocket
	// handler is injected directly.
	apiModule.SetWebSocketHandler(wsserver.NewHandlers(relayModule.Manager(), wsserver.Options{
		WriteTimeout:   cfg.WS.WriteTimeout,
		PongWait:       cfg.WS.PongWait,
		PingInterval:   cfg.WS.PingInterval(),
		MaxMessageSize: cfg.WS.MaxMessageSize,
		RateLimit:      cfg.WS.RateLimit,
		RateBurst:      cfg.WS.RateBurst,
	}, logger.WithModule("wsserver")))
	apiModule.SetGatherer(reg)

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - relay: session manager (ServiceProviderModule + EventEmitterModule)
	// - presence: optional Redis presence (EventConsumerModule + ServiceProviderModule)
	// - api: driving adapter (Fiber HTTP/WebSocket server, depends on relay)
	app.Register(relayModule)
	if cfg.PresenceEnabled() {
		app.Register(presence.NewModule(presence.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.PresenceTTL,
		}, logger.WithModule("presence")))
	}
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	logger.Info("Room relay started",
		"addr", apiModule.Addr(),
		"websocket", "/ws",
		"presence", cfg.PresenceEnabled())
	logger.Info("Press Ctrl+C to shutdown gracefully")

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Shutdown.Timeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func relayConfig(cfg *config.Config) relay.Config {
	return relay.Config{
		Limits: relay.Limits{
			MaxUsernameLength: cfg.Relay.MaxUsernameLength,
			MaxRoomLength:     cfg.Relay.MaxRoomLength,
			MaxTextLength:     cfg.Relay.MaxTextLength,
		},
		QueueSize:         cfg.Relay.QueueSize,
		MaxDrops:          cfg.Relay.MaxDrops,
		HistorySize:       cfg.Relay.HistorySize,
		CommandBuffer:     cfg.Relay.CommandBuffer,
		WriteTimeout:      cfg.WS.WriteTimeout,
		EvictEmptyRooms:   cfg.Relay.EvictEmptyRooms,
		RequireMembership: cfg.Relay.RequireMembership,
	}
}

func logLevel(level string) mono.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return mono.LogLevelDebug
	case "warn":
		return mono.LogLevelWarn
	case "error":
		return mono.LogLevelError
	default:
		return mono.LogLevelInfo
	}
}

func logFormat(format string) mono.LogFormat {
	if strings.ToLower(format) == "json" {
		return mono.LogFormatJSON
	}
	return mono.LogFormatText
}
