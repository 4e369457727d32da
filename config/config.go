// Package config loads relay settings from defaults, an optional config file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable pointing at an optional config file.
const ConfigFileEnv = "CONFIG_FILE"

// Config is the full application configuration.
type Config struct {
	Port     int            `mapstructure:"port"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
	Relay    RelayConfig    `mapstructure:"relay"`
	WS       WSConfig       `mapstructure:"ws"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// CORSConfig controls cross-origin access to the HTTP API.
type CORSConfig struct {
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ShutdownConfig bounds graceful shutdown.
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// RelayConfig tunes the session manager.
type RelayConfig struct {
	QueueSize         int  `mapstructure:"queue_size"`
	MaxDrops          int  `mapstructure:"max_drops"`
	HistorySize       int  `mapstructure:"history_size"`
	MaxRoomLength     int  `mapstructure:"max_room_length"`
	MaxUsernameLength int  `mapstructure:"max_username_length"`
	MaxTextLength     int  `mapstructure:"max_text_length"`
	EvictEmptyRooms   bool `mapstructure:"evict_empty_rooms"`
	RequireMembership bool `mapstructure:"require_membership"`
	CommandBuffer     int  `mapstructure:"command_buffer"`
}

// WSConfig tunes websocket connections.
type WSConfig struct {
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// RedisConfig configures the optional presence store. An empty Addr disables it.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

// PresenceEnabled reports whether a Redis address was configured.
func (c *Config) PresenceEnabled() bool {
	return c.Redis.Addr != ""
}

// PingInterval is how often the server pings a client; it must be shorter
// than the pong wait.
func (w WSConfig) PingInterval() time.Duration {
	return w.PongWait * 9 / 10
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("shutdown.timeout", 30*time.Second)

	v.SetDefault("relay.queue_size", 256)
	v.SetDefault("relay.max_drops", 64)
	v.SetDefault("relay.history_size", 100)
	v.SetDefault("relay.max_room_length", 100)
	v.SetDefault("relay.max_username_length", 50)
	v.SetDefault("relay.max_text_length", 5000)
	v.SetDefault("relay.evict_empty_rooms", false)
	v.SetDefault("relay.require_membership", false)
	v.SetDefault("relay.command_buffer", 1024)

	v.SetDefault("ws.write_timeout", 10*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.max_message_size", 65536)
	v.SetDefault("ws.rate_limit", 10)
	v.SetDefault("ws.rate_burst", 20)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "relay:")
	v.SetDefault("redis.presence_ttl", 24*time.Hour)
}

// Load reads configuration. path may be empty, in which case CONFIG_FILE is
// consulted and, failing that, only defaults and environment apply.
// Environment keys are upper-cased with dots replaced by underscores,
// e.g. RELAY_QUEUE_SIZE.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if c.Shutdown.Timeout <= 0 {
		errs = append(errs, errors.New("shutdown.timeout must be positive"))
	}

	r := c.Relay
	if r.QueueSize <= 0 {
		errs = append(errs, errors.New("relay.queue_size must be positive"))
	}
	if r.MaxDrops <= 0 {
		errs = append(errs, errors.New("relay.max_drops must be positive"))
	}
	if r.HistorySize < 0 {
		errs = append(errs, errors.New("relay.history_size must not be negative"))
	}
	if r.MaxRoomLength <= 0 || r.MaxUsernameLength <= 0 || r.MaxTextLength <= 0 {
		errs = append(errs, errors.New("relay length limits must be positive"))
	}
	if r.CommandBuffer < 0 {
		errs = append(errs, errors.New("relay.command_buffer must not be negative"))
	}

	w := c.WS
	if w.WriteTimeout <= 0 || w.PongWait <= 0 {
		errs = append(errs, errors.New("ws timeouts must be positive"))
	}
	if w.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("ws.max_message_size must be positive"))
	}
	if w.RateLimit <= 0 || w.RateBurst <= 0 {
		errs = append(errs, errors.New("ws rate limit and burst must be positive"))
	}
	if c.PresenceEnabled() && c.Redis.PresenceTTL <= 0 {
		errs = append(errs, errors.New("redis.presence_ttl must be positive"))
	}
	return errors.Join(errs...)
}
