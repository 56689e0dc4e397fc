package config

import (
	"fmt"
	"net"
	"time"
)

// This file defines the configuration structures used by viper_config.go.
// The actual loading is handled by viper in viper_config.go.

// ServerConfig is the full server configuration.
type ServerConfig struct {
	Server  ServerSettings  `yaml:"server"`
	Game    GameSettings    `yaml:"game"`
	Session SessionSettings `yaml:"session"`
	Store   StoreSettings   `yaml:"store"`
}

// ServerSettings contains the HTTP-facing settings.
type ServerSettings struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            string        `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"readTimeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"` // REST only; WS upgrades bypass it

	// Rate limiting (using golang.org/x/time/rate)
	RateLimit      float64 `yaml:"rateLimit" envconfig:"RATE_LIMIT" default:"10"`            // requests per second
	RateLimitBurst int     `yaml:"rateLimitBurst" envconfig:"RATE_LIMIT_BURST" default:"20"` // burst size

	// Request limits
	MaxRequestSize int64 `yaml:"maxRequestSize" envconfig:"MAX_REQUEST_SIZE" default:"1048576"` // 1MB

	// CORS
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// Monitoring
	EnableMetrics bool   `yaml:"enableMetrics" envconfig:"ENABLE_METRICS" default:"false"`
	MetricsPort   string `yaml:"metricsPort" envconfig:"METRICS_PORT"` // No default - must be set if metrics enabled
	LogLevel      string `yaml:"logLevel" envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `yaml:"logFormat" envconfig:"LOG_FORMAT" default:"text"`
}

// GameSettings tunes room and tournament behavior.
type GameSettings struct {
	MaxRooms        int           `yaml:"maxRooms" envconfig:"MAX_ROOMS" default:"500"`
	RoomIdleTTL     time.Duration `yaml:"roomIdleTTL" envconfig:"ROOM_IDLE_TTL" default:"1h"`
	RoomRetention   time.Duration `yaml:"roomRetention" default:"60s"`
	SweepInterval   time.Duration `yaml:"sweepInterval" default:"15s"`
	SyncRoundWindow time.Duration `yaml:"syncRoundWindow" default:"5s"`
	DisconnectGrace time.Duration `yaml:"disconnectGrace" default:"30s"`
	EndedDrain      time.Duration `yaml:"endedDrain" default:"5s"`
}

// SessionSettings covers identity: the account session cookie this
// service verifies and the short-lived tokens it mints itself.
type SessionSettings struct {
	CookieName          string        `yaml:"cookieName" envconfig:"SESSION_COOKIE_NAME" default:"session"`
	SigningKey          string        `yaml:"signingKey" envconfig:"SESSION_SIGNING_KEY"`
	GameSessionTTL      time.Duration `yaml:"gameSessionTTL" default:"2h"`
	ParticipantTokenTTL time.Duration `yaml:"participantTokenTTL" default:"4h"`
}

// StoreSettings selects the persistence backend. An empty URL runs the
// in-memory store, which is fine for development and useless for anything
// else.
type StoreSettings struct {
	URL string `yaml:"url" envconfig:"STORE_URL"`
}

// ListenAddr joins host and port for http.Server.
func (c *ServerConfig) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			Host:            "", // Must be set via env
			Port:            "", // Must be set via env
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,

			RateLimit:      10,
			RateLimitBurst: 20,

			MaxRequestSize: 1048576, // 1MB

			EnableMetrics: false,
			MetricsPort:   "", // Must be set if metrics enabled
			LogLevel:      "info",
			LogFormat:     "text",
		},
		Game: GameSettings{
			MaxRooms:        500,
			RoomIdleTTL:     time.Hour,
			RoomRetention:   60 * time.Second,
			SweepInterval:   15 * time.Second,
			SyncRoundWindow: 5 * time.Second,
			DisconnectGrace: 30 * time.Second,
			EndedDrain:      5 * time.Second,
		},
		Session: SessionSettings{
			CookieName:          "session",
			GameSessionTTL:      2 * time.Hour,
			ParticipantTokenTTL: 4 * time.Hour,
		},
	}
}

// Validate checks if the configuration is valid, repairing derivable
// fields where a zero value has an obvious meaning.
func (c *ServerConfig) Validate() error {
	// Required fields
	if c.Server.Port == "" {
		return fmt.Errorf("PORT environment variable must be set")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("HOST environment variable must be set")
	}
	if c.Session.SigningKey == "" {
		return fmt.Errorf("SESSION_SIGNING_KEY must be set")
	}

	// If metrics are enabled, port must be set
	if c.Server.EnableMetrics && c.Server.MetricsPort == "" {
		return fmt.Errorf("METRICS_PORT must be set when ENABLE_METRICS is true")
	}

	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("rateLimit must be positive")
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("rateLimitBurst must be at least 1")
	}
	if c.Server.MaxRequestSize < 1024 {
		return fmt.Errorf("maxRequestSize must be at least 1024 bytes")
	}

	if c.Game.MaxRooms < 0 {
		return fmt.Errorf("maxRooms cannot be negative")
	}
	if c.Game.RoomRetention <= 0 {
		c.Game.RoomRetention = 60 * time.Second
	}
	if c.Game.SweepInterval <= 0 {
		c.Game.SweepInterval = 15 * time.Second
	}
	if c.Game.SyncRoundWindow <= 0 {
		c.Game.SyncRoundWindow = 5 * time.Second
	}
	if c.Game.DisconnectGrace <= 0 {
		c.Game.DisconnectGrace = 30 * time.Second
	}
	if c.Game.EndedDrain <= 0 {
		c.Game.EndedDrain = 5 * time.Second
	}

	if c.Session.CookieName == "" {
		c.Session.CookieName = "session"
	}
	if c.Session.GameSessionTTL <= 0 {
		c.Session.GameSessionTTL = 2 * time.Hour
	}
	if c.Session.ParticipantTokenTTL <= 0 {
		c.Session.ParticipantTokenTTL = 4 * time.Hour
	}

	switch c.Server.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("logFormat must be text or json, got %q", c.Server.LogFormat)
	}

	return nil
}
