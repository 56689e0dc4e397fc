package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration using Viper.
// Priority order: Environment variables > Config file > Defaults
func LoadConfig(configPath string) (*ServerConfig, error) {
	v := viper.New()

	// Set config file details
	v.SetConfigName("server")
	v.SetConfigType("yaml")

	// Add config paths
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/convtrainer")
	}

	// Enable environment variable binding
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind specific environment variables
	// These allow both CONVTRAINER_SERVER_PORT and PORT to work
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.loglevel", "LOG_LEVEL")
	v.BindEnv("server.logformat", "LOG_FORMAT")
	v.BindEnv("server.ratelimit", "RATE_LIMIT")
	v.BindEnv("server.ratelimitburst", "RATE_LIMIT_BURST")
	v.BindEnv("server.maxrequestsize", "MAX_REQUEST_SIZE")
	v.BindEnv("server.enablemetrics", "ENABLE_METRICS")
	v.BindEnv("server.metricsport", "METRICS_PORT")
	v.BindEnv("game.maxrooms", "MAX_ROOMS")
	v.BindEnv("game.roomidlettl", "ROOM_IDLE_TTL")
	v.BindEnv("session.cookiename", "SESSION_COOKIE_NAME")
	v.BindEnv("session.signingkey", "SESSION_SIGNING_KEY")
	v.BindEnv("store.url", "STORE_URL")

	// Server defaults
	v.SetDefault("server.readtimeout", "15s")
	v.SetDefault("server.writetimeout", "15s")
	v.SetDefault("server.idletimeout", "60s")
	v.SetDefault("server.shutdowntimeout", "30s")
	v.SetDefault("server.requesttimeout", "60s")

	// Rate limiting defaults
	v.SetDefault("server.ratelimit", 10.0)
	v.SetDefault("server.ratelimitburst", 20)

	// Request limits
	v.SetDefault("server.maxrequestsize", 1048576) // 1MB

	// Monitoring defaults
	v.SetDefault("server.enablemetrics", false)
	v.SetDefault("server.loglevel", "info")
	v.SetDefault("server.logformat", "text")

	// Game defaults
	v.SetDefault("game.maxrooms", 500)
	v.SetDefault("game.roomidlettl", "1h")
	v.SetDefault("game.roomretention", "60s")
	v.SetDefault("game.sweepinterval", "15s")
	v.SetDefault("game.syncroundwindow", "5s")
	v.SetDefault("game.disconnectgrace", "30s")
	v.SetDefault("game.endeddrain", "5s")

	// Session defaults
	v.SetDefault("session.cookiename", "session")
	v.SetDefault("session.gamesessionttl", "2h")
	v.SetDefault("session.participanttokenttl", "4h")

	// Try to read config file (it's optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if strings.Contains(err.Error(), "no such file or directory") {
				// File doesn't exist, continue with env vars and defaults
			} else {
				// Config file was found but another error occurred
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
		// Config file not found; continue with env vars and defaults
	}

	// LISTEN_ADDR is the combined form; an explicit HOST/PORT pair wins.
	if addr := v.GetString("LISTEN_ADDR"); addr != "" {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid LISTEN_ADDR %q: %w", addr, err)
		}
		if v.GetString("server.host") == "" {
			v.Set("server.host", host)
		}
		if v.GetString("server.port") == "" {
			v.Set("server.port", port)
		}
	}

	// Create config struct
	cfg := &ServerConfig{}

	// Unmarshal into the struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Additional validation
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
