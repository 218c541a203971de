package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the universe host listens on.
	DefaultAddr = ":43180"
	// DefaultTickHz is the fixed simulation step frequency.
	DefaultTickHz = 60.0
	// DefaultMode selects the universe variant active at startup.
	DefaultMode = "wormhole"
	// DefaultSeed feeds the session's random source; zero derives a seed
	// from the wall clock at startup.
	DefaultSeed int64 = 0
	// DefaultPingInterval controls the keepalive cadence for WebSocket viewers.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultMaxClients bounds concurrent viewers. Zero disables the limit.
	DefaultMaxClients = 16

	// DefaultCommandMaxAge drops command frames older than this on arrival.
	DefaultCommandMaxAge = 500 * time.Millisecond
	// DefaultCommandMinInterval throttles command frames per client.
	DefaultCommandMinInterval = 5 * time.Millisecond

	// DefaultLogLevel controls verbosity for host logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "universe.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 50
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 5
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the universe host.
type Config struct {
	Address            string
	AllowedOrigins     []string
	TickHz             float64
	Mode               string
	Seed               int64
	ReplayDir          string
	AdminToken         string
	WSSecret           string
	MaxPayloadBytes    int64
	PingInterval       time.Duration
	MaxClients         int
	CommandMaxAge      time.Duration
	CommandMinInterval time.Duration
	Logging            LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the host configuration from environment variables, applying sane
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:            getString("UNIVERSE_ADDR", DefaultAddr),
		AllowedOrigins:     parseList(os.Getenv("UNIVERSE_ALLOWED_ORIGINS")),
		TickHz:             DefaultTickHz,
		Mode:               getString("UNIVERSE_MODE", DefaultMode),
		Seed:               DefaultSeed,
		ReplayDir:          strings.TrimSpace(os.Getenv("UNIVERSE_REPLAY_DIR")),
		AdminToken:         strings.TrimSpace(os.Getenv("UNIVERSE_ADMIN_TOKEN")),
		WSSecret:           strings.TrimSpace(os.Getenv("UNIVERSE_WS_SECRET")),
		MaxPayloadBytes:    DefaultMaxPayloadBytes,
		PingInterval:       DefaultPingInterval,
		MaxClients:         DefaultMaxClients,
		CommandMaxAge:      DefaultCommandMaxAge,
		CommandMinInterval: DefaultCommandMinInterval,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("UNIVERSE_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("UNIVERSE_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("UNIVERSE_TICK_HZ")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("UNIVERSE_TICK_HZ must be a positive number, got %q", raw))
		} else {
			cfg.TickHz = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("UNIVERSE_SEED")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("UNIVERSE_SEED must be an integer, got %q", raw))
		} else {
			cfg.Seed = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("UNIVERSE_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("UNIVERSE_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("UNIVERSE_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("UNIVERSE_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("UNIVERSE_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("UNIVERSE_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("UNIVERSE_CMD_MAX_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("UNIVERSE_CMD_MAX_AGE must be a non-negative duration, got %q", raw))
		} else {
			cfg.CommandMaxAge = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("UNIVERSE_CMD_MIN_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("UNIVERSE_CMD_MIN_INTERVAL must be a non-negative duration, got %q", raw))
		} else {
			cfg.CommandMinInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("UNIVERSE_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("UNIVERSE_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("UNIVERSE_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("UNIVERSE_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("UNIVERSE_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("UNIVERSE_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("UNIVERSE_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("UNIVERSE_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
