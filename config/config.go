package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Chat     ChatConfig
	Presence PresenceConfig
	NATS     NATSConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

type ChatConfig struct {
	// MaxMessageLength caps message size in runes, checked before any
	// mutation. 0 disables the check.
	MaxMessageLength int
}

// PresenceConfig holds the presence policy knobs. The defaults mirror the
// thresholds the client UI was built against; they are tunable, not load-bearing.
type PresenceConfig struct {
	// DisconnectThreshold delays the status recomputation after a disconnect
	// so a page refresh doesn't flicker the user offline and back.
	DisconnectThreshold time.Duration
	// CheckInterval is how often the reconciler sweeps.
	CheckInterval time.Duration
	// ZombieTimeout is how stale a client row must be before it is reclaimed.
	ZombieTimeout time.Duration
	// IdleTimeout is how long without activity before a user is marked inactive.
	IdleTimeout time.Duration
}

// NATSConfig enables the cross-node broadcast backplane when URL is set.
type NATSConfig struct {
	URL string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Env:          getEnv("ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_DSN", "jabbr:jabbr@tcp(localhost:3306)/jabbr?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
			Issuer:        "jabbr",
		},
		Chat: ChatConfig{
			MaxMessageLength: getEnvInt("CHAT_MAX_MESSAGE_LENGTH", 2000),
		},
		Presence: PresenceConfig{
			DisconnectThreshold: 10 * time.Second,
			CheckInterval:       time.Minute,
			ZombieTimeout:       3 * time.Minute,
			IdleTimeout:         5 * time.Minute,
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
