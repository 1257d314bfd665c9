package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort             = "8080"
	defaultAgentSocketURL   = "wss://agents.breign.eu"
	defaultAgentAPIURL      = "https://api.breign.eu"
	defaultPingInterval     = 25 * time.Second
	defaultStatusTimeout    = 10 * time.Second
	defaultCleanupInterval  = 30 * time.Minute
	defaultCleanupRetention = 24 * time.Hour
)

// StoreKind selects the instance repository backend
type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreMongo  StoreKind = "mongo"
)

// Config holds application configuration
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// AgentSocketURL is the base of {base}/agents/{agentId}/sockets
	AgentSocketURL string
	// AgentAPIURL is the base of {base}/agents/{agentId}/status
	AgentAPIURL  string
	PingInterval time.Duration

	StatusTimeout time.Duration
	// StallTimeout of zero disables the playback stall watchdog
	StallTimeout time.Duration

	JWTSecret string

	InstanceStore StoreKind
	MongoURI      string
	MongoDatabase string

	CleanupInterval  time.Duration
	CleanupRetention time.Duration
}

// Load reads .env when present, then the environment
func Load() (Config, error) {
	// a missing .env file is fine outside development
	_ = godotenv.Load()

	cfg := Config{
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "json")),
		AgentSocketURL: strings.TrimSuffix(getEnv("AGENT_SOCKET_URL", defaultAgentSocketURL), "/"),
		AgentAPIURL:    strings.TrimSuffix(getEnv("AGENT_API_URL", defaultAgentAPIURL), "/"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		InstanceStore:  StoreKind(strings.ToLower(getEnv("INSTANCE_STORE", string(StoreMemory)))),
		MongoURI:       getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:  getEnv("MONGODB_DATABASE", "voicerelay"),
	}

	var err error
	if cfg.PingInterval, err = getDuration("AGENT_PING_INTERVAL", defaultPingInterval); err != nil {
		return Config{}, err
	}
	if cfg.StatusTimeout, err = getDuration("STATUS_TIMEOUT", defaultStatusTimeout); err != nil {
		return Config{}, err
	}
	if cfg.StallTimeout, err = getDuration("PLAYBACK_STALL_TIMEOUT", 0); err != nil {
		return Config{}, err
	}
	if cfg.CleanupInterval, err = getDuration("CLEANUP_INTERVAL", defaultCleanupInterval); err != nil {
		return Config{}, err
	}
	if cfg.CleanupRetention, err = getDuration("CLEANUP_RETENTION", defaultCleanupRetention); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks values that have no sane default
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("AGENT_PING_INTERVAL must be positive, got %s", c.PingInterval)
	}
	if c.StallTimeout < 0 {
		return fmt.Errorf("PLAYBACK_STALL_TIMEOUT must not be negative, got %s", c.StallTimeout)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive, got %s", c.CleanupInterval)
	}

	switch c.InstanceStore {
	case StoreMemory, StoreMongo:
	default:
		return fmt.Errorf("INSTANCE_STORE must be one of: memory, mongo")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
