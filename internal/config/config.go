// Package config provides configuration management for the library sync service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Networks NetworksConfig
	Worker   WorkerConfig
	Sync     SyncConfig
	Cache    CacheConfig
	Recalc   RecalcConfig
	Logging  LoggingConfig
}

// ServerConfig holds ops server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// NetworksConfig holds per-network API credentials
type NetworksConfig struct {
	Enabled     []string
	Steam       SteamConfig
	Xbox        XboxConfig
	PlayStation PlayStationConfig
	GOG         GOGConfig
}

// SteamConfig holds Steam Web API configuration
type SteamConfig struct {
	APIKey string
}

// XboxConfig holds Xbox Live API configuration
type XboxConfig struct {
	APIKey string
}

// PlayStationConfig holds PlayStation Network API configuration
type PlayStationConfig struct {
	AccessToken string
}

// GOGConfig holds GOG configuration (public profile endpoints, no key required)
type GOGConfig struct {
	BaseURL string
}

// WorkerConfig holds import worker configuration
type WorkerConfig struct {
	ProcessNum     int           // this worker's partition number
	ProcessCount   int           // total worker processes
	PollInterval   time.Duration // queue poll interval
	NetworkTimeout time.Duration // hard deadline per network fetch
	MaxRetries     int           // retry cap for a failing import job
	RestartDelay   time.Duration // backoff slope after a network deadline
	UnavailDelay   time.Duration // backoff slope after a transient failure
	MaxRetryDelay  time.Duration // ceiling on any computed backoff
	FastWindow     time.Duration // played-within window for fast resyncs
}

// SyncConfig holds periodic sync sweep configuration
type SyncConfig struct {
	RetryBudget  int           // resume attempts per network batch per run
	ActiveWindow time.Duration // how recently a user must have been active
}

// CacheConfig holds resolver cache configuration
type CacheConfig struct {
	ResolveTTL time.Duration
}

// RecalcConfig holds achievement recalculation configuration
type RecalcConfig struct {
	MaxPasses int // circuit breaker on the percent self-heal loop
	BatchSize int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "library_sync"),
				User:           getEnv("POSTGRES_USER", "sync"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 100),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "library_sync"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Networks: NetworksConfig{
			Enabled: splitList(getEnv("ENABLED_NETWORKS", "steam,xbox,playstation,gog")),
			Steam: SteamConfig{
				APIKey: getEnv("STEAM_API_KEY", ""),
			},
			Xbox: XboxConfig{
				APIKey: getEnv("XBOX_API_KEY", ""),
			},
			PlayStation: PlayStationConfig{
				AccessToken: getEnv("PSN_ACCESS_TOKEN", ""),
			},
			GOG: GOGConfig{
				BaseURL: getEnv("GOG_BASE_URL", "https://www.gog.com"),
			},
		},
		Worker: WorkerConfig{
			ProcessNum:     getEnvAsInt("WORKER_PROCESS_NUM", 0),
			ProcessCount:   getEnvAsInt("WORKER_PROCESS_COUNT", 1),
			PollInterval:   getEnvAsDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			NetworkTimeout: getEnvAsDuration("WORKER_NETWORK_TIMEOUT", 10*time.Minute),
			MaxRetries:     getEnvAsInt("WORKER_MAX_RETRIES", 25),
			RestartDelay:   getEnvAsDuration("WORKER_RESTART_DELAY", 2*time.Minute),
			UnavailDelay:   getEnvAsDuration("WORKER_UNAVAILABLE_DELAY", 10*time.Minute),
			MaxRetryDelay:  getEnvAsDuration("WORKER_MAX_RETRY_DELAY", 6*time.Hour),
			FastWindow:     getEnvAsDuration("WORKER_FAST_WINDOW", 30*24*time.Hour),
		},
		Sync: SyncConfig{
			RetryBudget:  getEnvAsInt("SYNC_RETRY_BUDGET", 3),
			ActiveWindow: getEnvAsDuration("SYNC_ACTIVE_WINDOW", 7*24*time.Hour),
		},
		Cache: CacheConfig{
			ResolveTTL: getEnvAsDuration("RESOLVE_CACHE_TTL", 4*time.Hour),
		},
		Recalc: RecalcConfig{
			MaxPasses: getEnvAsInt("RECALC_MAX_PASSES", 3),
			BatchSize: getEnvAsInt("RECALC_BATCH_SIZE", 500),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks invariants that would make a worker unsafe to run
func (c *Config) Validate() error {
	if c.Worker.ProcessCount < 1 {
		return fmt.Errorf("WORKER_PROCESS_COUNT must be >= 1, got %d", c.Worker.ProcessCount)
	}
	if c.Worker.ProcessNum < 0 || c.Worker.ProcessNum >= c.Worker.ProcessCount {
		return fmt.Errorf("WORKER_PROCESS_NUM must be in [0, %d), got %d",
			c.Worker.ProcessCount, c.Worker.ProcessNum)
	}
	if c.Worker.MaxRetries < 1 {
		return fmt.Errorf("WORKER_MAX_RETRIES must be >= 1, got %d", c.Worker.MaxRetries)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
