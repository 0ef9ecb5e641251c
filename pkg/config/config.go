package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"friendclub-backend/pkg/env"
)

// Config holds all configuration for the signaling service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cassandra CassandraConfig
	JWT       JWTConfig
	Log       LogConfig
	Signaling SignalingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Environment     string // development, staging, production
	ServiceName     string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string
	MaxConns       int
	MinConns       int
	ConnectRetries int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host                string
	Port                int
	Password            string
	DB                  int
	PoolSize            int
	Timeout             time.Duration
	HealthCheckInterval time.Duration
}

// CassandraConfig holds Cassandra configuration
type CassandraConfig struct {
	Hosts    []string
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret            string
	Audience          string
	AccessTokenExpiry time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// SignalingConfig holds the real-time signaling settings
type SignalingConfig struct {
	RingTimeout       time.Duration
	MaxConnections    int
	AllowedOrigins    []string
	PersistQueueSize  int
	PersistTimeout    time.Duration
	RequireAuth       bool
	CallEventsChannel string
	PresenceTTL       time.Duration
}

// Load reads an optional .env file (ENV_FILE overrides the path) and then the environment
func Load() (*Config, error) {
	envFile := env.GetString("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            env.GetInt("PORT", 8085),
			Environment:     env.GetString("ENV", "development"),
			ServiceName:     env.GetString("SERVICE_NAME", "signaling-service"),
			ShutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:           env.GetString("DB_HOST", "localhost"),
			Port:           env.GetInt("DB_PORT", 26257),
			User:           env.GetString("DB_USER", "root"),
			Password:       env.GetStringFromFile("DB_PASSWORD", ""),
			Database:       env.GetString("DB_NAME", "friendclub"),
			SSLMode:        env.GetString("DB_SSL_MODE", "disable"),
			MaxConns:       env.GetInt("DB_MAX_CONNS", 25),
			MinConns:       env.GetInt("DB_MIN_CONNS", 5),
			ConnectRetries: env.GetInt("DB_CONNECT_RETRIES", 5),
		},
		Redis: RedisConfig{
			Host:                env.GetString("REDIS_HOST", "localhost"),
			Port:                env.GetInt("REDIS_PORT", 6379),
			Password:            env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:                  env.GetInt("REDIS_DB", 0),
			PoolSize:            env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:             env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
			HealthCheckInterval: env.GetDuration("REDIS_HEALTH_CHECK_INTERVAL", 10*time.Second),
		},
		Cassandra: CassandraConfig{
			Hosts:    env.GetStringSlice("CASSANDRA_HOSTS", []string{"localhost"}),
			Keyspace: env.GetString("CASSANDRA_KEYSPACE", "friendclub"),
			Username: env.GetString("CASSANDRA_USER", ""),
			Password: env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
			Timeout:  env.GetDuration("CASSANDRA_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			Secret:            env.GetStringFromFile("JWT_SECRET", ""),
			Audience:          env.GetString("JWT_AUDIENCE", "friendclub-api"),
			AccessTokenExpiry: env.GetDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/signaling.log"),
		},
		Signaling: SignalingConfig{
			RingTimeout:       env.GetDuration("SIGNALING_RING_TIMEOUT", 30*time.Second),
			MaxConnections:    env.GetInt("WS_MAX_SIGNALING_CONNECTIONS", 1000),
			AllowedOrigins:    env.GetStringSlice("WS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
			PersistQueueSize:  env.GetInt("SIGNALING_PERSIST_QUEUE", 1024),
			PersistTimeout:    env.GetDuration("SIGNALING_PERSIST_TIMEOUT", 5*time.Second),
			RequireAuth:       env.GetBool("SIGNALING_REQUIRE_AUTH", false),
			CallEventsChannel: env.GetString("SIGNALING_CALL_EVENTS_CHANNEL", "calls:events"),
			PresenceTTL:       env.GetDuration("SIGNALING_PRESENCE_TTL", 10*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Environment == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
	}
	if c.Signaling.RequireAuth && c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set when SIGNALING_REQUIRE_AUTH is enabled")
	}
	if c.Signaling.RingTimeout <= 0 {
		return fmt.Errorf("SIGNALING_RING_TIMEOUT must be positive")
	}
	if c.Signaling.MaxConnections <= 0 {
		return fmt.Errorf("WS_MAX_SIGNALING_CONNECTIONS must be positive")
	}
	if c.Signaling.PersistQueueSize <= 0 {
		return fmt.Errorf("SIGNALING_PERSIST_QUEUE must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
