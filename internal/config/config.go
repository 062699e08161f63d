package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the service.
// It follows the 12-factor app methodology: everything comes from the
// environment, with sensible defaults baked in.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Limits   LimitsConfig
}

type ServerConfig struct {
	Port        string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// DSN renders the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// BridgeEnabled turns on the cross-process hub relay.
	BridgeEnabled bool
}

type AuthConfig struct {
	JWTSecret string
}

type LimitsConfig struct {
	MaxSessionsPerUser   int
	MaxRoomParticipants  int
	MaxCallParticipants  int
	SubscriberQueueDepth int
	FrameRateBurst       int
	FrameRateSustained   int
	MaxFrameBytes        int64
	MaxContentBytes      int
	PresenceWindow       time.Duration
	WriteTimeout         time.Duration
	StoreTimeout         time.Duration
	PublishGrace         time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "comms"),
			Password: getEnv("DB_PASSWORD", "comms"),
			Name:     getEnv("DB_NAME", "startuphub_comms"),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			BridgeEnabled: getEnvAsBool("REDIS_BRIDGE", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		},
		Limits: LimitsConfig{
			MaxSessionsPerUser:   getEnvAsInt("MAX_SESSIONS_PER_USER", 8),
			MaxRoomParticipants:  getEnvAsInt("MAX_ROOM_PARTICIPANTS", 500),
			MaxCallParticipants:  getEnvAsInt("MAX_CALL_PARTICIPANTS", 20),
			SubscriberQueueDepth: getEnvAsInt("SUBSCRIBER_QUEUE_DEPTH", 256),
			FrameRateBurst:       getEnvAsInt("FRAME_RATE_BURST", 20),
			FrameRateSustained:   getEnvAsInt("FRAME_RATE_SUSTAINED", 5),
			MaxFrameBytes:        int64(getEnvAsInt("MAX_FRAME_BYTES", 64*1024)),
			MaxContentBytes:      getEnvAsInt("MAX_CONTENT_BYTES", 4096),
			PresenceWindow:       getEnvAsDuration("PRESENCE_WINDOW", 30*time.Second),
			WriteTimeout:         getEnvAsDuration("WRITE_TIMEOUT", 5*time.Second),
			StoreTimeout:         getEnvAsDuration("STORE_TIMEOUT", 2*time.Second),
			PublishGrace:         getEnvAsDuration("PUBLISH_GRACE", 50*time.Millisecond),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
