package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Port        string
	BindAddress string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// StoreBackend selects "redis" or "memory" (single-process, for local dev).
	StoreBackend string

	DisconnectGrace time.Duration
	RoundDuration   time.Duration
	LeaseTTL        time.Duration

	MaxPlayers  int
	MinPlayers  int
	StoryTarget int
	PinLength   int
}

func Load() *Config {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		BindAddress:     getEnv("BIND_ADDRESS", ""),
		RedisHost:       getEnv("REDIS_HOST", "localhost"),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		StoreBackend:    getEnv("STORE_BACKEND", "redis"),
		DisconnectGrace: getEnvDuration("DISCONNECT_GRACE", 60*time.Second),
		RoundDuration:   getEnvDuration("ROUND_DURATION", 30*time.Second),
		LeaseTTL:        getEnvDuration("LEASE_TTL", 30*time.Second),
		MaxPlayers:      getEnvInt("MAX_PLAYERS", 10),
		MinPlayers:      getEnvInt("MIN_PLAYERS", 3),
		StoryTarget:     getEnvInt("STORY_TARGET", 8),
		PinLength:       getEnvInt("PIN_LENGTH", 4),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func InitRedis(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
