package config

import (
	"log/slog"
	"os"
	"strconv"
)

type Config struct {
	// MongoDB configuration
	MongoURI     string
	DatabaseName string

	// Redis work queue configuration
	RedisAddr     string
	QueueKey      string
	QueueWorkers  int
	QueueRate     int // processed events per second, across all workers
	QueueMaxRetry int

	// Webhook configuration
	VerifyToken string

	// Free tier defaults applied when a tenant has no subscription
	FreeTierMessages int64
	FreeTierAITokens int64
	FreeTierDays     int

	// Server configuration
	Port string
}

func LoadConfig() *Config {
	cfg := &Config{
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName:     getEnv("MONGO_DB_NAME", "instagram_bot"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		QueueKey:         getEnv("QUEUE_KEY", "events:inbound"),
		QueueWorkers:     getEnvInt("QUEUE_WORKERS", 10),
		QueueRate:        getEnvInt("QUEUE_RATE_PER_SEC", 50),
		QueueMaxRetry:    getEnvInt("QUEUE_MAX_RETRY", 3),
		VerifyToken:      getEnv("WEBHOOK_VERIFY_TOKEN", "webhook_verify_token"),
		FreeTierMessages: int64(getEnvInt("FREE_TIER_MESSAGES", 500)),
		FreeTierAITokens: int64(getEnvInt("FREE_TIER_AI_TOKENS", 20000)),
		FreeTierDays:     getEnvInt("FREE_TIER_DAYS", 30),
		Port:             getEnv("PORT", "8080"),
	}

	// Validate required configuration
	if cfg.MongoURI == "" {
		slog.Error("MONGO_URI not set")
	}

	return cfg
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
		slog.Warn("Invalid integer env value, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}
