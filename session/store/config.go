package store

import (
	"os"
	"strconv"
	"time"
)

// RedisSessionConfigFromEnv builds Redis configuration from environment
// variables (DOCPANEL_REDIS_ADDR, DOCPANEL_REDIS_PASSWORD, DOCPANEL_REDIS_DB,
// DOCPANEL_REDIS_TTL).
func RedisSessionConfigFromEnv() *RedisConfig {
	config := DefaultRedisConfig()
	config.Addr = getEnv("DOCPANEL_REDIS_ADDR", config.Addr)
	config.Password = getEnv("DOCPANEL_REDIS_PASSWORD", config.Password)
	config.DB = getEnvInt("DOCPANEL_REDIS_DB", config.DB)
	config.TTL = getEnvDuration("DOCPANEL_REDIS_TTL", config.TTL)
	return config
}

// PostgresConfigFromEnv builds PostgreSQL configuration from environment
// variables (DOCPANEL_POSTGRES_HOST, DOCPANEL_POSTGRES_PORT,
// DOCPANEL_POSTGRES_USER, DOCPANEL_POSTGRES_PASSWORD, DOCPANEL_POSTGRES_DB,
// DOCPANEL_POSTGRES_SSLMODE).
func PostgresConfigFromEnv() *PostgresConfig {
	config := DefaultPostgresConfig()
	config.Host = getEnv("DOCPANEL_POSTGRES_HOST", config.Host)
	config.Port = getEnvInt("DOCPANEL_POSTGRES_PORT", config.Port)
	config.User = getEnv("DOCPANEL_POSTGRES_USER", config.User)
	config.Password = getEnv("DOCPANEL_POSTGRES_PASSWORD", config.Password)
	config.DBName = getEnv("DOCPANEL_POSTGRES_DB", config.DBName)
	config.SSLMode = getEnv("DOCPANEL_POSTGRES_SSLMODE", config.SSLMode)
	return config
}

// MongoConfigFromEnv builds MongoDB configuration from environment variables
// (DOCPANEL_MONGODB_URI, DOCPANEL_MONGODB_DATABASE,
// DOCPANEL_MONGODB_COLLECTION).
func MongoConfigFromEnv() *MongoConfig {
	config := DefaultMongoConfig()
	config.URI = getEnv("DOCPANEL_MONGODB_URI", config.URI)
	config.Database = getEnv("DOCPANEL_MONGODB_DATABASE", config.Database)
	config.Collection = getEnv("DOCPANEL_MONGODB_COLLECTION", config.Collection)
	return config
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
