package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	ServerPort string

	// Empty RedisAddr disables API rate limiting.
	RedisAddr     string
	RedisPassword string

	CleanupIntervalMin   int
	MessageRetentionDays int
	UserRetentionDays    int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using environment variables")
	}

	return &Config{
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "postgres"),
		DBPassword:           getEnv("DB_PASSWORD", "postgres"),
		DBName:               getEnv("DB_NAME", "securechat"),
		ServerPort:           getEnv("SERVER_PORT", "8000"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		CleanupIntervalMin:   getEnvInt("CLEANUP_INTERVAL_MIN", 5),
		MessageRetentionDays: getEnvInt("MESSAGE_RETENTION_DAYS", 7),
		UserRetentionDays:    getEnvInt("USER_RETENTION_DAYS", 30),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
		logrus.Warnf("invalid value for %s, using default %d", key, fallback)
	}
	return fallback
}
