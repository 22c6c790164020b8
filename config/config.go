package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	SRM           string
	LsCommand     string
	LongLsCommand string
	CopyCommand   string
	DasCommand    string
	ListJobs      int
	LogLevel      string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using environment variables only")
	}

	config := &Config{
		SRM:           getEnv("SRM_URL", ""),
		LsCommand:     getEnv("LS_COMMAND", "srmls"),
		LongLsCommand: getEnv("LONG_LS_COMMAND", "gfal-ls"),
		CopyCommand:   getEnv("COPY_COMMAND", "gfal-copy"),
		DasCommand:    getEnv("DAS_COMMAND", "dasgoclient"),
		ListJobs:      getEnvInt("LIST_JOBS", 10),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		slog.Warn("Invalid value, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}
