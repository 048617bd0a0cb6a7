package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	APIBaseURL   string `validate:"required,url"`
	SocketURL    string `validate:"required,url"`
	SessionToken string `validate:"required"`

	MetricsAddr string

	ReconnectSeconds   int `validate:"gte=1"`
	HTTPTimeoutSeconds int `validate:"gte=1"`
}

func LoadAppConfig() *AppConfig {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, reading from system environment variables")
	}

	return &AppConfig{
		APIBaseURL:   getEnv("API_BASE_URL", "http://localhost:5000"),
		SocketURL:    getEnv("SOCKET_URL", "ws://localhost:5000/ws"),
		SessionToken: mustGetEnv("SESSION_TOKEN"),

		MetricsAddr: getEnv("METRICS_ADDR", ""),

		ReconnectSeconds:   getEnvAsInt("RECONNECT_SECONDS", 2),
		HTTPTimeoutSeconds: getEnvAsInt("HTTP_TIMEOUT_SECONDS", 10),
	}
}

func mustGetEnv(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		slog.Error("Environment variable is required but not set", "key", key)
		os.Exit(1)
	}
	return value
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		slog.Warn("Environment variable must be an integer, using fallback", "key", key, "value", valStr, "fallback", fallback)
		return fallback
	}
	return val
}
