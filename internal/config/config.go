package config

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for a client session.
// It follows the 12-factor app methodology by prioritizing environment variables.
type Config struct {
	API   APIConfig
	Push  PushConfig
	Redis RedisConfig
}

type APIConfig struct {
	BaseURL string `validate:"required,url"`
	Token   string

	Environment string `validate:"oneof=development production"`
}

type PushConfig struct {
	URL string `validate:"required,url"`
}

// RedisConfig is only needed by server-adjacent consumers using the pub/sub
// push channel; Addr may stay empty for socket clients.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoadConfig loads configuration from environment variables.
// Defaults can be set here if needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			BaseURL:     getEnv("CHATSYNC_API_URL", "http://localhost:8080"),
			Token:       getEnv("CHATSYNC_TOKEN", ""),
			Environment: getEnv("APP_ENV", "development"),
		},
		Push: PushConfig{
			URL: getEnv("CHATSYNC_PUSH_URL", "ws://localhost:8080/ws"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
