package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	DatabaseURL string
	RedisURL    string

	MeiliSearchHost string
	MeiliMasterKey  string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	JWTSecret     string
	JWTTTLMinutes string

	RateLimitGlobal    time.Duration
	RateLimitPost      time.Duration
	RateLimitCircle    time.Duration
	RateLimitStory     time.Duration
	StorySweepInterval time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		// Empty host means search runs on the database fallback.
		MeiliSearchHost: os.Getenv("MEILISEARCH_HOST"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		JWTTTLMinutes: getEnv("JWT_TTL_MINUTES", "1440"),
	}

	var err error
	cfg.RateLimitGlobal, err = time.ParseDuration(getEnv("RATE_LIMIT_GLOBAL", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_GLOBAL: %w", err)
	}
	cfg.RateLimitPost, err = time.ParseDuration(getEnv("RATE_LIMIT_POST", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_POST: %w", err)
	}
	cfg.RateLimitCircle, err = time.ParseDuration(getEnv("RATE_LIMIT_CIRCLE", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_CIRCLE: %w", err)
	}
	cfg.RateLimitStory, err = time.ParseDuration(getEnv("RATE_LIMIT_STORY", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_STORY: %w", err)
	}
	cfg.StorySweepInterval, err = time.ParseDuration(getEnv("STORY_SWEEP_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid STORY_SWEEP_INTERVAL: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
