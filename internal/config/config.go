package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Media layout
	MediaRoot string // Root directory for uploads, intermediates, outputs and share codes
	AudioDir  string // Directory holding the category background tracks (life.mp3 etc.)
	TempDir   string // Scratch space for normalized clips and concat lists

	// Drive upload (optional; empty base URL disables remote upload)
	DriveUploadURL string
	DriveToken     string
	DriveFolderID  string

	// Worker
	MaxConcurrentRuns int
	RunTimeout        time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		MediaRoot:          getEnv("MEDIA_ROOT", "media"),
		AudioDir:           getEnv("AUDIO_DIR", "assets/audio"),
		TempDir:            getEnv("TEMP_DIR", "/tmp/reminisce"),
		DriveUploadURL:     getEnv("DRIVE_UPLOAD_URL", ""),
		DriveToken:         getEnv("DRIVE_TOKEN", ""),
		DriveFolderID:      getEnv("DRIVE_FOLDER_ID", ""),
		MaxConcurrentRuns:  getEnvInt("MAX_CONCURRENT_RUNS", 2),
		RunTimeout:         getEnvDuration("RUN_TIMEOUT", 30*time.Minute),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.MaxConcurrentRuns < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_RUNS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
