// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Remote  RemoteConfig
	Queue   QueueConfig
	Sync    SyncConfig
	Export  ExportConfig
	Logging LoggingConfig
}

type RemoteConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type QueueConfig struct {
	// Path of the SQLite queue database. ":memory:" keeps the queue
	// in-process, which loses pending changes on exit.
	Path string
}

type SyncConfig struct {
	ChunkSize     int
	ChunkPause    time.Duration
	DrainInterval time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
}

type ExportConfig struct {
	OutputDir string
	Width     int
	Height    int
	Quality   int
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	chunkPause, err := time.ParseDuration(getEnv("LOOM_SYNC_CHUNK_PAUSE", "150ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOOM_SYNC_CHUNK_PAUSE: %w", err)
	}

	drainInterval, err := time.ParseDuration(getEnv("LOOM_SYNC_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOOM_SYNC_INTERVAL: %w", err)
	}

	backoffBase, err := time.ParseDuration(getEnv("LOOM_SYNC_BACKOFF_BASE", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOOM_SYNC_BACKOFF_BASE: %w", err)
	}

	backoffMax, err := time.ParseDuration(getEnv("LOOM_SYNC_BACKOFF_MAX", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOOM_SYNC_BACKOFF_MAX: %w", err)
	}

	remoteTimeout, err := time.ParseDuration(getEnv("LOOM_REMOTE_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOOM_REMOTE_TIMEOUT: %w", err)
	}

	return &Config{
		Remote: RemoteConfig{
			BaseURL: getEnv("LOOM_REMOTE_URL", "http://localhost:8080"),
			Token:   getEnv("LOOM_REMOTE_TOKEN", ""),
			Timeout: remoteTimeout,
		},
		Queue: QueueConfig{
			Path: getEnv("LOOM_QUEUE_PATH", defaultQueuePath()),
		},
		Sync: SyncConfig{
			ChunkSize:     getEnvAsInt("LOOM_SYNC_CHUNK_SIZE", 5),
			ChunkPause:    chunkPause,
			DrainInterval: drainInterval,
			MaxRetries:    getEnvAsInt("LOOM_SYNC_MAX_RETRIES", 5),
			BackoffBase:   backoffBase,
			BackoffMax:    backoffMax,
		},
		Export: ExportConfig{
			OutputDir: getEnv("LOOM_EXPORT_DIR", "."),
			Width:     getEnvAsInt("LOOM_EXPORT_WIDTH", 1024),
			Height:    getEnvAsInt("LOOM_EXPORT_HEIGHT", 1024),
			Quality:   getEnvAsInt("LOOM_EXPORT_QUALITY", 90),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOOM_LOG_LEVEL", "info"),
		},
	}, nil
}

func defaultQueuePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/loom/queue.db"
	}
	return "loom-queue.db"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
