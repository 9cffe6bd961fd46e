// Package config loads the DIPEO_* environment variables spec.md §6
// enumerates, following the 12-factor convention the whole pack uses:
// every example repo takes configuration from the environment, never a
// bespoke config file format of its own.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// StorageBackend selects which store.Backend cmd/enginectl wires up.
type StorageBackend string

const (
	BackendSQLite StorageBackend = "local"
	BackendMySQL  StorageBackend = "mysql"
)

// Config is the fully-parsed, typed view of every DIPEO_* variable.
// Fields are grouped the way spec.md §6 groups them (state, event,
// execution, storage) rather than alphabetically, so the struct reads
// like the spec table it mirrors.
type Config struct {
	// State store (C3)
	StateCacheSize            int
	StateCheckpointInterval   int
	StateWarmCacheSize        int
	StatePersistenceDelay     time.Duration

	// Event bus / message router (C4/C5)
	EventQueueSize    int
	EnableEventStore  bool
	MsgBatchMax       int
	MsgBatchInterval  time.Duration
	MsgBufferMax      int
	WSKeepaliveSec    int

	// Execution (C6-C9)
	ExecutionParallelism int
	MaxIterations        int
	NodeTimeout          time.Duration
	ExecutionTimeout     time.Duration

	// Storage backend
	StorageBackend StorageBackend
	BaseDir        string
	S3Bucket       string
	S3Region       string

	// Logging (not a spec.md §6 entry; carried from the pack's 12-factor
	// convention of also reading LOG_LEVEL/LOG_FORMAT from the environment)
	LogLevel  string
	LogFormat string
}

// Load reads every DIPEO_* variable from the environment, applying the
// defaults spec.md §6 documents for anything unset. It first attempts to
// load a ".env" file in the working directory via godotenv so
// cmd/enginectl can run from a checked-out diagram directory without
// exporting a dozen variables by hand; a missing .env file is not an
// error, but a malformed one is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{
		StateCacheSize:          getInt("DIPEO_STATE_CACHE_SIZE", 1000),
		StateCheckpointInterval: getInt("DIPEO_STATE_CHECKPOINT_INTERVAL", 10),
		StateWarmCacheSize:      getInt("DIPEO_STATE_WARM_CACHE_SIZE", 20),
		StatePersistenceDelay:   getSeconds("DIPEO_STATE_PERSISTENCE_DELAY", 5.0),

		EventQueueSize:   getInt("DIPEO_EVENT_QUEUE_SIZE", 10000),
		EnableEventStore: getBool("DIPEO_ENABLE_EVENT_STORE", false),
		MsgBatchMax:      getInt("DIPEO_MSG_BATCH_MAX", 25),
		MsgBatchInterval: getMillis("DIPEO_MSG_BATCH_INTERVAL", 50),
		MsgBufferMax:     getInt("DIPEO_MSG_BUFFER_MAX", 50),
		WSKeepaliveSec:   getInt("DIPEO_WS_KEEPALIVE_SEC", 25),

		ExecutionParallelism: getInt("DIPEO_EXECUTION_PARALLELISM", 15),
		MaxIterations:        getInt("DIPEO_MAX_ITERATIONS", 150),
		NodeTimeout:          getSeconds("DIPEO_NODE_TIMEOUT", 100),
		ExecutionTimeout:     getSeconds("DIPEO_EXECUTION_TIMEOUT", 3600),

		StorageBackend: StorageBackend(getString("DIPEO_STORAGE_BACKEND", string(BackendSQLite))),
		BaseDir:        getString("DIPEO_BASE_DIR", "."),
		S3Bucket:       getString("DIPEO_S3_BUCKET", ""),
		S3Region:       getString("DIPEO_S3_REGION", ""),

		LogLevel:  getString("LOG_LEVEL", "info"),
		LogFormat: getString("LOG_FORMAT", "json"),
	}

	if cfg.StorageBackend != BackendSQLite && cfg.StorageBackend != BackendMySQL {
		return nil, fmt.Errorf("DIPEO_STORAGE_BACKEND: unsupported backend %q (want %q or %q)",
			cfg.StorageBackend, BackendSQLite, BackendMySQL)
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getSeconds(key string, fallbackSeconds float64) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return time.Duration(fallbackSeconds * float64(time.Second))
}

func getMillis(key string, fallbackMillis int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return time.Duration(fallbackMillis) * time.Millisecond
}
