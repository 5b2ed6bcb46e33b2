// Package config loads runtime configuration from environment variables,
// the same envDefault/envInt/envDuration shape the teacher's
// internal/config uses, generalised from a single KeyDB-or-memory choice to
// the full set of EntityStore backends (spec-adjacent, see SPEC_FULL.md).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onexay/vfsdag/store/keydbstore"
)

// StorageBackend enumerates supported EntityStore persistence layers.
type StorageBackend string

const (
	StorageBackendMemory   StorageBackend = "memory"
	StorageBackendSQLite   StorageBackend = "sqlite"
	StorageBackendPostgres StorageBackend = "postgres"
	StorageBackendKeyDB    StorageBackend = "keydb"
	StorageBackendBolt     StorageBackend = "bolt"
)

// Config aggregates runtime configuration for a vfsdag-backed process.
type Config struct {
	Storage   StorageConfig
	Retention RetentionConfig
}

// StorageConfig selects a backend and carries its connection settings.
type StorageConfig struct {
	Backend     StorageBackend
	SQLitePath  string
	PostgresDSN string
	KeyDB       keydbstore.Config
	BoltPath    string
}

// RetentionConfig holds defaults for content archival (supplemental, see
// SPEC_FULL.md).
type RetentionConfig struct {
	ArchivePath    string
	HotCommitLimit int
	HotDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() Config {
	backend := StorageBackend(strings.ToLower(envDefault("STORAGE_BACKEND", string(StorageBackendMemory))))

	return Config{
		Storage: StorageConfig{
			Backend:     backend,
			SQLitePath:  envDefault("SQLITE_PATH", "data/vfsdag.sqlite"),
			PostgresDSN: os.Getenv("POSTGRES_DSN"),
			KeyDB: keydbstore.Config{
				Addr:     os.Getenv("KEYDB_ADDR"),
				Username: os.Getenv("KEYDB_USERNAME"),
				Password: os.Getenv("KEYDB_PASSWORD"),
				Database: envInt("KEYDB_DB", 0),
			},
			BoltPath: envDefault("BOLT_PATH", "data/vfsdag.db"),
		},
		Retention: RetentionConfig{
			ArchivePath:    envDefault("RETENTION_ARCHIVE_PATH", "data/archive.db"),
			HotCommitLimit: envInt("RETENTION_HOT_COMMIT_LIMIT", 0),
			HotDuration:    envDuration("RETENTION_HOT_DURATION", 0),
		},
	}
}

func envDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}
