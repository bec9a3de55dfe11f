// Package config loads the archiver's configuration from environment
// variables into a single immutable value, one variable per archiver,
// storage, provider, tools and db setting (e.g. ARCHIVER_THREADS,
// STORAGE_POOL_SIZE). No package-level singleton is kept; callers load
// once at startup and pass the Config explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the immutable, fully-resolved runtime configuration.
type Config struct {
	ArchiverThreads            int
	ArchiverPollSeconds        time.Duration
	ArchiverRetrySeconds       time.Duration
	ArchiverTimestampFilenames bool

	StorageLocalLocation   string
	StoragePublicContainer string
	StoragePrivateContainer string
	StoragePoolSize        int

	ProviderAccount   string
	ProviderAuthToken string
	ProviderBaseURL   string

	ToolsFFmpegPath        string
	ToolsSoxPath           string
	ToolsWorkingDirectory string

	DBConnection string

	LogLevel string
	LogFile  string

	AWSRegion string

	HTTPAddr string
}

// Load reads a .env file if present (missing file is not an error) and
// parses process environment into a Config. Returns a FatalConfig-flavored
// error via the caller's own wrapping; config itself returns plain errors
// so callers can decide how to escalate at startup.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ArchiverThreads:            envInt("ARCHIVER_THREADS", 4),
		ArchiverPollSeconds:        envSeconds("ARCHIVER_POLL_SECONDS", 60),
		ArchiverRetrySeconds:       envSeconds("ARCHIVER_RETRY_SECONDS", 300),
		ArchiverTimestampFilenames: envBool("ARCHIVER_TIMESTAMP_FILENAMES", false),

		StorageLocalLocation:    envString("STORAGE_LOCAL_LOCATION", "/tmp/archivesvc"),
		StoragePublicContainer:  envString("STORAGE_PUBLIC_CONTAINER", "archivesvc-public"),
		StoragePrivateContainer: envString("STORAGE_PRIVATE_CONTAINER", "archivesvc-private"),
		StoragePoolSize:         envInt("STORAGE_POOL_SIZE", 8),

		ProviderAccount:   envString("PROVIDER_CREDENTIALS_ACCOUNT", ""),
		ProviderAuthToken: envString("PROVIDER_CREDENTIALS_AUTH_TOKEN", ""),
		ProviderBaseURL:   envString("PROVIDER_BASE_URL", ""),

		ToolsFFmpegPath:       envString("TOOLS_FFMPEG_PATH", "ffmpeg"),
		ToolsSoxPath:          envString("TOOLS_SOX_PATH", "sox"),
		ToolsWorkingDirectory: envString("TOOLS_WORKING_DIRECTORY", "/tmp/archivesvc/work"),

		DBConnection: envString("DB_CONNECTION", ""),

		LogLevel: envString("LOG_LEVEL", "info"),
		LogFile:  envString("LOG_FILE", "archivesvc.log"),

		AWSRegion: envString("AWS_REGION", "us-east-1"),

		HTTPAddr: envString("HTTP_ADDR", ":8090"),
	}

	if cfg.DBConnection == "" {
		return nil, fmt.Errorf("DB_CONNECTION is required")
	}
	if cfg.ArchiverThreads <= 0 {
		return nil, fmt.Errorf("ARCHIVER_THREADS must be positive, got %d", cfg.ArchiverThreads)
	}
	if cfg.StoragePoolSize <= 0 {
		return nil, fmt.Errorf("STORAGE_POOL_SIZE must be positive, got %d", cfg.StoragePoolSize)
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envSeconds(key string, defSeconds int) time.Duration {
	n := envInt(key, defSeconds)
	return time.Duration(n) * time.Second
}
