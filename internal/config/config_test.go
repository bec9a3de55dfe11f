package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ARCHIVER_THREADS", "ARCHIVER_POLL_SECONDS", "ARCHIVER_RETRY_SECONDS",
		"ARCHIVER_TIMESTAMP_FILENAMES", "STORAGE_POOL_SIZE", "DB_CONNECTION",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("DB_CONNECTION", "postgres://localhost/archivesvc")
	defer os.Unsetenv("DB_CONNECTION")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.ArchiverThreads)
	assert.Equal(t, int64(60), int64(cfg.ArchiverPollSeconds.Seconds()))
	assert.False(t, cfg.ArchiverTimestampFilenames)
	assert.Equal(t, 8, cfg.StoragePoolSize)
}

func TestLoadRejectsMissingDBConnection(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadHonorsOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("DB_CONNECTION", "postgres://localhost/archivesvc")
	os.Setenv("ARCHIVER_THREADS", "12")
	os.Setenv("ARCHIVER_TIMESTAMP_FILENAMES", "true")
	defer clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.ArchiverThreads)
	assert.True(t, cfg.ArchiverTimestampFilenames)
}
