package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "dealerdocs.db")
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultAckTimeout, cfg.AckTimeout)
	assert.Equal(t, DefaultRetention, cfg.Retention)
	assert.Equal(t, DefaultReaperInterval, cfg.ReaperInterval)
	assert.NotEmpty(t, cfg.DatabasePath)
	assert.Empty(t, cfg.GCSBucket, "cloud storage is opt-in")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Port = 0 },
			wantErr: "port must be between",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: "port must be between",
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.DatabasePath = "" },
			wantErr: "database path cannot be empty",
		},
		{
			name:    "zero ack timeout",
			mutate:  func(c *Config) { c.AckTimeout = 0 },
			wantErr: "ack timeout must be positive",
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Retention = -time.Hour },
			wantErr: "retention horizon must be positive",
		},
		{
			name:    "zero reaper interval",
			mutate:  func(c *Config) { c.ReaperInterval = 0 },
			wantErr: "reaper interval must be positive",
		},
		{
			name:    "bogus log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfigValidateCreatesDatabaseDirectory(t *testing.T) {
	cfg := validConfig(t)
	cfg.DatabasePath = filepath.Join(t.TempDir(), "nested", "dir", "dealerdocs.db")

	require.NoError(t, cfg.Validate())
	assert.DirExists(t, filepath.Dir(cfg.DatabasePath))
}

func TestConfigAddress(t *testing.T) {
	cfg := &Config{Host: "0.0.0.0", Port: 9090}
	assert.Equal(t, "0.0.0.0:9090", cfg.Address())
}

func TestConfigIsDebug(t *testing.T) {
	assert.True(t, (&Config{LogLevel: "debug"}).IsDebug())
	assert.False(t, (&Config{LogLevel: "info"}).IsDebug())
}
