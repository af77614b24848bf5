package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.Actors.Timeout)
	assert.False(t, cfg.Messaging.AllowUnderscore)
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.NotEmpty(t, cfg.TokenSecret())
}

func TestLoadConfigFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9090

[database]
type = "sqlite"
uri = "chui.db"

[auth]
secret = "from-file"

[messaging]
allowunderscore = true
`), 0o600))

	t.Setenv("CHUI_AUTH_SECRET", "from-env")
	t.Setenv("CHUI_ACTORS_POOLSIZE", "3")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, 3, cfg.Actors.PoolSize)
	assert.True(t, cfg.Messaging.AllowUnderscore)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := LoadConfig("does-not-exist.toml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Type: "postgres", URI: "postgres://localhost/chui"},
			Auth:     AuthConfig{Secret: "s"},
			Actors:   ActorConfig{PoolSize: 1, Timeout: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"unknown type", func(c *Config) { c.Database.Type = "redis" }, true},
		{"missing uri", func(c *Config) { c.Database.URI = "" }, true},
		{"missing secret", func(c *Config) { c.Auth.Secret = "" }, true},
		{"memory needs neither", func(c *Config) { c.Database = DatabaseConfig{Type: "memory"}; c.Auth.Secret = "" }, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"empty pool", func(c *Config) { c.Actors.PoolSize = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}
