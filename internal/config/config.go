// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "CHUI_"
	defaultConfigFile = "chui.toml"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	MetricsEnabled bool     `koanf:"metrics"`
	AllowedOrigins []string `koanf:"origins"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Type string `koanf:"type"` // mongo, postgres, sqlite or memory
	URI  string `koanf:"uri"`
	Name string `koanf:"name"`
}

type AuthConfig struct {
	Secret   string        `koanf:"secret"`
	TokenTTL time.Duration `koanf:"tokenttl"`
}

type MessagingConfig struct {
	AllowUnderscore bool `koanf:"allowunderscore"`
}

// ActorConfig sizes the request pools.
type ActorConfig struct {
	PoolSize int           `koanf:"poolsize"`
	Timeout  time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	Messaging MessagingConfig `koanf:"messaging"`
	Actors    ActorConfig     `koanf:"actors"`
	Log       LogConfig       `koanf:"log"`
}

// Defaults are the lowest configuration layer.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.host":               "0.0.0.0",
		"server.port":               8080,
		"server.metrics":            true,
		"server.origins":            []string{"*"},
		"database.type":             "memory",
		"database.uri":              "",
		"database.name":             "chui",
		"auth.secret":               "",
		"auth.tokenttl":             "24h",
		"messaging.allowunderscore": false,
		"actors.poolsize":           8,
		"actors.timeout":            "5s",
		"log.level":                 "info",
		"log.pretty":                false,
	}
}

// LoadConfig layers defaults, an optional TOML file and CHUI_ environment
// variables. A .env file, when present, is loaded into the environment first.
// configPath may be empty; CHUI_CONFIG or ./chui.toml is then tried.
func LoadConfig(configPath string) (*Config, error) {
	for _, location := range []string{".env", "../../.env"} {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := configPath != ""
	if !explicit {
		configPath = os.Getenv(envPrefix + "CONFIG")
		explicit = configPath != ""
	}
	if !explicit {
		configPath = defaultConfigFile
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", configPath, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}

	// CHUI_SERVER_PORT -> server.port
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "mongo", "postgres", "sqlite":
		if c.Database.URI == "" {
			return fmt.Errorf("database.uri is required for %s", c.Database.Type)
		}
		if c.Auth.Secret == "" {
			return errors.New("auth.secret is required outside memory mode")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Actors.PoolSize < 1 {
		return fmt.Errorf("actors.poolsize must be positive, got %d", c.Actors.PoolSize)
	}
	if c.Actors.Timeout <= 0 {
		return errors.New("actors.timeout must be positive")
	}
	return nil
}

// Address is the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// TokenSecret returns the signing secret. Memory mode without a configured
// secret gets a fixed development value.
func (c *Config) TokenSecret() string {
	if c.Auth.Secret == "" {
		return "chui-development-secret"
	}
	return c.Auth.Secret
}
