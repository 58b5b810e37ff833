// Package config handles UrdDB configuration via environment variables and
// an optional YAML file.
//
// Configuration is loaded from environment variables using LoadFromEnv(),
// optionally with a YAML file layered over it by LoadFromFile() (keys set in
// the file override the environment), and validated with Validate() before
// use. Command-line flags (see cmd/urddb) override both.
//
// Environment Variables:
//   - URDDB_HOST=127.0.0.1             server bind address
//   - URDDB_PORT=9999                  server TCP port
//   - URDDB_DATA_DIR=""                Badger data directory ("" = in-memory)
//   - URDDB_SYNC_WRITES=false          fsync every Badger commit
//   - URDDB_MAX_LINE_SIZE=1048576      request line cap in bytes
//   - URDDB_MAX_CONNECTIONS=100        concurrent connection cap
//   - URDDB_READ_BUFFER_SIZE=8192      per-connection read buffer
//   - URDDB_WRITE_BUFFER_SIZE=8192     per-connection write buffer
//   - URDDB_LOG_LEVEL=info             logrus level (trace..panic)
//   - URDDB_LOG_FORMAT=text            "text" or "json"
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//	fmt.Printf("listening on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all UrdDB configuration.
//
// Configuration is organized into logical sections:
//   - Server: TCP listener settings for the JSON line protocol
//   - Database: storage engine selection and durability
//   - Logging: log level and format
//
// Use LoadFromEnv() to create a Config from environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds TCP listener settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port for the JSON line protocol.
	Port int `yaml:"port"`
	// MaxLineSize caps a single request line, in bytes. Lines longer than
	// this terminate the connection rather than buffering without bound.
	MaxLineSize int `yaml:"max_line_size"`
	// MaxConnections caps concurrently served connections.
	MaxConnections int `yaml:"max_connections"`
	// ReadBufferSize for each connection's buffered reader.
	ReadBufferSize int `yaml:"read_buffer_size"`
	// WriteBufferSize for each connection's buffered writer.
	WriteBufferSize int `yaml:"write_buffer_size"`
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	// DataDir is the Badger directory. Empty selects the in-memory engine.
	DataDir string `yaml:"data_dir"`
	// SyncWrites forces an fsync on every Badger commit.
	SyncWrites bool `yaml:"sync_writes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is a logrus level name: trace, debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the built-in configuration: in-memory storage, listener on
// 127.0.0.1:9999, 1 MiB line cap.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9999,
			MaxLineSize:     1 << 20,
			MaxConnections:  100,
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
		},
		Database: DatabaseConfig{
			DataDir:    "",
			SyncWrites: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromEnv builds a Config from URDDB_* environment variables, falling
// back to Default() for anything unset.
func LoadFromEnv() *Config {
	cfg := Default()

	cfg.Server.Host = getEnv("URDDB_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("URDDB_PORT", cfg.Server.Port)
	cfg.Server.MaxLineSize = getEnvInt("URDDB_MAX_LINE_SIZE", cfg.Server.MaxLineSize)
	cfg.Server.MaxConnections = getEnvInt("URDDB_MAX_CONNECTIONS", cfg.Server.MaxConnections)
	cfg.Server.ReadBufferSize = getEnvInt("URDDB_READ_BUFFER_SIZE", cfg.Server.ReadBufferSize)
	cfg.Server.WriteBufferSize = getEnvInt("URDDB_WRITE_BUFFER_SIZE", cfg.Server.WriteBufferSize)

	cfg.Database.DataDir = getEnv("URDDB_DATA_DIR", cfg.Database.DataDir)
	cfg.Database.SyncWrites = getEnvBool("URDDB_SYNC_WRITES", cfg.Database.SyncWrites)

	cfg.Logging.Level = getEnv("URDDB_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("URDDB_LOG_FORMAT", cfg.Logging.Format)

	return cfg
}

// LoadFromFile reads a YAML configuration file over a base config. Fields
// absent from the file keep the base values.
//
// Example file:
//
//	server:
//	  host: 0.0.0.0
//	  port: 9999
//	database:
//	  data_dir: /var/lib/urddb
func LoadFromFile(path string, base *Config) (*Config, error) {
	if base == nil {
		base = Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := *base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors.
//
// Call Validate() after loading and before using the Config.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MaxLineSize < 2 {
		return fmt.Errorf("max line size too small: %d", c.Server.MaxLineSize)
	}
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("invalid max connections: %d", c.Server.MaxConnections)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	return nil
}

// String returns a representation of the Config safe for logging.
func (c *Config) String() string {
	engine := "memory"
	if c.Database.DataDir != "" {
		engine = "badger:" + c.Database.DataDir
	}
	return fmt.Sprintf("Config{Listen: %s:%d, Engine: %s, MaxLine: %d}",
		c.Server.Host, c.Server.Port, engine, c.Server.MaxLineSize)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
