package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"mapsync/internal/protocol"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "mapsync.toml"

// CurrentVersion is the configuration schema version.
const CurrentVersion = 1

// Config represents the complete mapsync configuration.
type Config struct {
	Version int `toml:"version" mapstructure:"version" json:"version"`

	Server  ServerConfig  `toml:"server" mapstructure:"server" json:"server"`
	Client  ClientConfig  `toml:"client" mapstructure:"client" json:"client"`
	Audit   AuditConfig   `toml:"audit" mapstructure:"audit" json:"audit"`
	Logging LoggingConfig `toml:"logging" mapstructure:"logging" json:"logging"`
}

// ServerConfig contains settings for `mapsync serve`.
type ServerConfig struct {
	Bind string `toml:"bind" mapstructure:"bind" json:"bind"`
	Port int    `toml:"port" mapstructure:"port" json:"port"`
	// HTTPAddr serves the WebSocket endpoint, /metrics and /healthz.
	// Empty disables the HTTP listener.
	HTTPAddr  string `toml:"http_addr" mapstructure:"http_addr" json:"http_addr"`
	QueueSize int    `toml:"queue_size" mapstructure:"queue_size" json:"queue_size"`
	// ChatRate is chat messages per second per session; 0 disables the
	// limit.
	ChatRate  float64 `toml:"chat_rate" mapstructure:"chat_rate" json:"chat_rate"`
	ChatBurst int     `toml:"chat_burst" mapstructure:"chat_burst" json:"chat_burst"`
}

// ClientConfig contains defaults for `mapsync connect`.
type ClientConfig struct {
	Address  string `toml:"address" mapstructure:"address" json:"address"`
	Username string `toml:"username" mapstructure:"username" json:"username"`
}

// AuditConfig contains settings for the change journal.
type AuditConfig struct {
	Enabled       bool   `toml:"enabled" mapstructure:"enabled" json:"enabled"`
	Path          string `toml:"path" mapstructure:"path" json:"path"`
	RetentionDays int    `toml:"retention_days" mapstructure:"retention_days" json:"retention_days"`
	BufferSize    int    `toml:"buffer_size" mapstructure:"buffer_size" json:"buffer_size"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Format string `toml:"format" mapstructure:"format" json:"format"` // "human" or "json"
	Level  string `toml:"level" mapstructure:"level" json:"level"`
	// File, when set, receives logs in addition to stderr.
	File       string `toml:"file" mapstructure:"file" json:"file"`
	MaxSize    string `toml:"max_size" mapstructure:"max_size" json:"max_size"` // e.g. "10MB"; empty disables rotation
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups" json:"max_backups"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Bind:      "0.0.0.0",
			Port:      protocol.DefaultPort,
			HTTPAddr:  "",
			QueueSize: 1024,
			ChatRate:  5,
			ChatBurst: 10,
		},
		Client: ClientConfig{
			Address: net.JoinHostPort("localhost", strconv.Itoa(protocol.DefaultPort)),
		},
		Audit: AuditConfig{
			Enabled:       false,
			Path:          "mapsync-audit.db",
			RetentionDays: 0,
			BufferSize:    1024,
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			MaxBackups: 3,
		},
	}
}

// DefaultDir returns the per-user configuration directory.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mapsync")
	}
	return ".mapsync"
}

// LoadConfig loads <dir>/mapsync.toml. Environment variables prefixed with
// MAPSYNC_ override file values (MAPSYNC_SERVER_PORT sets server.port).
// A missing file yields the defaults plus any overrides.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("MAPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", FileName, err)
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply even
// when the file does not mention them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)

	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
	v.SetDefault("server.queue_size", d.Server.QueueSize)
	v.SetDefault("server.chat_rate", d.Server.ChatRate)
	v.SetDefault("server.chat_burst", d.Server.ChatBurst)

	v.SetDefault("client.address", d.Client.Address)
	v.SetDefault("client.username", d.Client.Username)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.path", d.Audit.Path)
	v.SetDefault("audit.retention_days", d.Audit.RetentionDays)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)

	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the configuration to <dir>/mapsync.toml and returns the
// path written.
func (c *Config) Save(dir string) (string, error) {
	data, err := c.Encode()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}

// ListenAddr returns the TCP address the server binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Bind, strconv.Itoa(c.Server.Port))
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be between 1 and 65535"}
	}
	if c.Server.QueueSize < 1 {
		return &ConfigError{Field: "server.queue_size", Message: "must be positive"}
	}
	if c.Server.ChatRate < 0 {
		return &ConfigError{Field: "server.chat_rate", Message: "must not be negative"}
	}
	if c.Server.ChatRate > 0 && c.Server.ChatBurst < 1 {
		return &ConfigError{Field: "server.chat_burst", Message: "must be positive when chat_rate is set"}
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return &ConfigError{Field: "audit.path", Message: "required when audit is enabled"}
	}
	if c.Audit.RetentionDays < 0 {
		return &ConfigError{Field: "audit.retention_days", Message: "must not be negative"}
	}
	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be human or json"}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: "must be debug, info, warn or error"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
