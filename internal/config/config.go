//
//
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "COMMANDD_"

// Config represents the complete configuration for the command daemon.
type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Engine   EngineConfig   `yaml:"engine" envPrefix:"ENGINE_"`
	Handlers HandlersConfig `yaml:"handlers" envPrefix:"HANDLERS_"`
	Admin    AdminConfig    `yaml:"admin" envPrefix:"ADMIN_"`
	Audit    AuditConfig    `yaml:"audit" envPrefix:"AUDIT_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Tracing  TracingConfig  `yaml:"tracing" envPrefix:"TRACING_"`
}

// ServerConfig holds the command listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ResponseTimeout time.Duration `yaml:"responseTimeout" env:"RESPONSE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	ReadTimeout     time.Duration `yaml:"readTimeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" env:"WRITE_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes" env:"MAX_BODY_BYTES"`
}

// Addr returns the host:port pair the listener binds to.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// EngineConfig holds instruction engine settings.
type EngineConfig struct {
	// CompactThreshold is the number of processed entries kept at the head
	// of the queue before it is compacted.
	CompactThreshold int `yaml:"compactThreshold" env:"COMPACT_THRESHOLD"`
}

// HandlersConfig holds handler resolution settings.
type HandlersConfig struct {
	// ScriptDir is a directory of <name>.lua instruction scripts. Empty disables scripts.
	ScriptDir string `yaml:"scriptDir" env:"SCRIPT_DIR"`
}

// AdminConfig holds settings for the admin HTTP surface.
type AdminConfig struct {
	Host              string        `yaml:"host" env:"HOST"`
	Port              int           `yaml:"port" env:"PORT"`
	AuthSecret        string        `yaml:"authSecret" env:"AUTH_SECRET"`
	EventBufferSize   int           `yaml:"eventBufferSize" env:"EVENT_BUFFER_SIZE"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" env:"HEARTBEAT_INTERVAL"`
}

// Enabled reports whether the admin server should be started.
func (c AdminConfig) Enabled() bool {
	return c.Port > 0
}

// Addr returns the admin host:port pair.
func (c AdminConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"maxSizeMB" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"maxBackups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"maxAgeDays" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	NoColor    bool   `yaml:"noColor" env:"NO_COLOR"`
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"maxSizeMB" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"maxBackups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"maxAgeDays" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"serviceName" env:"SERVICE_NAME"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            50055,
			ResponseTimeout: 30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Engine: EngineConfig{
			CompactThreshold: 1024,
		},
		Admin: AdminConfig{
			Host:              "127.0.0.1",
			Port:              0,
			EventBufferSize:   100,
			HeartbeatInterval: 15 * time.Second,
		},
		Audit: AuditConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Tracing: TracingConfig{
			ServiceName: "commandd",
		},
	}
}

// Load loads configuration from defaults, the optional YAML file and environment variables.
// An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.UnmarshalStrict(data, cfg)
}

// applyEnvOverrides applies COMMANDD_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
}
