package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 50055 {
		t.Errorf("Expected port 50055, got %d", cfg.Server.Port)
	}
	if cfg.Server.ResponseTimeout != 30*time.Second {
		t.Errorf("Expected response timeout 30s, got %v", cfg.Server.ResponseTimeout)
	}
	if cfg.Admin.Enabled() {
		t.Error("Expected admin server disabled by default")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestServerAddr(t *testing.T) {
	c := ServerConfig{Host: "::1", Port: 8080}
	if got := c.Addr(); got != "[::1]:8080" {
		t.Errorf("Expected [::1]:8080, got %s", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commandd.yaml")
	data := `
server:
  host: 0.0.0.0
  port: 6000
  responseTimeout: 2s
handlers:
  scriptDir: /srv/instructions
admin:
  port: 6001
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 6000 {
		t.Errorf("Expected 0.0.0.0:6000, got %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.ResponseTimeout != 2*time.Second {
		t.Errorf("Expected response timeout 2s, got %v", cfg.Server.ResponseTimeout)
	}
	if cfg.Handlers.ScriptDir != "/srv/instructions" {
		t.Errorf("Expected script dir, got %q", cfg.Handlers.ScriptDir)
	}
	if !cfg.Admin.Enabled() {
		t.Error("Expected admin server enabled")
	}
	// Unset keys keep their defaults
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected default shutdown timeout, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadRejectsStringPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commandd.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"50055\"\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for string port")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commandd.yaml")
	if err := os.WriteFile(path, []byte("server:\n  hots: localhost\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for unknown key")
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error when loading non-existent file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COMMANDD_SERVER_PORT", "7000")
	t.Setenv("COMMANDD_SERVER_RESPONSE_TIMEOUT", "750ms")
	t.Setenv("COMMANDD_LOG_LEVEL", "warn")
	t.Setenv("COMMANDD_ADMIN_AUTH_SECRET", "s3cret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Expected port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Server.ResponseTimeout != 750*time.Millisecond {
		t.Errorf("Expected 750ms, got %v", cfg.Server.ResponseTimeout)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected log level warn, got %s", cfg.Log.Level)
	}
	if cfg.Admin.AuthSecret != "s3cret" {
		t.Errorf("Expected auth secret from env, got %q", cfg.Admin.AuthSecret)
	}
}

func TestEnvOverrideInvalidPort(t *testing.T) {
	t.Setenv("COMMANDD_SERVER_PORT", "not-a-port")

	if _, err := Load(""); err == nil {
		t.Error("Expected error for non-numeric port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty host", func(c *Config) { c.Server.Host = " " }, "host cannot be empty"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "outside range"},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "outside range"},
		{"zero response timeout", func(c *Config) { c.Server.ResponseTimeout = 0 }, "response timeout"},
		{"zero body limit", func(c *Config) { c.Server.MaxBodyBytes = 0 }, "max body bytes"},
		{"zero compact threshold", func(c *Config) { c.Engine.CompactThreshold = 0 }, "compact threshold"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "invalid log level"},
		{"admin without buffer", func(c *Config) {
			c.Admin.Port = 9000
			c.Admin.EventBufferSize = 0
		}, "event buffer size"},
		{"ephemeral port", func(c *Config) { c.Server.Port = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Error("Expected error for nil config")
	}
}
