//
//
package config

import (
	"fmt"
	"strings"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate enforces configuration rules on a merged config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if cfg.Engine.CompactThreshold <= 0 {
		return fmt.Errorf("engine compact threshold must be positive, got %d", cfg.Engine.CompactThreshold)
	}

	if err := validateAdmin(&cfg.Admin); err != nil {
		return fmt.Errorf("admin validation failed: %w", err)
	}

	if !contains(validLogLevels, strings.ToLower(cfg.Log.Level)) {
		return fmt.Errorf("invalid log level %q, must be one of: %v", cfg.Log.Level, validLogLevels)
	}

	if cfg.Audit.File != "" && cfg.Audit.MaxSizeMB <= 0 {
		return fmt.Errorf("audit max size must be positive, got %d", cfg.Audit.MaxSizeMB)
	}

	return nil
}

// validateServer validates command listener settings.
func validateServer(c *ServerConfig) error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is outside range [0, 65535]", c.Port)
	}
	if c.ResponseTimeout <= 0 {
		return fmt.Errorf("response timeout must be positive, got %v", c.ResponseTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", c.ShutdownTimeout)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("read/write timeouts must be non-negative")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}

// validateAdmin validates admin surface settings.
func validateAdmin(c *AdminConfig) error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is outside range [0, 65535]", c.Port)
	}
	if !c.Enabled() {
		return nil
	}
	if c.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", c.EventBufferSize)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", c.HeartbeatInterval)
	}
	return nil
}

// contains checks if a string slice contains a specific string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
