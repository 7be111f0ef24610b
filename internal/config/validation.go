package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Server.RequestsPerMinute < 0 {
		errs = append(errs, &ValidationError{
			Field:   "server.requests_per_minute",
			Message: fmt.Sprintf("requests per minute cannot be negative, got %d", c.Server.RequestsPerMinute),
		})
	}

	// Validate database configuration
	if c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	// Validate evidence configuration
	if c.Evidence.CollaboratorTimeoutMS < 1 {
		errs = append(errs, &ValidationError{
			Field:   "evidence.collaborator_timeout_ms",
			Message: fmt.Sprintf("collaborator timeout must be positive, got %d", c.Evidence.CollaboratorTimeoutMS),
		})
	}

	if c.Evidence.RecordLimit < 1 {
		errs = append(errs, &ValidationError{
			Field:   "evidence.record_limit",
			Message: fmt.Sprintf("record limit must be positive, got %d", c.Evidence.RecordLimit),
		})
	}

	// Validate session configuration
	if c.Session.TTLMinutes < 1 {
		errs = append(errs, &ValidationError{
			Field:   "session.ttl_minutes",
			Message: fmt.Sprintf("session TTL must be positive, got %d", c.Session.TTLMinutes),
		})
	}

	// Validate zone catalog
	if c.Zones.DefaultCity == "" {
		errs = append(errs, &ValidationError{
			Field:   "zones.default_city",
			Message: "default_city is required",
		})
	}

	if len(c.Zones.Catalog) == 0 {
		errs = append(errs, &ValidationError{
			Field:   "zones.catalog",
			Message: "at least one city with zones is required",
		})
	} else {
		for city, zones := range c.Zones.Catalog {
			if len(zones) == 0 {
				errs = append(errs, &ValidationError{
					Field:   "zones.catalog",
					Message: fmt.Sprintf("city %s has no zones", city),
				})
			}
		}
	}

	// Validate logging configuration
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (must be json or text)", c.Logging.Format),
		})
	}

	return errs
}
