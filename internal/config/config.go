package config

import "context"

// Package config provides configuration management for civicops-ai.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading (for some settings)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (CIVICOPS_* prefix)
//   2. YAML config files (default: /etc/civicops/config.yaml)
//   3. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server
//      - port: Listen port (default 8082)
//      - host: Bind address
//      - allowed_origins: Origins permitted to open WebSocket connections
//      - requests_per_minute: Per-client API rate limit (0 disables)
//
//   2. Database
//      - sqlite_path: Path to SQLite file (runs + reference data)
//      - seed: Load the bundled reference fixtures on startup
//
//   3. Evidence
//      - collaborator_timeout_ms: Per-collaborator query deadline
//      - record_limit: Max records fetched per collaborator per turn
//
//   4. Session
//      - ttl_minutes: Idle window before a session is evicted
//
//   5. Zones
//      - default_city: City scope assumed when the caller supplies none
//      - catalog: Known zone identifiers per city, used to build
//        clarifying questions
//
//   6. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "text"
//
//   7. Audit
//      - audit_log_path / app_log_path: rotating log sinks
//      - max_size_mb / max_backups / max_age_days / compress: rotation

// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Host string
		Port int
		// AllowedOrigins is a list of origins permitted to open WebSocket
		// connections. Use ["*"] to allow any origin (development only).
		AllowedOrigins []string
		// RequestsPerMinute caps API requests per client. Zero disables
		// rate limiting.
		RequestsPerMinute int
	}

	// Database configuration
	Database struct {
		SQLitePath string
		Seed       bool
	}

	// Evidence gathering configuration
	Evidence struct {
		CollaboratorTimeoutMS int
		RecordLimit           int
	}

	// Session store configuration
	Session struct {
		TTLMinutes int
	}

	// Zone catalog configuration
	Zones struct {
		DefaultCity string
		Catalog     map[string][]string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Audit log configuration
	Audit struct {
		AuditLogPath string
		AppLogPath   string
		MaxSizeMB    int
		MaxBackups   int
		MaxAgeDays   int
		Compress     bool
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources (selective settings).
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/civicops/config.yaml")
}
