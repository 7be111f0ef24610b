package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	// Initialize viper
	m.viper = viper.New()

	// Set config file path
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	// Set environment variable prefix
	m.viper.SetEnvPrefix("CIVICOPS")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	m.setDefaults()

	// Try to read config file (optional)
	if err := m.viper.ReadInConfig(); err != nil {
		// Config file not found is OK, fall back to defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// File not found via viper - OK, use defaults
		} else if os.IsNotExist(err) {
			// File not found via os - OK, use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides
	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		// Combine all errors into a single error message
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	// Start watching config file
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		// Reload config
		if err := m.unmarshalConfig(); err != nil {
			// Log error but don't send to channel
			return
		}
		// Send updated config to channel
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	// Re-read config file
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides
	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.host", defaults.Server.Host)
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.requests_per_minute", defaults.Server.RequestsPerMinute)

	// Database defaults
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)
	m.viper.SetDefault("database.seed", defaults.Database.Seed)

	// Evidence defaults
	m.viper.SetDefault("evidence.collaborator_timeout_ms", defaults.Evidence.CollaboratorTimeoutMS)
	m.viper.SetDefault("evidence.record_limit", defaults.Evidence.RecordLimit)

	// Session defaults
	m.viper.SetDefault("session.ttl_minutes", defaults.Session.TTLMinutes)

	// Zone catalog defaults
	m.viper.SetDefault("zones.default_city", defaults.Zones.DefaultCity)
	m.viper.SetDefault("zones.catalog", defaults.Zones.Catalog)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)

	// Audit defaults
	m.viper.SetDefault("audit.audit_log_path", defaults.Audit.AuditLogPath)
	m.viper.SetDefault("audit.app_log_path", defaults.Audit.AppLogPath)
	m.viper.SetDefault("audit.max_size_mb", defaults.Audit.MaxSizeMB)
	m.viper.SetDefault("audit.max_backups", defaults.Audit.MaxBackups)
	m.viper.SetDefault("audit.max_age_days", defaults.Audit.MaxAgeDays)
	m.viper.SetDefault("audit.compress", defaults.Audit.Compress)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.RequestsPerMinute = m.viper.GetInt("server.requests_per_minute")

	// Database
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")
	cfg.Database.Seed = m.viper.GetBool("database.seed")

	// Evidence
	cfg.Evidence.CollaboratorTimeoutMS = m.viper.GetInt("evidence.collaborator_timeout_ms")
	cfg.Evidence.RecordLimit = m.viper.GetInt("evidence.record_limit")

	// Session
	cfg.Session.TTLMinutes = m.viper.GetInt("session.ttl_minutes")

	// Zones
	cfg.Zones.DefaultCity = m.viper.GetString("zones.default_city")
	cfg.Zones.Catalog = m.viper.GetStringMapStringSlice("zones.catalog")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")

	// Audit
	cfg.Audit.AuditLogPath = m.viper.GetString("audit.audit_log_path")
	cfg.Audit.AppLogPath = m.viper.GetString("audit.app_log_path")
	cfg.Audit.MaxSizeMB = m.viper.GetInt("audit.max_size_mb")
	cfg.Audit.MaxBackups = m.viper.GetInt("audit.max_backups")
	cfg.Audit.MaxAgeDays = m.viper.GetInt("audit.max_age_days")
	cfg.Audit.Compress = m.viper.GetBool("audit.compress")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for settings
// commonly set in container deployments.
func (m *viperConfigManager) applyEnvOverrides() {
	// SQLite path from environment
	if path := os.Getenv("CIVICOPS_DB_PATH"); path != "" {
		m.config.Database.SQLitePath = path
	}

	// Port from environment - only override if explicitly set
	if portEnv := os.Getenv("CIVICOPS_PORT"); portEnv != "" {
		// Port was explicitly set via environment, so viper has the value
		m.config.Server.Port = m.viper.GetInt("port")
	}

	// Default city from environment
	if city := os.Getenv("CIVICOPS_DEFAULT_CITY"); city != "" {
		m.config.Zones.DefaultCity = city
	}
}
