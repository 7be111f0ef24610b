package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8082
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.RequestsPerMinute = 120

	// Database defaults
	cfg.Database.SQLitePath = "/var/lib/civicops/civicops-ai.db"
	cfg.Database.Seed = false

	// Evidence defaults
	cfg.Evidence.CollaboratorTimeoutMS = 2000
	cfg.Evidence.RecordLimit = 50

	// Session defaults
	cfg.Session.TTLMinutes = 30

	// Zone catalog defaults
	cfg.Zones.DefaultCity = "C_001"
	cfg.Zones.Catalog = map[string][]string{
		"C_001": {"Z_001", "Z_002", "Z_003", "Z_004", "Z_005"},
	}

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Audit defaults
	cfg.Audit.AuditLogPath = "logs/audit.log"
	cfg.Audit.AppLogPath = "logs/app.log"
	cfg.Audit.MaxSizeMB = 100
	cfg.Audit.MaxBackups = 10
	cfg.Audit.MaxAgeDays = 30
	cfg.Audit.Compress = true

	return cfg
}
