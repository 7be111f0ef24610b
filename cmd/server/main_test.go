package main

import (
	"testing"

	"github.com/civicops/civicops-ai/internal/config"
)

func TestBuildLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json info", "info", "json", false},
		{"text debug", "debug", "text", false},
		{"warn", "warn", "json", false},
		{"invalid level", "loud", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Logging.Level = tt.level
			cfg.Logging.Format = tt.format

			log, err := buildLogger(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error for invalid logging config")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildLogger: %v", err)
			}
			if log == nil {
				t.Fatal("expected a logger")
			}
		})
	}
}
