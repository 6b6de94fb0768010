package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got error: %v", err)
	}
}

func TestConfig_Validate_InvalidServerEnv(t *testing.T) {
	cfg := Default()
	cfg.Server.Env = "invalid"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid SERVER_ENV")
	}
	if !strings.Contains(err.Error(), "SERVER_ENV") {
		t.Errorf("expected error to mention SERVER_ENV, got: %v", err)
	}
}

func TestConfig_Validate_MissingPort(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing SERVER_PORT")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected error to mention SERVER_PORT, got: %v", err)
	}
}

func TestConfig_Validate_SurrealRequiresHost(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = DriverSurrealDB
	cfg.Database.Host = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing DB_HOST")
	}
	if !strings.Contains(err.Error(), "DB_HOST") {
		t.Errorf("expected error to mention DB_HOST, got: %v", err)
	}
}

func TestConfig_Validate_SQLiteIgnoresHost(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = DriverSQLite
	cfg.Database.Host = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected sqlite config without host to be valid, got: %v", err)
	}
}

func TestConfig_Validate_UnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mongo"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown DB_DRIVER")
	}
	if !strings.Contains(err.Error(), "DB_DRIVER") {
		t.Errorf("expected error to mention DB_DRIVER, got: %v", err)
	}
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]float64)
		wantErr string
	}{
		{"default", func(map[string]float64) {}, ""},
		{"missing", func(w map[string]float64) { delete(w, "creative") }, "missing dimension weights: creative"},
		{"unknown", func(w map[string]float64) { w["spiritual"] = 0 }, "unknown dimension weights: spiritual"},
		{"negative", func(w map[string]float64) { w["creative"] = -0.15; w["cognitive"] = 0.5 }, "non-negative"},
		{"bad_sum", func(w map[string]float64) { w["cognitive"] = 0.5 }, "sum to 1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultDimensionWeights()
			tt.mutate(w)
			err := ValidateWeights(w)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid weights, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestEngineConfig_Validate_DecayRate(t *testing.T) {
	cfg := Default()
	cfg.Engine.DecayRate = 1.2

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for decay rate above 1")
	}
	if !strings.Contains(err.Error(), "PROGRESSION_DECAY_RATE") {
		t.Errorf("expected error to mention PROGRESSION_DECAY_RATE, got: %v", err)
	}
}

func TestEngineConfig_Validate_TimeZone(t *testing.T) {
	cfg := Default()
	cfg.Engine.TimeZone = "Mars/Olympus_Mons"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown time zone")
	}
	if !strings.Contains(err.Error(), "PROGRESSION_TIME_ZONE") {
		t.Errorf("expected error to mention PROGRESSION_TIME_ZONE, got: %v", err)
	}
}

func TestEngineConfig_Location(t *testing.T) {
	e := Default().Engine
	loc, err := e.Location()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != time.Local {
		t.Errorf("expected time.Local for default zone, got %v", loc)
	}

	e.TimeZone = "UTC"
	loc, err = e.Location()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.String() != "UTC" {
		t.Errorf("expected UTC, got %v", loc)
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = ""
	cfg.Server.Env = "invalid"
	cfg.Engine.MaxCatchUpDays = 0
	cfg.Engine.CorrelationThreshold = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}

	errStr := err.Error()
	expectedFields := []string{"SERVER_PORT", "SERVER_ENV", "PROGRESSION_MAX_CATCH_UP_DAYS", "PROGRESSION_CORRELATION_THRESHOLD"}
	for _, field := range expectedFields {
		if !strings.Contains(errStr, field) {
			t.Errorf("expected error to mention %s, got: %v", field, err)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PROGRESSION_DECAY_RATE", "0.1")
	t.Setenv("PROGRESSION_MAX_CATCH_UP_DAYS", "3")
	t.Setenv("PROGRESSION_AGGREGATOR_INTERVAL", "30s")
	t.Setenv("PROGRESSION_DIMENSION_WEIGHTS", "cognitive:0.5,behavioral:0.1,creative:0.1,physiological:0.1,knowledge:0.1,reflection:0.1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Server.Port)
	}
	if cfg.Engine.DecayRate != 0.1 {
		t.Errorf("DecayRate = %v, want 0.1", cfg.Engine.DecayRate)
	}
	if cfg.Engine.MaxCatchUpDays != 3 {
		t.Errorf("MaxCatchUpDays = %d, want 3", cfg.Engine.MaxCatchUpDays)
	}
	if cfg.Engine.AggregatorInterval != 30*time.Second {
		t.Errorf("AggregatorInterval = %v, want 30s", cfg.Engine.AggregatorInterval)
	}
	if cfg.Engine.DimensionWeights["cognitive"] != 0.5 {
		t.Errorf("cognitive weight = %v, want 0.5", cfg.Engine.DimensionWeights["cognitive"])
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected overridden config to be valid, got: %v", err)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progression.yaml")
	content := `
server:
  port: "7070"
engine:
  decay_rate: 0.02
  time_zone: UTC
  aggregator_interval: 2m
database:
  driver: surrealdb
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PROGRESSION_CONFIG", path)
	t.Setenv("SERVER_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("Port = %s, want 7070", cfg.Server.Port)
	}
	if cfg.Engine.DecayRate != 0.02 {
		t.Errorf("DecayRate = %v, want 0.02", cfg.Engine.DecayRate)
	}
	if cfg.Engine.AggregatorInterval != 2*time.Minute {
		t.Errorf("AggregatorInterval = %v, want 2m", cfg.Engine.AggregatorInterval)
	}
	if cfg.Database.Driver != DriverSurrealDB {
		t.Errorf("Driver = %s, want surrealdb", cfg.Database.Driver)
	}
	// untouched keys keep their defaults
	if cfg.Engine.MaxCatchUpDays != 7 {
		t.Errorf("MaxCatchUpDays = %d, want 7", cfg.Engine.MaxCatchUpDays)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("PROGRESSION_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Env: "development"}}
	if !cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() to return true")
	}

	cfg.Server.Env = "production"
	if cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() to return false in production")
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Env: "production"}}
	if !cfg.IsProduction() {
		t.Error("expected IsProduction() to return true")
	}

	cfg.Server.Env = "development"
	if cfg.IsProduction() {
		t.Error("expected IsProduction() to return false in development")
	}
}
