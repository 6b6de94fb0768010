package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         string        `yaml:"port"`
	Env          string        `yaml:"env"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Store drivers
const (
	DriverSurrealDB = "surrealdb"
	DriverSQLite    = "sqlite"
)

// DatabaseConfig selects and configures the persistent store
type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	Namespace  string `yaml:"namespace"`
	Database   string `yaml:"database"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	SQLitePath string `yaml:"sqlite_path"`
}

// EngineConfig holds the tunables of the progression engine
type EngineConfig struct {
	DefaultUserID string `yaml:"default_user_id"`
	TimeZone      string `yaml:"time_zone"`

	// DimensionWeights is the canonical weight set used by the overall rating
	// and the wellness index. Weights must sum to 1.0.
	DimensionWeights map[string]float64 `yaml:"dimension_weights"`

	DecayRate               float64 `yaml:"decay_rate"`
	MaxCatchUpDays          int     `yaml:"max_catch_up_days"`
	RunHistoryRetentionDays int     `yaml:"run_history_retention_days"`
	RatingHistoryDays       int     `yaml:"rating_history_days"`

	CorrelationWindowDays int     `yaml:"correlation_window_days"`
	CorrelationMinSamples int     `yaml:"correlation_min_samples"`
	CorrelationThreshold  float64 `yaml:"correlation_threshold"`

	AggregatorInterval time.Duration `yaml:"aggregator_interval"`
	ConfidenceFloor    float64       `yaml:"confidence_floor"`

	// TriggerInterval is how often the server checks whether a daily run is due
	TriggerInterval time.Duration `yaml:"trigger_interval"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultDimensionWeights is the canonical dimension weight set
func DefaultDimensionWeights() map[string]float64 {
	return map[string]float64{
		"cognitive":     0.20,
		"behavioral":    0.20,
		"creative":      0.15,
		"physiological": 0.15,
		"knowledge":     0.15,
		"reflection":    0.15,
	}
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Env:          "development",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:     DriverSQLite,
			Host:       "localhost",
			Port:       "8000",
			Namespace:  "progression",
			Database:   "main",
			User:       "root",
			Password:   "root",
			SQLitePath: "progression.db",
		},
		Engine: EngineConfig{
			DefaultUserID:           "local",
			TimeZone:                "Local",
			DimensionWeights:        DefaultDimensionWeights(),
			DecayRate:               0.05,
			MaxCatchUpDays:          7,
			RunHistoryRetentionDays: 90,
			RatingHistoryDays:       30,
			CorrelationWindowDays:   90,
			CorrelationMinSamples:   10,
			CorrelationThreshold:    0.5,
			AggregatorInterval:      60 * time.Second,
			ConfidenceFloor:         0.3,
			TriggerInterval:         15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// PROGRESSION_CONFIG, and finally environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("PROGRESSION_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Env = getEnv("SERVER_ENV", cfg.Server.Env)
	cfg.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.Namespace = getEnv("DB_NAMESPACE", cfg.Database.Namespace)
	cfg.Database.Database = getEnv("DB_DATABASE", cfg.Database.Database)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.SQLitePath = getEnv("DB_SQLITE_PATH", cfg.Database.SQLitePath)

	e := &cfg.Engine
	e.DefaultUserID = getEnv("PROGRESSION_USER_ID", e.DefaultUserID)
	e.TimeZone = getEnv("PROGRESSION_TIME_ZONE", e.TimeZone)
	e.DimensionWeights = getWeightsEnv("PROGRESSION_DIMENSION_WEIGHTS", e.DimensionWeights)
	e.DecayRate = getFloatEnv("PROGRESSION_DECAY_RATE", e.DecayRate)
	e.MaxCatchUpDays = getIntEnv("PROGRESSION_MAX_CATCH_UP_DAYS", e.MaxCatchUpDays)
	e.RunHistoryRetentionDays = getIntEnv("PROGRESSION_RUN_HISTORY_RETENTION_DAYS", e.RunHistoryRetentionDays)
	e.RatingHistoryDays = getIntEnv("PROGRESSION_RATING_HISTORY_DAYS", e.RatingHistoryDays)
	e.CorrelationWindowDays = getIntEnv("PROGRESSION_CORRELATION_WINDOW_DAYS", e.CorrelationWindowDays)
	e.CorrelationMinSamples = getIntEnv("PROGRESSION_CORRELATION_MIN_SAMPLES", e.CorrelationMinSamples)
	e.CorrelationThreshold = getFloatEnv("PROGRESSION_CORRELATION_THRESHOLD", e.CorrelationThreshold)
	e.AggregatorInterval = getDurationEnv("PROGRESSION_AGGREGATOR_INTERVAL", e.AggregatorInterval)
	e.ConfidenceFloor = getFloatEnv("PROGRESSION_CONFIDENCE_FLOOR", e.ConfidenceFloor)
	e.TriggerInterval = getDurationEnv("PROGRESSION_TRIGGER_INTERVAL", e.TriggerInterval)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.JSON = getBoolEnv("LOG_JSON", cfg.Logging.JSON)

	return cfg, nil
}

// mergeFile overlays the YAML file at path onto c
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Location resolves the engine time zone used to cut calendar days
func (e EngineConfig) Location() (*time.Location, error) {
	if e.TimeZone == "" || e.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(e.TimeZone)
}

// Validate checks that all required configuration values are present and valid.
// It returns an error describing all validation failures, or nil if valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT is required"))
	}
	if c.Server.Env != "development" && c.Server.Env != "production" && c.Server.Env != "test" {
		errs = append(errs, fmt.Errorf("SERVER_ENV must be 'development', 'production', or 'test', got '%s'", c.Server.Env))
	}

	switch c.Database.Driver {
	case DriverSurrealDB:
		if c.Database.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required"))
		}
		if c.Database.Port == "" {
			errs = append(errs, errors.New("DB_PORT is required"))
		}
		if c.Database.Namespace == "" {
			errs = append(errs, errors.New("DB_NAMESPACE is required"))
		}
		if c.Database.Database == "" {
			errs = append(errs, errors.New("DB_DATABASE is required"))
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("DB_SQLITE_PATH is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be '%s' or '%s', got '%s'", DriverSurrealDB, DriverSQLite, c.Database.Driver))
	}

	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the engine tunables
func (e EngineConfig) Validate() error {
	var errs []error

	if e.DefaultUserID == "" {
		errs = append(errs, errors.New("PROGRESSION_USER_ID is required"))
	}
	if _, err := e.Location(); err != nil {
		errs = append(errs, fmt.Errorf("PROGRESSION_TIME_ZONE: %w", err))
	}
	if err := ValidateWeights(e.DimensionWeights); err != nil {
		errs = append(errs, err)
	}
	if e.DecayRate < 0 || e.DecayRate >= 1 {
		errs = append(errs, fmt.Errorf("PROGRESSION_DECAY_RATE must be in [0, 1), got %v", e.DecayRate))
	}
	if e.MaxCatchUpDays < 1 {
		errs = append(errs, errors.New("PROGRESSION_MAX_CATCH_UP_DAYS must be at least 1"))
	}
	if e.RunHistoryRetentionDays < 1 {
		errs = append(errs, errors.New("PROGRESSION_RUN_HISTORY_RETENTION_DAYS must be at least 1"))
	}
	if e.RatingHistoryDays < 1 {
		errs = append(errs, errors.New("PROGRESSION_RATING_HISTORY_DAYS must be at least 1"))
	}
	if e.CorrelationWindowDays < 2 {
		errs = append(errs, errors.New("PROGRESSION_CORRELATION_WINDOW_DAYS must be at least 2"))
	}
	if e.CorrelationMinSamples < 3 {
		errs = append(errs, errors.New("PROGRESSION_CORRELATION_MIN_SAMPLES must be at least 3"))
	}
	if e.CorrelationThreshold <= 0 || e.CorrelationThreshold > 1 {
		errs = append(errs, fmt.Errorf("PROGRESSION_CORRELATION_THRESHOLD must be in (0, 1], got %v", e.CorrelationThreshold))
	}
	if e.ConfidenceFloor < 0 || e.ConfidenceFloor > 1 {
		errs = append(errs, fmt.Errorf("PROGRESSION_CONFIDENCE_FLOOR must be in [0, 1], got %v", e.ConfidenceFloor))
	}
	if e.AggregatorInterval <= 0 {
		errs = append(errs, errors.New("PROGRESSION_AGGREGATOR_INTERVAL must be positive"))
	}
	if e.TriggerInterval <= 0 {
		errs = append(errs, errors.New("PROGRESSION_TRIGGER_INTERVAL must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateWeights checks that weights are non-negative, name known dimensions
// and sum to 1.0
func ValidateWeights(weights map[string]float64) error {
	if len(weights) == 0 {
		return errors.New("dimension weights are required")
	}
	var missing []string
	sum := 0.0
	for _, name := range dimensionNames {
		w, ok := weights[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if w < 0 {
			return fmt.Errorf("dimension weight for %s must be non-negative, got %v", name, w)
		}
		sum += w
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing dimension weights: %s", strings.Join(missing, ", "))
	}
	if len(weights) != len(dimensionNames) {
		var unknown []string
		for name := range weights {
			if !isDimensionName(name) {
				unknown = append(unknown, name)
			}
		}
		sort.Strings(unknown)
		return fmt.Errorf("unknown dimension weights: %s", strings.Join(unknown, ", "))
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("dimension weights must sum to 1.0, got %.4f", sum)
	}
	return nil
}

var dimensionNames = []string{"cognitive", "creative", "physiological", "behavioral", "knowledge", "reflection"}

func isDimensionName(name string) bool {
	for _, n := range dimensionNames {
		if n == name {
			return true
		}
	}
	return false
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getWeightsEnv parses "cognitive:0.2,creative:0.15,..." pairs
func getWeightsEnv(key string, defaultValue map[string]float64) map[string]float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	weights := make(map[string]float64)
	for _, pair := range strings.Split(value, ",") {
		name, raw, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return defaultValue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return defaultValue
		}
		weights[strings.ToLower(strings.TrimSpace(name))] = w
	}
	return weights
}
