// Package config manages application configuration for the progression engine.
//
// Configuration is assembled in three layers, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. An optional YAML file named by PROGRESSION_CONFIG
//  3. Environment variables
//
// # Configuration Groups
//
//   - ServerConfig: HTTP server settings (port, timeouts)
//   - DatabaseConfig: store driver (surrealdb or sqlite) and connection settings
//   - EngineConfig: dimension weights, decay rate, catch-up cap, retention,
//     correlation and aggregator tunables, calendar time zone
//   - LoggingConfig: log level and encoding
//
// # Environment Variables
//
// Key environment variables:
//
//	SERVER_PORT                        - HTTP server port (default: 8080)
//	DB_DRIVER                          - surrealdb or sqlite (default: sqlite)
//	DB_SQLITE_PATH                     - SQLite file (default: progression.db)
//	PROGRESSION_DIMENSION_WEIGHTS      - cognitive:0.2,behavioral:0.2,...
//	PROGRESSION_DECAY_RATE             - daily rating regression (default: 0.05)
//	PROGRESSION_MAX_CATCH_UP_DAYS      - missed-day cap (default: 7)
//	PROGRESSION_TIME_ZONE              - IANA zone cutting calendar days
//	LOG_LEVEL                          - debug, info, warn, error
//
// Validate joins every failure with errors.Join so operators see all
// problems at once.
package config
