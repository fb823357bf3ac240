// Package config provides configuration management for Drover.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Drover.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Agent        AgentConfig        `mapstructure:"agent"`
	MCP          MCPConfig          `mapstructure:"mcp"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds database connection configuration.
// The sqlite3 driver stores everything in a single file at Path.
// The pgx driver connects to PostgreSQL using the host/port/user fields.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite3 or pgx
	Path     string `mapstructure:"path"`   // sqlite database file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// OrchestratorConfig holds worker pool configuration.
type OrchestratorConfig struct {
	// RepoPath is the repository the agents operate on (default: current directory).
	RepoPath string `mapstructure:"repoPath"`

	// MaxWorkers is the number of concurrent workers in the pool.
	MaxWorkers int `mapstructure:"maxWorkers"`

	// ProgressFile is the name of the shared progress journal inside the repo.
	ProgressFile string `mapstructure:"progressFile"`

	// PollInterval is the idle sleep between queue polls, in seconds.
	PollInterval int `mapstructure:"pollInterval"`
}

// AgentConfig holds agent subprocess configuration.
type AgentConfig struct {
	// Command is the agent CLI binary to invoke for each task.
	Command string `mapstructure:"command"`
}

// MCPConfig holds the embedded MCP server configuration.
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// PollIntervalDuration returns the queue poll interval as a time.Duration.
func (o *OrchestratorConfig) PollIntervalDuration() time.Duration {
	return time.Duration(o.PollInterval) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	// Check if running in Kubernetes
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}

	// Check for explicit production environment
	if env := os.Getenv("DROVER_ENV"); env == "production" || env == "prod" {
		return "json"
	}

	// Default to text format for terminal use (more readable than JSON)
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults - sqlite file in the working directory
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "drover.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "drover")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "drover")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "drover")
	v.SetDefault("nats.maxReconnects", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// Orchestrator defaults
	v.SetDefault("orchestrator.repoPath", ".")
	v.SetDefault("orchestrator.maxWorkers", 5)
	v.SetDefault("orchestrator.progressFile", "PROGRESS.md")
	v.SetDefault("orchestrator.pollInterval", 2)

	// Agent defaults
	v.SetDefault("agent.command", "claude")

	// MCP defaults
	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.port", 9090)
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix DROVER_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory,
// ./config, or $HOME/.drover/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("DROVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys)
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("database.path", "DROVER_DB_PATH", "DROVER_DATABASE_PATH")
	_ = v.BindEnv("orchestrator.repoPath", "DROVER_REPO_PATH", "DROVER_ORCHESTRATOR_REPO_PATH")
	_ = v.BindEnv("orchestrator.maxWorkers", "DROVER_MAX_WORKERS", "DROVER_ORCHESTRATOR_MAX_WORKERS")
	_ = v.BindEnv("orchestrator.progressFile", "DROVER_PROGRESS_FILE", "DROVER_ORCHESTRATOR_PROGRESS_FILE")
	_ = v.BindEnv("agent.command", "DROVER_AGENT_COMMAND")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home + "/.drover")
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	// Server validation - always required
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// Database validation
	switch cfg.Database.Driver {
	case "sqlite3":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite3 driver")
		}
	case "pgx":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required for the pgx driver")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for the pgx driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the pgx driver")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite3, pgx")
	}

	// NATS validation - optional (uses in-memory event bus if not set)
	// No validation needed - empty URL means use in-memory

	// Orchestrator validation
	if cfg.Orchestrator.RepoPath == "" {
		errs = append(errs, "orchestrator.repoPath is required")
	}
	if cfg.Orchestrator.MaxWorkers <= 0 {
		errs = append(errs, "orchestrator.maxWorkers must be positive")
	}
	if cfg.Orchestrator.ProgressFile == "" {
		errs = append(errs, "orchestrator.progressFile is required")
	}
	if cfg.Orchestrator.PollInterval <= 0 {
		errs = append(errs, "orchestrator.pollInterval must be positive")
	}

	// Agent validation
	if cfg.Agent.Command == "" {
		errs = append(errs, "agent.command is required")
	}

	// MCP validation - port only matters when enabled
	if cfg.MCP.Enabled && (cfg.MCP.Port <= 0 || cfg.MCP.Port > 65535) {
		errs = append(errs, "mcp.port must be between 1 and 65535")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}
