// Package config provides configuration loading, validation, and defaults for
// the Airtable gateway.
//
// Configuration comes from three layers, lowest precedence first:
//
//  1. Built-in defaults.
//  2. An optional YAML file. ${VAR} references are expanded before parsing.
//  3. Environment variables (AIRTABLE_BASE_ID, AIRTABLE_TOKEN, PORT,
//     AIRTABLE_API_URL, LOG_LEVEL).
//
// The resulting *Config is built once at startup and never mutated
// afterwards. Missing upstream credentials are reported by [Config.Warnings]
// rather than as a load error: the gateway starts anyway and upstream calls
// fail until the credentials are supplied.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names read by Load.
const (
	EnvBaseID   = "AIRTABLE_BASE_ID"
	EnvToken    = "AIRTABLE_TOKEN"
	EnvAPIURL   = "AIRTABLE_API_URL"
	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"
)

// DefaultAPIURL is the Airtable REST API root.
const DefaultAPIURL = "https://api.airtable.com/v0"

// Config is the top-level configuration for the gateway.
type Config struct {
	Airtable      AirtableConfig      `yaml:"airtable"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
	Audit         AuditConfig         `yaml:"audit"`
	Events        EventsConfig        `yaml:"events"`
	LogLevel      string              `yaml:"log_level"`
}

// AirtableConfig holds the upstream connection settings.
type AirtableConfig struct {
	APIURL string `yaml:"api_url"`
	BaseID string `yaml:"base_id"`
	Token  string `yaml:"token"`
	// Timeout bounds a single upstream call. Zero means no gateway-side
	// timeout; the HTTP client defaults apply.
	Timeout Duration `yaml:"timeout"`
}

// ServerConfig controls the public HTTP listener.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	StaticDir       string   `yaml:"static_dir"`
	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Addr returns the host:port the public listener binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ObservabilityConfig controls the metrics/health HTTP server.
type ObservabilityConfig struct {
	// Enabled defaults to true when unset.
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// EnabledValue returns the effective enabled flag.
func (o ObservabilityConfig) EnabledValue() bool {
	if o.Enabled == nil {
		return true
	}
	return *o.Enabled
}

// AuditConfig controls the mutation audit trail. An empty FilePath disables it.
type AuditConfig struct {
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// EventsConfig controls the Kafka change feed. No brokers disables it.
type EventsConfig struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	Format            string   `yaml:"format"`      // "json" or "avro"
	Partitioner       string   `yaml:"partitioner"` // "record_id", "table", "round_robin"
	SchemaRegistryURL string   `yaml:"schema_registry_url"`
}

// Enabled reports whether mutation events should be published.
func (e EventsConfig) Enabled() bool {
	return len(e.Brokers) > 0
}

// Duration is a time.Duration that unmarshals from YAML strings like "500ms" or "30s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Expand ${VAR} and $VAR references in the YAML.
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays environment variables on top of the file values.
func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvBaseID); ok && v != "" {
		cfg.Airtable.BaseID = v
	}
	if v, ok := os.LookupEnv(EnvToken); ok && v != "" {
		cfg.Airtable.Token = v
	}
	if v, ok := os.LookupEnv(EnvAPIURL); ok && v != "" {
		cfg.Airtable.APIURL = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be a number, got %q", EnvPort, v)
		}
		cfg.Server.Port = port
	}
	return nil
}

// applyDefaults sets default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	at := &cfg.Airtable
	if at.APIURL == "" {
		at.APIURL = DefaultAPIURL
	}
	at.APIURL = strings.TrimRight(at.APIURL, "/")

	srv := &cfg.Server
	if srv.Host == "" {
		srv.Host = "0.0.0.0"
	}
	if srv.Port == 0 {
		srv.Port = 5000
	}
	if srv.StaticDir == "" {
		srv.StaticDir = "."
	}
	if srv.ShutdownTimeout.Duration == 0 {
		srv.ShutdownTimeout.Duration = 10 * time.Second
	}

	if cfg.Observability.Addr == "" {
		cfg.Observability.Addr = ":9090"
	}

	if cfg.Audit.FilePath != "" {
		if cfg.Audit.MaxSizeMB == 0 {
			cfg.Audit.MaxSizeMB = 100
		}
		if cfg.Audit.MaxBackups == 0 {
			cfg.Audit.MaxBackups = 5
		}
	}

	ev := &cfg.Events
	if ev.Enabled() {
		if ev.Topic == "" {
			ev.Topic = "airtable.mutations"
		}
		if ev.Format == "" {
			ev.Format = "json"
		}
		if ev.Partitioner == "" {
			ev.Partitioner = "record_id"
		}
	}
}

// validate checks that all present fields are valid. Missing credentials are
// not errors; see Warnings.
func validate(cfg *Config) error {
	var errs []error

	if u, err := url.Parse(cfg.Airtable.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("airtable.api_url is not a valid URL: %s", cfg.Airtable.APIURL))
	}
	if cfg.Airtable.Timeout.Duration < 0 {
		errs = append(errs, errors.New("airtable.timeout must not be negative"))
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}

	for _, origin := range cfg.Server.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, fmt.Errorf("server.cors_origins entries must be '*' or start with http:// or https://, got %q", origin))
		}
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn, or error, got %q", cfg.LogLevel))
	}

	if cfg.Audit.MaxSizeMB < 0 || cfg.Audit.MaxBackups < 0 || cfg.Audit.MaxAgeDays < 0 {
		errs = append(errs, errors.New("audit rotation settings must not be negative"))
	}

	if cfg.Events.Enabled() {
		switch cfg.Events.Format {
		case "json", "avro":
		default:
			errs = append(errs, fmt.Errorf("events.format must be 'json' or 'avro', got %q", cfg.Events.Format))
		}
		switch cfg.Events.Partitioner {
		case "record_id", "table", "round_robin":
		default:
			errs = append(errs, fmt.Errorf("events.partitioner must be 'record_id', 'table', or 'round_robin', got %q", cfg.Events.Partitioner))
		}
		if cfg.Events.SchemaRegistryURL != "" {
			if cfg.Events.Format != "avro" {
				errs = append(errs, errors.New("events.schema_registry_url requires events.format 'avro'"))
			}
			if u, err := url.Parse(cfg.Events.SchemaRegistryURL); err != nil || u.Scheme == "" {
				errs = append(errs, fmt.Errorf("events.schema_registry_url is not a valid URL: %s", cfg.Events.SchemaRegistryURL))
			}
		}
	}

	return errors.Join(errs...)
}

// Warnings returns human-readable notices about settings that do not stop
// the gateway from starting but will make upstream calls fail.
func (c *Config) Warnings() []string {
	var warns []string
	if c.Airtable.BaseID == "" {
		warns = append(warns, EnvBaseID+" is not set; upstream calls will fail")
	}
	if c.Airtable.Token == "" {
		warns = append(warns, EnvToken+" is not set; upstream calls will fail")
	}
	return warns
}
