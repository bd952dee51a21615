package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName     = "dashsync"
	defaultDataDir         = "./data"
	defaultTickSeconds     = 10
	defaultBackoffSeconds  = 30
	defaultFetchTimeoutSec = 30
	defaultAPIListen       = ":8080"
	defaultAPIHealthPath   = "/healthz"
	defaultAPIMaxBodyBytes = 1 << 20
	defaultMailPort        = 587
	defaultMailDialSec     = 10
	defaultEventsURL       = "nats://127.0.0.1:4222"
	defaultEventsStream    = "DASHSYNC_ALERTS"
	defaultEventsSubject   = "dashsync.alerts"

	// MailPasswordEnv overrides the mail secret without placing it in a file.
	MailPasswordEnv = "DASHSYNC_MAIL_PASSWORD"
)

// Config holds service runtime settings.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service ServiceConfig `toml:"service"`
	API     APIConfig     `toml:"api"`
	Log     LogConfig     `toml:"log"`
	Mail    MailConfig    `toml:"mail"`
	Events  EventsConfig  `toml:"events"`
}

// ServiceConfig contains process-level scheduler settings.
// Params: name, data directory, and loop timing controls.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name            string `toml:"name"`
	DataDir         string `toml:"data_dir"`
	TickSec         int    `toml:"tick_sec"`
	BackoffSec      int    `toml:"backoff_sec"`
	FetchTimeoutSec int    `toml:"fetch_timeout_sec"`
}

// APIConfig configures the operations HTTP endpoint.
// Params: enable flag, listen address, health path, and body size limit.
// Returns: API server behavior.
type APIConfig struct {
	Enabled      bool   `toml:"enabled"`
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// MailConfig carries outbound mail transport settings.
// Params: server endpoint, credentials, and sender identity. An empty host
// disables email dispatch for the process lifetime.
// Returns: static mail transport options.
type MailConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	From           string `toml:"from"`
	DialTimeoutSec int    `toml:"dial_timeout_sec"`
}

// EventsConfig configures the optional fired-alert NATS stream.
// Params: enable flag plus connection and stream naming.
// Returns: event stream options.
type EventsConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Stream  string `toml:"stream"`
	Subject string `toml:"subject"`
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory in name order.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays non-empty fragment sections onto the destination.
// Params: destination config and next fragment.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.API != (APIConfig{}) {
		dst.API = src.API
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if src.Mail != (MailConfig{}) {
		dst.Mail = src.Mail
	}
	if src.Events != (EventsConfig{}) {
		dst.Events = src.Events
	}
}

// applyDefaults fills omitted config fields with safe defaults.
// Params: cfg pointer to decoded snapshot.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	if strings.TrimSpace(cfg.Service.DataDir) == "" {
		cfg.Service.DataDir = defaultDataDir
	}
	if cfg.Service.TickSec <= 0 {
		cfg.Service.TickSec = defaultTickSeconds
	}
	if cfg.Service.BackoffSec <= 0 {
		cfg.Service.BackoffSec = defaultBackoffSeconds
	}
	if cfg.Service.FetchTimeoutSec <= 0 {
		cfg.Service.FetchTimeoutSec = defaultFetchTimeoutSec
	}

	if strings.TrimSpace(cfg.API.Listen) == "" {
		cfg.API.Listen = defaultAPIListen
	}
	if strings.TrimSpace(cfg.API.HealthPath) == "" {
		cfg.API.HealthPath = defaultAPIHealthPath
	}
	if cfg.API.MaxBodyBytes <= 0 {
		cfg.API.MaxBodyBytes = defaultAPIMaxBodyBytes
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if cfg.Mail.Port <= 0 {
		cfg.Mail.Port = defaultMailPort
	}
	if cfg.Mail.DialTimeoutSec <= 0 {
		cfg.Mail.DialTimeoutSec = defaultMailDialSec
	}

	if strings.TrimSpace(cfg.Events.URL) == "" {
		cfg.Events.URL = defaultEventsURL
	}
	if strings.TrimSpace(cfg.Events.Stream) == "" {
		cfg.Events.Stream = defaultEventsStream
	}
	if strings.TrimSpace(cfg.Events.Subject) == "" {
		cfg.Events.Subject = defaultEventsSubject
	}
}

// applyEnvOverrides reads secrets supplied via environment.
// Params: cfg pointer with defaults applied.
// Returns: overrides applied in place.
func applyEnvOverrides(cfg *Config) {
	if password := os.Getenv(MailPasswordEnv); password != "" {
		cfg.Mail.Password = password
	}
}

// validateConfig validates full runtime configuration.
// Params: cfg snapshot to validate.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if cfg.Service.TickSec < 1 {
		return errors.New("service.tick_sec must be >=1")
	}
	if cfg.Service.BackoffSec < cfg.Service.TickSec {
		return errors.New("service.backoff_sec must be >= service.tick_sec")
	}
	if cfg.Mail.Port < 1 || cfg.Mail.Port > 65535 {
		return fmt.Errorf("mail.port %d out of range", cfg.Mail.Port)
	}
	if strings.TrimSpace(cfg.Mail.Host) != "" && strings.TrimSpace(cfg.Mail.From) == "" {
		return errors.New("mail.from is required when mail.host is set")
	}
	for _, sink := range []LogSinkConfig{cfg.Log.Console, cfg.Log.File} {
		switch sink.Level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("log level %q is not supported", sink.Level)
		}
	}
	if cfg.Log.File.Enabled && strings.TrimSpace(cfg.Log.File.Path) == "" {
		return errors.New("log.file.path is required when file sink is enabled")
	}
	if cfg.Events.Enabled && strings.TrimSpace(cfg.Events.URL) == "" {
		return errors.New("events.url is required when events are enabled")
	}
	return nil
}
