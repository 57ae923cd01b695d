// Package config handles configuration loading, validation, and management for snippetd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"snippetd/internal/logging"
	"snippetd/internal/snippet"
)

// Version is the current configuration schema version.
const Version = 1

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
)

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Storage selects where snippets live.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Watch configures change detection on the store.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IBus configuration for the Linux input method host.
	IBus IBusConfig `toml:"ibus" json:"ibus" yaml:"ibus"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Type is the storage backend: "sqlite" or "file".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// FilePath is the snippet file (.toml, .yaml, .yml or .json) used by
	// the file backend.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// WatchConfig holds store change detection configuration.
type WatchConfig struct {
	// Enabled turns on detection of edits made by other processes.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// DebounceMs is how long the store must be quiet before reloading.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is how long to keep rotated files.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// IBusConfig holds input method host configuration.
type IBusConfig struct {
	// Enabled starts the IBus engine with the daemon.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// EngineName is the name the engine is registered under.
	EngineName string `toml:"engine_name" json:"engine_name" yaml:"engine_name"`

	// ComponentPath is where the IBus component XML is installed.
	ComponentPath string `toml:"component_path" json:"component_path" yaml:"component_path"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	// Enabled turns on the metrics textfile.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the Prometheus textfile written by the daemon.
	Path string `toml:"path" json:"path" yaml:"path"`

	// FlushIntervalSec is how often the textfile is rewritten.
	FlushIntervalSec int `toml:"flush_interval_sec" json:"flush_interval_sec" yaml:"flush_interval_sec"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := SnippetdDir()
	return &Config{
		Version: Version,
		Storage: StorageConfig{
			Type:          StorageSQLite,
			Path:          filepath.Join(dir, "snippets.db"),
			FilePath:      filepath.Join(PlatformConfigDir(), "snippets.toml"),
			BusyTimeoutMs: 5000,
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMs: 250,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "snippetd.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		IBus: IBusConfig{
			Enabled:       true,
			EngineName:    "snippetd",
			ComponentPath: defaultIBusComponentPath(),
		},
		Metrics: MetricsConfig{
			Enabled:          true,
			Path:             filepath.Join(dir, "snippetd.prom"),
			FlushIntervalSec: 15,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// ResolveConfigPath returns path if set, otherwise the first config file
// FindConfigFile finds, otherwise ConfigPath.
func ResolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if found := FindConfigFile(); found != "" {
		return found
	}
	return ConfigPath()
}

// SnippetdDir returns the base data directory.
// SNIPPETD_DATA_DIR overrides the platform default.
func SnippetdDir() string {
	if envDir := os.Getenv("SNIPPETD_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	cfg, err := loadConfigFromFile(ResolveConfigPath(path))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// Scope returns the storage scope snippet changes are reported under.
func (c *Config) Scope() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Storage.Type == StorageFile {
		return snippet.ScopeSync
	}
	return snippet.ScopeLocal
}

// StorePath returns the file backing the configured store.
func (c *Config) StorePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Storage.Type == StorageFile {
		return c.Storage.FilePath
	}
	return c.Storage.Path
}

// EnsureDirectories creates all directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	c.mu.RLock()
	dirs := []string{
		filepath.Dir(c.Storage.Path),
		filepath.Dir(c.Storage.FilePath),
		filepath.Dir(c.Metrics.Path),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	c.mu.RUnlock()

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with SNIPPETD_.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("SNIPPETD_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("SNIPPETD_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("SNIPPETD_SNIPPET_FILE"); v != "" {
		c.Storage.FilePath = v
	}

	if v := os.Getenv("SNIPPETD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SNIPPETD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	if v := os.Getenv("SNIPPETD_IBUS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.IBus.Enabled = b
		}
	}

	if v := os.Getenv("SNIPPETD_METRICS_PATH"); v != "" {
		c.Metrics.Path = v
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Config{
		Version: c.Version,
		Storage: c.Storage,
		Watch:   c.Watch,
		Logging: c.Logging,
		IBus:    c.IBus,
		Metrics: c.Metrics,
	}
}

// LoggerConfig converts the logging section into a logger configuration.
func (c *Config) LoggerConfig() (*logging.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = c.Logging.Output
	lc.FilePath = c.Logging.FilePath
	lc.MaxSize = int64(c.Logging.MaxSizeMB)
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAge = c.Logging.MaxAgeDays
	lc.Compress = c.Logging.Compress
	return lc, nil
}

// SaveConfig writes cfg to path in the format implied by its extension.
func SaveConfig(cfg *Config, path string) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".json":
		data, err = jsonMarshalIndent(cfg)
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
