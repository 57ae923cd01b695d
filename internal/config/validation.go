package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalidConfig) hold for validation failures.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields returns the names of the offending fields.
func (e ValidationErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for _, err := range e {
		out = append(out, err.Field)
	}
	return out
}

// ValidateConfig validates every section of the configuration.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateWatch(&c.Watch)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIBus(&c.IBus)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case StorageSQLite:
		if s.Path == "" {
			errs = append(errs, *RequiredFieldError("storage.path"))
		} else if msg := checkParentDir(s.Path); msg != "" {
			errs = append(errs, ValidationError{Field: "storage.path", Message: msg})
		}
	case StorageFile:
		if s.FilePath == "" {
			errs = append(errs, *RequiredFieldError("storage.file_path"))
			break
		}
		switch filepath.Ext(s.FilePath) {
		case ".toml", ".yaml", ".yml", ".json":
		default:
			errs = append(errs, ValidationError{
				Field:   "storage.file_path",
				Message: fmt.Sprintf("unsupported snippet file extension %q (valid: .toml, .yaml, .yml, .json)", filepath.Ext(s.FilePath)),
			})
		}
		if msg := checkParentDir(s.FilePath); msg != "" {
			errs = append(errs, ValidationError{Field: "storage.file_path", Message: msg})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("invalid storage type: %s (valid: sqlite, file)", s.Type),
		})
	}

	if s.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.busy_timeout_ms",
			Message: "busy timeout cannot be negative",
		})
	}

	return errs
}

func validateWatch(w *WatchConfig) ValidationErrors {
	var errs ValidationErrors
	if w.DebounceMs < 0 || w.DebounceMs > 60000 {
		errs = append(errs, *RangeError("watch.debounce_ms", 0, 60000))
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size cannot be negative",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateIBus(i *IBusConfig) ValidationErrors {
	var errs ValidationErrors
	if !i.Enabled {
		return errs
	}
	if i.EngineName == "" {
		errs = append(errs, *RequiredFieldError("ibus.engine_name"))
	} else if strings.ContainsAny(i.EngineName, " /.") {
		errs = append(errs, ValidationError{
			Field:   "ibus.engine_name",
			Message: "engine name must not contain spaces, slashes or dots",
		})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors
	if !m.Enabled {
		return errs
	}
	if m.Path == "" {
		errs = append(errs, *RequiredFieldError("metrics.path"))
	}
	if m.FlushIntervalSec < 1 || m.FlushIntervalSec > 3600 {
		errs = append(errs, *RangeError("metrics.flush_interval_sec", 1, 3600))
	}
	return errs
}

// checkParentDir reports a problem with path's directory. A directory
// that does not exist yet is fine; it is created on startup.
func checkParentDir(path string) string {
	dir := filepath.Dir(expandPath(path))
	if dir == "" || dir == "." {
		return ""
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		return fmt.Sprintf("cannot access directory: %v", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("parent path is not a directory: %s", dir)
	}
	return ""
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
