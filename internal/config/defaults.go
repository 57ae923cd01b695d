package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/snippetd/
//   - Linux:   ~/.local/share/snippetd/
//   - Windows: %APPDATA%\snippetd\
//
// Falls back to ~/.snippetd if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "snippetd")
	case "linux":
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	case "windows":
		return windowsDir("APPDATA", "Roaming")
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/snippetd/
//   - Linux:   ~/.config/snippetd/
//   - Windows: %APPDATA%\snippetd\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		return xdgDir("XDG_CONFIG_HOME", ".config")
	default:
		return PlatformDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/snippetd/
//   - Linux:   ~/.local/state/snippetd/
//   - Windows: %LOCALAPPDATA%\snippetd\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", "snippetd")
	case "linux":
		return xdgDir("XDG_STATE_HOME", ".local", "state")
	case "windows":
		return filepath.Join(windowsDir("LOCALAPPDATA", "Local"), "logs")
	default:
		return filepath.Join(fallbackDataDir(), "logs")
	}
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// xdgDir follows the XDG Base Directory Specification.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "snippetd")
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, "snippetd")...)
}

func windowsDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "snippetd")
	}
	return filepath.Join(homeDir(), "AppData", fallback, "snippetd")
}

func fallbackDataDir() string {
	return filepath.Join(homeDir(), ".snippetd")
}

func defaultIBusComponentPath() string {
	if runtime.GOOS != "linux" {
		return ""
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(homeDir(), ".local", "share")
	}
	return filepath.Join(dataHome, "ibus", "component", "snippetd.xml")
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the current directory and then the config
// directory for a config file. It returns "" if none is found.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
