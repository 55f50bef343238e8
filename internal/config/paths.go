package config

import (
	"os"
	"path/filepath"
)

const (
	// AppDir is the directory name under the XDG config and data homes.
	AppDir = "paperrec"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// ConfigPathEnvVar overrides the config file location.
	ConfigPathEnvVar = "PAPERREC_CONFIG"
)

// DefaultConfigPath returns the config file path.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/paperrec/config.yml.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, AppDir, ConfigFile)
}

// DataDir returns the directory holding the database, cache and model files.
// Respects XDG_DATA_HOME, defaults to ~/.local/share/paperrec.
func DataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return AppDir
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, AppDir)
}

// ResolvePath picks the config file to read: the explicit path if given,
// then $PAPERREC_CONFIG, then DefaultConfigPath. The second result reports
// whether the file must exist (explicitly requested).
func ResolvePath(explicit string) (string, bool) {
	if explicit != "" {
		return ExpandPath(explicit), true
	}
	if env := os.Getenv(ConfigPathEnvVar); env != "" {
		return ExpandPath(env), true
	}
	return DefaultConfigPath(), false
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}
