// Package config provides configuration loading and path management for sysgate.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/tidwall/jsonc"
)

// Config holds the sysgate configuration.
type Config struct {
	// Workspace is the root directory the broker manages.
	Workspace string `json:"workspace,omitempty"`
	// PermissionsFile overrides the default permission table location.
	PermissionsFile string `json:"permissionsFile,omitempty"`
	// DefaultTimeoutSeconds bounds synchronous command execution.
	DefaultTimeoutSeconds int `json:"defaultTimeoutSeconds,omitempty"`
	// SafeCommands extends the built-in safe command set.
	SafeCommands []string `json:"safeCommands,omitempty"`
	// SafeDirs are workspace subdirectories with implicit write/delete.
	SafeDirs []string `json:"safeDirs,omitempty"`
	// LogLevel is the minimum log level (DEBUG|INFO|WARN|ERROR).
	LogLevel string `json:"logLevel,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultTimeoutSeconds: 300,
		SafeDirs:              []string{"logs", "cache", "temp", "output"},
		LogLevel:              "INFO",
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/sysgate/)
// 2. Project config (<directory>/sysgate.json or <directory>/.sysgate/)
// 3. SYSGATE_CONFIG file
// 4. Environment variables
func Load(directory string) (*Config, error) {
	config := Default()

	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 1. Global config
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "sysgate.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "sysgate.jsonc"), globalPath)

	// 2. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".sysgate")
		loadOnce(filepath.Join(directory, "sysgate.json"), directory)
		loadOnce(filepath.Join(directory, "sysgate.jsonc"), directory)
		loadOnce(filepath.Join(projectConfigDir, "sysgate.json"), projectConfigDir)
		loadOnce(filepath.Join(projectConfigDir, "sysgate.jsonc"), projectConfigDir)
	}

	// 3. SYSGATE_CONFIG file override
	if configPath := os.Getenv("SYSGATE_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	// 4. Environment variables (highest priority)
	applyEnvOverrides(config)

	if config.Workspace == "" {
		config.Workspace = directory
	}

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	data = interpolate(data)

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} placeholders.
func interpolate(data []byte) []byte {
	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
	return []byte(str)
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *Config) {
	if source.Workspace != "" {
		target.Workspace = source.Workspace
	}
	if source.PermissionsFile != "" {
		target.PermissionsFile = source.PermissionsFile
	}
	if source.DefaultTimeoutSeconds > 0 {
		target.DefaultTimeoutSeconds = source.DefaultTimeoutSeconds
	}
	if len(source.SafeCommands) > 0 {
		target.SafeCommands = append(target.SafeCommands, source.SafeCommands...)
	}
	if len(source.SafeDirs) > 0 {
		target.SafeDirs = source.SafeDirs
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *Config) {
	if ws := os.Getenv("SYSGATE_WORKSPACE"); ws != "" {
		config.Workspace = ws
	}
	if pf := os.Getenv("SYSGATE_PERMISSIONS_FILE"); pf != "" {
		config.PermissionsFile = pf
	}
	if level := os.Getenv("SYSGATE_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if timeout := os.Getenv("SYSGATE_TIMEOUT"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil && secs > 0 {
			config.DefaultTimeoutSeconds = secs
		}
	}
}

// Save saves the configuration to a file.
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
