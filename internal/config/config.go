package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config represents the complete tempo configuration
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// StorageConfig selects where tasks live
type StorageConfig struct {
	// Driver is one of "file" (YAML/JSON snapshot), "sqlite" or "memory"
	Driver string `mapstructure:"driver"`
	// Path is the snapshot file or database path. Empty means the default
	// location under the data directory. A leading ~ expands to the home
	// directory.
	Path string `mapstructure:"path"`
}

// SchedulingConfig holds calculator defaults
type SchedulingConfig struct {
	// UrgencyWindowDays is the look-ahead window for urgency scores (default: 30)
	UrgencyWindowDays int `mapstructure:"urgency_window_days"`
	// CapacityHours is the daily budget used by "tempo plan" (default: 8)
	CapacityHours float64 `mapstructure:"capacity_hours"`
	// TimeUnitHours is the allocation granularity (default: 0.5)
	TimeUnitHours float64 `mapstructure:"time_unit_hours"`
	// DefaultDurationHours stands in for missing estimates when planning (default: 1)
	DefaultDurationHours float64 `mapstructure:"default_duration_hours"`
}

// LoggingConfig controls debug logging
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `mapstructure:"level"`
	// File is the log file path. Empty means tempo.log under the data
	// directory; "stderr" logs to the terminal.
	File string `mapstructure:"file"`
	// MaxSizeMB rotates the log file at this size, 0 disables rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress"`
}

// ResolvePath returns the storage path for the configured driver.
// An empty Path resolves to tasks.yaml or tasks.db under DataDir.
func (s *StorageConfig) ResolvePath() string {
	if s.Path == "" {
		name := "tasks.yaml"
		if s.Driver == DriverSQLite {
			name = "tasks.db"
		}
		return filepath.Join(DataDir(), name)
	}
	return expandHome(s.Path)
}

// LogToStderr is the logging.file value that sends logs to stderr.
const LogToStderr = "stderr"

// ResolveFile returns the log file path with ~ expanded, or "" when logs
// go to stderr.
func (l *LoggingConfig) ResolveFile() string {
	switch l.File {
	case "":
		return filepath.Join(DataDir(), "tempo.log")
	case LogToStderr:
		return ""
	}
	return expandHome(l.File)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: DriverFile,
			Path:   "", // Empty means DataDir()/tasks.yaml
		},
		Scheduling: SchedulingConfig{
			UrgencyWindowDays:    30,
			CapacityHours:        8,
			TimeUnitHours:        0.5,
			DefaultDurationHours: 1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// Storage defaults
	v.SetDefault("storage.driver", defaults.Storage.Driver)
	v.SetDefault("storage.path", defaults.Storage.Path)

	// Scheduling defaults
	v.SetDefault("scheduling.urgency_window_days", defaults.Scheduling.UrgencyWindowDays)
	v.SetDefault("scheduling.capacity_hours", defaults.Scheduling.CapacityHours)
	v.SetDefault("scheduling.time_unit_hours", defaults.Scheduling.TimeUnitHours)
	v.SetDefault("scheduling.default_duration_hours", defaults.Scheduling.DefaultDurationHours)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load over an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tempo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tempo"
	}
	return filepath.Join(home, ".config", "tempo")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns the directory holding task data
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "tempo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tempo"
	}
	return filepath.Join(home, ".local", "share", "tempo")
}

// ValidDrivers returns the list of valid storage drivers
func ValidDrivers() []string {
	return []string{DriverFile, DriverSQLite, DriverMemory}
}
