package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Iron-Ham/tempo/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func registerConfigCmds(root *cobra.Command, a *app) {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View or modify tempo configuration",
		Long: `View or modify tempo configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, a)
		},
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show current configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigShow(cmd, a)
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a configuration value",
			Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  tempo config set scheduling.capacity_hours 6
  tempo config set storage.driver sqlite

Valid keys:
  storage.driver                     - file, sqlite or memory
  storage.path                       - task file or database path
  scheduling.urgency_window_days     - urgency look-ahead window in days
  scheduling.capacity_hours          - hours available to "tempo plan"
  scheduling.time_unit_hours         - allocation granularity in hours
  scheduling.default_duration_hours  - estimate assumed for tasks without one
  logging.level                      - debug, info, warn or error
  logging.file                       - log file path, or "stderr"`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigSet(cmd, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create a default config file",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigInit(cmd)
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show the config file path",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigPath(cmd, a)
			},
		},
	)
	root.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, a *app) error {
	out := cmd.OutOrStdout()
	cfg := a.cfg

	settings := map[string]any{
		"storage": map[string]any{
			"driver": cfg.Storage.Driver,
			"path":   cfg.Storage.ResolvePath(),
		},
		"scheduling": map[string]any{
			"urgency_window_days":    cfg.Scheduling.UrgencyWindowDays,
			"capacity_hours":         cfg.Scheduling.CapacityHours,
			"time_unit_hours":        cfg.Scheduling.TimeUnitHours,
			"default_duration_hours": cfg.Scheduling.DefaultDurationHours,
		},
		"logging": map[string]any{
			"level":       cfg.Logging.Level,
			"file":        cfg.Logging.File,
			"max_size_mb": cfg.Logging.MaxSizeMB,
			"max_backups": cfg.Logging.MaxBackups,
			"compress":    cfg.Logging.Compress,
		},
	}
	if a.jsonOut {
		return writeJSON(out, settings)
	}

	if used := a.v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Config file: %s\n\n", used)
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n\n")
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// configKeyTypes lists the keys "config set" accepts.
var configKeyTypes = map[string]string{
	"storage.driver":                    "string",
	"storage.path":                      "string",
	"scheduling.urgency_window_days":    "int",
	"scheduling.capacity_hours":         "float",
	"scheduling.time_unit_hours":        "float",
	"scheduling.default_duration_hours": "float",
	"logging.level":                     "string",
	"logging.file":                      "string",
	"logging.max_size_mb":               "int",
	"logging.max_backups":               "int",
	"logging.compress":                  "bool",
}

func runConfigSet(cmd *cobra.Command, key, value string) error {
	keyType, ok := configKeyTypes[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'tempo config set --help' to see valid keys", key)
	}

	var typedValue any
	switch keyType {
	case "string":
		typedValue = value
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = b
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		typedValue = n
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected a number", key)
		}
		typedValue = f
	}

	// Edit only what the file already holds so defaults are not frozen in.
	fileV := viper.New()
	configFile := config.ConfigFile()
	fileV.SetConfigFile(configFile)
	if _, err := os.Stat(configFile); err == nil {
		if err := fileV.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	fileV.Set(key, typedValue)

	// Validate the merged result before writing anything.
	check := viper.New()
	config.SetDefaultsOn(check)
	if err := check.MergeConfigMap(fileV.AllSettings()); err != nil {
		return err
	}
	if _, err := config.LoadFrom(check); err != nil {
		return err
	}

	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := fileV.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const configTemplate = `# tempo configuration

storage:
  # file (YAML snapshot), sqlite or memory
  driver: file
  # Empty uses tasks.yaml (or tasks.db) under $XDG_DATA_HOME/tempo
  path: ""

scheduling:
  # Days ahead of the latest start time at which urgency starts rising
  urgency_window_days: 30
  # Hours available to "tempo plan"
  capacity_hours: 8
  # Allocation granularity in hours
  time_unit_hours: 0.5
  # Estimate assumed for tasks without one when planning
  default_duration_hours: 1

logging:
  # debug, info, warn or error
  level: info
  # Empty uses tempo.log under the data directory; "stderr" logs to the terminal
  file: ""
  max_size_mb: 10
  max_backups: 3
  compress: false
`

func runConfigInit(cmd *cobra.Command) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'tempo config set' to modify values", configFile)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, a *app) error {
	out := cmd.OutOrStdout()
	if used := a.v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}
	fmt.Fprintf(out, "\nEnvironment variables: TEMPO_* (e.g., %s)\n",
		"TEMPO_"+strings.ToUpper(strings.ReplaceAll("scheduling.capacity_hours", ".", "_")))
	return nil
}
