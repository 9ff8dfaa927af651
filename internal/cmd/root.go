package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/tempo/internal/config"
	"github.com/Iron-Ham/tempo/internal/engine"
	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/logging"
	"github.com/Iron-Ham/tempo/internal/store"
	"github.com/Iron-Ham/tempo/internal/task"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds the state shared by every subcommand of one invocation.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	now func() time.Time

	jsonOut bool
}

func newApp() *app {
	return &app{v: viper.New(), now: time.Now}
}

// Execute runs the root command with the process arguments and returns the
// exit code.
func Execute(ctx context.Context) int {
	return run(ctx, newApp(), os.Args[1:], os.Stdout, os.Stderr)
}

// run executes args and reports a failure on stderr, or as an error
// document on stdout when --json is set.
func run(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if a.jsonOut {
			_ = writeJSON(stdout, newErrorReport(err))
		} else {
			fmt.Fprintln(stderr, renderError(err))
		}
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tempo",
		Short: "Schedule hierarchical tasks by urgency, critical path and capacity",
		Long: `Tempo keeps a tree of tasks with estimates and deadlines and answers
scheduling questions about it: how complete a project is, how urgent a
task is, which tasks are on the critical path, and what to work on with
the hours you have.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
	}

	// Global flags
	root.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/tempo/config.yaml)")
	root.PersistentFlags().String("driver", "", "storage driver: file, sqlite or memory")
	root.PersistentFlags().String("data", "", "task file or database path")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Output as JSON")
	_ = a.v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = a.v.BindPFlag("storage.driver", root.PersistentFlags().Lookup("driver"))
	_ = a.v.BindPFlag("storage.path", root.PersistentFlags().Lookup("data"))

	registerQueryCmds(root, a)
	registerTaskCmds(root, a)
	registerConfigCmds(root, a)
	return root
}

func (a *app) initConfig(cmd *cobra.Command) error {
	v := a.v
	// Set defaults first so they're available even without a config file
	config.SetDefaultsOn(v)

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(config.ConfigDir())
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("TEMPO")
	// e.g. TEMPO_STORAGE_DRIVER for storage.driver
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if v.GetString("config") != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// withEngine opens the configured store and logger, runs fn and releases
// both.
func (a *app) withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) error) error {
	logger, err := a.openLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	s, closeStore, err := openStore(a.cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()

	sched := a.cfg.Scheduling
	e := engine.New(s,
		engine.WithLogger(logger),
		engine.WithClock(a.now),
		engine.WithSettings(engine.Settings{
			UrgencyWindowDays:    sched.UrgencyWindowDays,
			CapacityHours:        sched.CapacityHours,
			TimeUnitHours:        sched.TimeUnitHours,
			DefaultDurationHours: sched.DefaultDurationHours,
		}),
	)
	return fn(cmd.Context(), e)
}

func (a *app) openLogger(cmd *cobra.Command) (*logging.Logger, error) {
	lc := a.cfg.Logging
	level := logging.ParseLevel(lc.Level)
	file := lc.ResolveFile()
	if file == "" {
		return logging.NewWriterLogger(cmd.ErrOrStderr(), level), nil
	}
	logger, err := logging.NewLogger(logging.Options{
		File:  file,
		Level: level,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			Compress:   lc.Compress,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logger, nil
}

func openStore(sc config.StorageConfig) (task.Store, func() error, error) {
	noop := func() error { return nil }
	path := sc.ResolvePath()

	switch sc.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(), noop, nil
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		s, err := store.NewSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := store.OpenFileStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	}
}
