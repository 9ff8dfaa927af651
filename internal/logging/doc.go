// Package logging provides structured logging for tempo.
//
// Logs are JSON lines produced by log/slog. A [Logger] carries persistent
// attributes (component, task id, or arbitrary pairs) that are added to
// every entry it writes. Child loggers share the parent's handler.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(logging.Options{
//	    File:     "/home/me/.local/state/tempo/tempo.log",
//	    Level:    logging.LevelDebug,
//	    Rotation: logging.DefaultRotationConfig(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithComponent("cpm").Debug("schedule computed", "tasks", 12)
//
// Output:
//
//	{"time":"...","level":"DEBUG","msg":"schedule computed","component":"cpm","tasks":12}
//
// Without a File the logger writes to stderr. Tests use [NopLogger].
//
// # Log Rotation
//
// When MaxSizeMB is positive the log file is rotated once it would grow past
// that size. Rotated files are named tempo.log.1 (newest) through
// tempo.log.N and are gzip-compressed when Compress is set.
package logging
