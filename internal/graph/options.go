package graph

import "github.com/Iron-Ham/tempo/internal/logging"

// Option configures a Resolver or Linker.
type Option func(*config)

type config struct {
	logger *logging.Logger
}

// WithLogger sets the logger. A nil logger is replaced with a no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = logging.NopLogger()
	}
	return c
}
