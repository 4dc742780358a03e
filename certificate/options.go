package certificate

import (
	"log/slog"
	"time"
)

// Option configures a Signer, Verifier, RevocationManager or RepositoryStore.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
}

func defaultOptions() options {
	return options{
		logger:      slog.Default(),
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxAttempts bounds how often a conditional update is retried after a
// version conflict.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}
