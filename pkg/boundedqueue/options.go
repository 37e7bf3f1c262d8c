package boundedqueue

import (
	"io"
	"log/slog"
)

type options struct {
	logger *slog.Logger
}

func defaultOptions() options {
	return options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option configures a BoundedQueue at construction.
type Option func(*options)

// WithLogger routes the queue's diagnostics to l. Nil keeps the default,
// which discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
