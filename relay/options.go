package relay

import "log/slog"

// Option configures a Broker, Events hub or Mediator.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the structured logger. A nil logger keeps the default, which discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, f := range opts {
		f(&o)
	}

	return o
}
