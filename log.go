package forgevk

import (
	"io"
	"time"

	"golang.org/x/exp/slog"
)

// NewLogger returns a text logger writing records at or above level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Option configures a component.
type Option func(*options)

type options struct {
	log    *slog.Logger
	now    func() time.Time
	layers []string
}

// WithLogger sets the logger a component writes to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: discardLogger(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces the wall clock used for animation.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLayers enables validation layers on the logical device.
func WithLayers(layers []string) Option {
	return func(o *options) {
		o.layers = layers
	}
}
