package app

import (
	"io"
	"log/slog"

	"github.com/vk/pyprovision/internal/events"
	"github.com/vk/pyprovision/internal/fetch"
	"github.com/vk/pyprovision/internal/provision"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config

	fetcher fetch.Fetcher
	extract provision.ExtractFunc
	sink    events.Sink
}

// Option customizes an App, mainly to substitute collaborators in tests.
type Option func(*App)

// WithFetcher replaces the HTTP client used for downloads.
func WithFetcher(f fetch.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithExtractor replaces archive extraction.
func WithExtractor(fn provision.ExtractFunc) Option {
	return func(a *App) { a.extract = fn }
}

// WithEventSink publishes build events to sink instead of dialing
// Config.EventsURL.
func WithEventSink(sink events.Sink) Option {
	return func(a *App) { a.sink = sink }
}

// NewApp is the constructor for the main application. Logs and command
// output are both written to outW.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:   outW,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
