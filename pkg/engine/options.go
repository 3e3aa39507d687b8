package engine

import (
	"context"
	"log/slog"
	"os"

	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/satellite"
)

// Discoverer returns the satellites of one boot pass.
type Discoverer interface {
	Discover(ctx context.Context, a *api.API) ([]satellite.Satellite, error)
}

// Option customises an Engine.
type Option func(*Engine)

// WithAPI uses an existing shared context.
func WithAPI(a *api.API) Option {
	return func(e *Engine) {
		if a != nil {
			e.api = a
		}
	}
}

// WithDiscoverer replaces the satellite discovery.
func WithDiscoverer(d Discoverer) Option {
	return func(e *Engine) {
		if d != nil {
			e.discoverer = d
		}
	}
}

// WithConfigPath sets the file read by the config satellite.
func WithConfigPath(path string) Option {
	return func(e *Engine) {
		e.configPath = path
	}
}

// WithExit replaces os.Exit on the fatal path.
func WithExit(exit func(code int)) Option {
	return func(e *Engine) {
		if exit != nil {
			e.exit = exit
		}
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = func() *slog.Logger { return l }
		}
	}
}

var defaultExit = os.Exit
