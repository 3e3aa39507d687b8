// Package api holds the shared runtime context handed to satellites and to
// every action invocation.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gil0mendes/Stellar/internal/config"
	"github.com/gil0mendes/Stellar/internal/observability/alerting"
	"github.com/gil0mendes/Stellar/pkg/action"
	"github.com/gil0mendes/Stellar/pkg/logger"
)

// Status is the run state of the engine.
type Status string

// Engine states.
const (
	StatusStopped      Status = "stopped"
	StatusInitStage0   Status = "init_stage0"
	StatusInitStage1   Status = "init_stage1"
	StatusInitStage2   Status = "init_stage2"
	StatusRunning      Status = "running"
	StatusShuttingDown Status = "shutting_down"
)

// Completion summarises a finished action invocation for observers such as
// the metrics satellite.
type Completion struct {
	Action         string
	Version        int
	ConnectionType string
	// Status is the pipeline tag; empty means success.
	Status   string
	Err      error
	Duration time.Duration
}

// CompletionHook observes finished invocations.
type CompletionHook func(Completion)

// API is the shared context. Its zero value is not usable; call New.
type API struct {
	ID         string
	Actions    *action.Registry
	Exceptions *alerting.FanoutDispatcher

	mu        sync.RWMutex
	cfg       *config.Config
	resources map[string]any
	hooks     []CompletionHook
	restart   func(context.Context) error

	status   atomic.Value
	bootTime atomic.Int64
	restarts atomic.Int64
}

// New builds a context with the default configuration and the log
// exception reporter.
func New() *API {
	a := &API{
		ID:         uuid.NewString(),
		Actions:    action.NewRegistry(),
		Exceptions: alerting.NewFanout(alerting.LogNotifier{}),
		cfg:        config.Default(),
		resources:  make(map[string]any),
	}
	a.status.Store(StatusStopped)
	return a
}

// Status returns the engine state.
func (a *API) Status() Status {
	return a.status.Load().(Status)
}

// SetStatus changes the engine state. Only the engine calls it.
func (a *API) SetStatus(s Status) {
	a.status.Store(s)
}

// Config returns the active configuration.
func (a *API) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// SetConfig replaces the active configuration.
func (a *API) SetConfig(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	if cfg != nil && cfg.General.ID != "" {
		a.ID = cfg.General.ID
	}
}

// Set stores a resource published by a satellite, e.g. "redis" or "cache".
func (a *API) Set(name string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if value == nil {
		delete(a.resources, name)
		return
	}
	a.resources[name] = value
}

// Get returns a resource published by a satellite.
func (a *API) Get(name string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.resources[name]
	return v, ok
}

// Resource returns the resource stored under name as T.
func Resource[T any](a *API, name string) (T, error) {
	var zero T
	v, ok := a.Get(name)
	if !ok {
		return zero, fmt.Errorf("resource %q is not available", name)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("resource %q has type %T", name, v)
	}
	return typed, nil
}

// Log writes msg at the given textual level ("debug", "info", "warn",
// "error", "none").
func (a *API) Log(msg, level string, args ...any) {
	lvl := logger.ParseLevel(level)
	if lvl == logger.LevelNone {
		return
	}
	logger.L().Log(context.Background(), lvl, msg, args...)
}

// Logger returns a component logger tagged with the runtime id.
func (a *API) Logger(component string) *slog.Logger {
	return logger.Named(component).With(slog.String("id", a.ID))
}

// OnCompletion registers an observer of finished invocations.
func (a *API) OnCompletion(h CompletionHook) {
	if h == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, h)
}

// NotifyCompletion calls every completion observer.
func (a *API) NotifyCompletion(c Completion) {
	a.mu.RLock()
	hooks := append([]CompletionHook(nil), a.hooks...)
	a.mu.RUnlock()
	for _, h := range hooks {
		h(c)
	}
}

// ReportException sends err to the exception reporters.
func (a *API) ReportException(ctx context.Context, event alerting.Event) {
	if err := a.Exceptions.Notify(ctx, event); err != nil {
		logger.Named("api").Warn("exception reporter failed", slog.Any("error", err))
	}
}

// SetRestartFunc installs the function Restart delegates to.
func (a *API) SetRestartFunc(fn func(context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.restart = fn
}

// Restart asks the engine to restart. It fails when no engine is attached.
func (a *API) Restart(ctx context.Context) error {
	a.mu.RLock()
	fn := a.restart
	a.mu.RUnlock()
	if fn == nil {
		return fmt.Errorf("no engine attached")
	}
	return fn(ctx)
}

// BootTime returns when the engine last reached running.
func (a *API) BootTime() time.Time {
	ns := a.bootTime.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// SetBootTime records the boot time.
func (a *API) SetBootTime(t time.Time) {
	a.bootTime.Store(t.UnixNano())
}

// Restarts returns how many times the engine reached running.
func (a *API) Restarts() int64 {
	return a.restarts.Load()
}

// IncRestarts bumps the counter and returns the new value.
func (a *API) IncRestarts() int64 {
	return a.restarts.Add(1)
}
