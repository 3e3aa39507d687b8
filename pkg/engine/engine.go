package engine

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gil0mendes/Stellar/internal/config"
	xerrors "github.com/gil0mendes/Stellar/internal/errors"
	"github.com/gil0mendes/Stellar/internal/observability/alerting"
	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/logger"
	"github.com/gil0mendes/Stellar/pkg/satellite"
)

// Stage tags reported on the fatal path.
const (
	StageZero  = "stage0"
	StageOne   = "stage1"
	StageTwo   = "stage2"
	StageStop  = "stop"
	exitFailed = 1

	startFinalizer = "engine.start.finalize"
	stopFinalizer  = "engine.stop.finalize"
)

// PidFile is implemented by the resource published under "pid"; the stop
// finaliser removes it.
type PidFile interface {
	Remove() error
}

type operation struct {
	name  string
	stage string
	run   func(ctx context.Context) error
}

// Engine owns the satellites and the run status of the shared context.
type Engine struct {
	api        *api.API
	discoverer Discoverer
	configPath string
	exit       func(int)
	log        func() *slog.Logger

	mu          sync.Mutex
	initialized bool
	satellites  map[string]satellite.Satellite
	order       []string
	loadOps     []operation
	startOps    []operation
	stopOps     []operation
	finalized   bool
	discoveries int
	watcher     *config.Watcher
}

// New builds an engine. Without WithDiscoverer only feature module
// satellites are discovered.
func New(opts ...Option) *Engine {
	e := &Engine{
		exit:       defaultExit,
		log:        func() *slog.Logger { return logger.Named("engine") },
		satellites: make(map[string]satellite.Satellite),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.api == nil {
		e.api = api.New()
	}
	if e.discoverer == nil {
		e.discoverer = satellite.NewDiscovery(nil)
	}
	e.api.SetRestartFunc(e.Restart)
	return e
}

// API returns the shared context.
func (e *Engine) API() *api.API { return e.api }

// Status returns the run status.
func (e *Engine) Status() api.Status { return e.api.Status() }

// Satellites returns the names of the discovered satellites, in discovery order.
func (e *Engine) Satellites() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

// Initialize runs stage 0.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stage0(ctx)
}

// Start boots the engine up to running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch status := e.api.Status(); status {
	case api.StatusStopped:
	default:
		return xerrors.New(xerrors.CodeInvalidState, xerrors.Render(xerrors.CodeInvalidState, status))
	}
	if !e.initialized {
		if err := e.stage0(ctx); err != nil {
			return err
		}
	}
	return e.stage1(ctx)
}

// Restart stops the engine when running and runs the start stage again.
// Satellites are neither rediscovered nor reloaded.
func (e *Engine) Restart(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch status := e.api.Status(); status {
	case api.StatusRunning:
		if err := e.stop(ctx); err != nil {
			return err
		}
	case api.StatusStopped:
		if !e.finalized {
			return xerrors.New(xerrors.CodeInvalidState, "the engine has never been started")
		}
	default:
		return xerrors.New(xerrors.CodeInvalidState, xerrors.Render(xerrors.CodeInvalidState, status))
	}
	return e.stage2(ctx)
}

// Stop runs the stop hooks. Calling it while a stop is in progress is a
// no-op; calling it in any other state than running is an error.
func (e *Engine) Stop(ctx context.Context) error {
	if e.api.Status() == api.StatusShuttingDown {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop(ctx)
}

func (e *Engine) stage0(ctx context.Context) error {
	e.api.SetStatus(api.StatusInitStage0)
	foundations := []satellite.Satellite{utilsSatellite{}, configSatellite{path: e.configPath}}
	for _, s := range foundations {
		if err := s.(satellite.Loader).Load(ctx, e.api); err != nil {
			return e.fatal(ctx, StageZero, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	e.initialized = true
	return nil
}

func (e *Engine) stage1(ctx context.Context) error {
	e.api.SetStatus(api.StatusInitStage1)
	e.satellites = make(map[string]satellite.Satellite)
	e.order = nil

	discovered, err := e.discoverer.Discover(ctx, e.api)
	if err != nil {
		return e.fatal(ctx, StageOne, fmt.Errorf("discover satellites: %w", err))
	}
	e.discoveries++

	loads := map[int][]operation{}
	starts := map[int][]operation{}
	stops := map[int][]operation{}
	for _, s := range discovered {
		e.satellites[s.Name()] = s
		e.order = append(e.order, s.Name())
		prio := satellite.PrioritiesOf(s)
		if l, ok := s.(satellite.Loader); ok {
			loads[prio.Load] = append(loads[prio.Load], e.hook(s.Name(), StageOne, l.Load))
		}
		if st, ok := s.(satellite.Starter); ok {
			starts[prio.Start] = append(starts[prio.Start], e.hook(s.Name(), StageTwo, st.Start))
		}
		if sp, ok := s.(satellite.Stopper); ok {
			stops[prio.Stop] = append(stops[prio.Stop], e.hook(s.Name(), StageStop, sp.Stop))
		}
	}
	e.loadOps = Flatten(loads)
	e.startOps = Flatten(starts)
	e.stopOps = Flatten(stops)
	e.finalized = false

	e.log().Debug("satellites discovered", slog.Int("count", len(discovered)))
	if err := e.runSeries(ctx, e.loadOps); err != nil {
		return e.fatal(ctx, StageOne, err)
	}
	return e.stage2(ctx)
}

func (e *Engine) stage2(ctx context.Context) error {
	e.api.SetStatus(api.StatusInitStage2)
	if !e.finalized {
		e.startOps = append(e.startOps, operation{name: startFinalizer, stage: StageTwo, run: e.finishStart})
		e.finalized = true
	}
	if err := e.runSeries(ctx, e.startOps); err != nil {
		return e.fatal(ctx, StageTwo, err)
	}
	return nil
}

func (e *Engine) finishStart(ctx context.Context) error {
	e.api.SetStatus(api.StatusRunning)
	e.api.SetBootTime(time.Now())

	verb := "started"
	if e.api.Restarts() > 0 {
		verb = "restarted"
	}
	e.log().Info("server "+verb, slog.String("id", e.api.ID))
	e.api.IncRestarts()
	e.startHousekeeping()
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	switch status := e.api.Status(); status {
	case api.StatusShuttingDown:
		return nil
	case api.StatusRunning:
	default:
		return xerrors.New(xerrors.CodeInvalidState, xerrors.Render(xerrors.CodeInvalidState, status))
	}
	e.api.SetStatus(api.StatusShuttingDown)
	e.log().Info("shutting down open servers and stopping task processing")

	if n := len(e.stopOps); n > 0 && e.stopOps[n-1].name == stopFinalizer {
		e.stopOps = e.stopOps[:n-1]
	}
	e.stopOps = append(e.stopOps, operation{name: stopFinalizer, stage: StageStop, run: e.finishStop})

	if err := e.runSeries(ctx, e.stopOps); err != nil {
		return e.fatal(ctx, StageStop, err)
	}
	return nil
}

func (e *Engine) finishStop(context.Context) error {
	e.stopHousekeeping()
	e.removePid()
	e.log().Info("server stopped", slog.String("id", e.api.ID))
	e.api.SetStatus(api.StatusStopped)
	return nil
}

func (e *Engine) hook(name, stage string, fn func(context.Context, *api.API) error) operation {
	return operation{
		name:  name,
		stage: stage,
		run: func(ctx context.Context) error {
			return fn(ctx, e.api)
		},
	}
}

// runSeries runs ops one after the other and stops at the first error.
func (e *Engine) runSeries(ctx context.Context, ops []operation) error {
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := op.run(ctx); err != nil {
			return fmt.Errorf("%s %s: %w", op.stage, op.name, err)
		}
	}
	return nil
}

// fatal logs errs, forces a stop and exits the process. The returned error
// is only observed when the exit function returns, as in tests.
func (e *Engine) fatal(ctx context.Context, stage string, errs ...error) error {
	var joined []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		joined = append(joined, err)
		e.log().Error("fatal error", slog.String("stage", stage), slog.Any("error", err))
		event := alerting.NewEvent("engine", xerrors.Wrap(xerrors.CodeFatal, err, xerrors.Render(xerrors.CodeFatal, stage)))
		event.Metadata = map[string]string{"stage": stage}
		e.api.ReportException(ctx, event)
	}
	e.forceStop(ctx, stage)
	e.exit(exitFailed)
	return xerrors.Wrap(xerrors.CodeFatal, stdErrors.Join(joined...), xerrors.Render(xerrors.CodeFatal, stage))
}

// forceStop runs every stop hook regardless of the run status, logging
// failures instead of escalating them. A failing stop stage only runs the
// finaliser.
func (e *Engine) forceStop(ctx context.Context, stage string) {
	e.api.SetStatus(api.StatusShuttingDown)
	if stage != StageStop {
		for _, op := range e.stopOps {
			if op.name == stopFinalizer {
				continue
			}
			if err := op.run(context.WithoutCancel(ctx)); err != nil {
				e.log().Error("stop hook failed", slog.String("satellite", op.name), slog.Any("error", err))
			}
		}
	}
	_ = e.finishStop(ctx)
}

func (e *Engine) startHousekeeping() {
	cfg := e.api.Config()
	if cfg == nil || !cfg.General.DevelopmentMode || cfg.File() == "" || e.watcher != nil {
		return
	}
	w, err := config.Watch(cfg.File(), func() {
		go func() {
			if err := e.Restart(context.Background()); err != nil {
				e.log().Warn("restart after config change failed", slog.Any("error", err))
			}
		}()
	})
	if err != nil {
		e.log().Warn("config watcher unavailable", slog.Any("error", err))
		return
	}
	e.watcher = w
}

func (e *Engine) stopHousekeeping() {
	if e.watcher == nil {
		return
	}
	if err := e.watcher.Stop(); err != nil {
		e.log().Warn("stop config watcher", slog.Any("error", err))
	}
	e.watcher = nil
}

func (e *Engine) removePid() {
	pid, err := api.Resource[PidFile](e.api, "pid")
	if err != nil {
		return
	}
	if err := pid.Remove(); err != nil {
		e.log().Warn("remove pid file", slog.Any("error", err))
	}
}

// Discoveries returns how many discovery passes have run.
func (e *Engine) Discoveries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.discoveries
}
