package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	xerrors "github.com/gil0mendes/Stellar/internal/errors"
	"github.com/gil0mendes/Stellar/internal/observability/alerting"
	"github.com/gil0mendes/Stellar/pkg/action"
	"github.com/gil0mendes/Stellar/pkg/api"
)

// Parameter names read from the connection.
const (
	ParamAction     = "action"
	ParamAPIVersion = "apiVersion"
)

// State is the position of a processor in its state machine.
type State string

// Processor states.
const (
	StateCreated        State = "created"
	StateInstantiating  State = "instantiating"
	StatePreprocessing  State = "preprocessing"
	StateValidating     State = "validating"
	StateExecuting      State = "executing"
	StatePostprocessing State = "postprocessing"
	StateCompleted      State = "completed"
)

// Callback receives the completed processor.
type Callback func(p *Processor)

var tracer = otel.Tracer("github.com/gil0mendes/Stellar/pkg/pipeline")

// Processor drives a single invocation. Build one per call with New.
type Processor struct {
	api      *api.API
	conn     *action.Connection
	callback Callback

	ActionName      string
	Version         int
	Params          map[string]any
	Definition      *action.Definition
	ValidatorErrors map[string]string
	// Status is the completion tag; empty on success and for bare errors.
	Status   xerrors.Code
	Err      error
	Response any
	Started  time.Time
	Duration time.Duration

	data     *action.Data
	state    atomic.Value
	working  atomic.Bool
	rendered atomic.Bool
	done     chan struct{}
	cancel   context.CancelFunc
	span     trace.Span
}

// New builds a processor for one call on conn. The callback may be nil.
func New(a *api.API, conn *action.Connection, cb Callback) *Processor {
	p := &Processor{
		api:             a,
		conn:            conn,
		callback:        cb,
		ValidatorErrors: map[string]string{},
		done:            make(chan struct{}),
	}
	p.state.Store(StateCreated)
	return p
}

// State returns the current state.
func (p *Processor) State() State { return p.state.Load().(State) }

// Working reports whether the processor has not completed yet.
func (p *Processor) Working() bool { return p.working.Load() }

// Connection returns the borrowed connection.
func (p *Processor) Connection() *action.Connection { return p.conn }

// Done is closed once the processor has completed.
func (p *Processor) Done() <-chan struct{} { return p.done }

// Process runs the invocation and returns once it has completed. An action
// body that outlives its timeout keeps running; its result is dropped.
func (p *Processor) Process(ctx context.Context) {
	p.Started = time.Now()
	p.working.Store(true)
	pending := p.conn.BeginAction()

	p.Params = cloneParams(p.conn.Params)
	p.ActionName, _ = p.Params[ParamAction].(string)
	p.Version = parseVersion(p.Params[ParamAPIVersion])

	ctx, p.cancel = context.WithCancel(ctx)
	ctx, p.span = tracer.Start(ctx, "action "+p.ActionName, trace.WithAttributes(
		attribute.String("stellar.action", p.ActionName),
		attribute.String("stellar.connection.type", p.conn.Type),
	))

	def, ok := p.api.Actions.Resolve(p.ActionName, p.Version)
	switch {
	case !ok:
		p.complete(ctx, xerrors.CodeUnknownAction, nil)
	case p.api.Status() != api.StatusRunning:
		p.Definition = def
		p.complete(ctx, xerrors.CodeServerShuttingDown, nil)
	case pending > int64(p.api.Config().General.SimultaneousActions):
		p.Definition = def
		p.complete(ctx, xerrors.CodeTooManyRequests, nil)
	case def.Blocks(p.conn.Type):
		p.Definition = def
		p.complete(ctx, xerrors.CodeUnsupportedServerType, nil)
	default:
		p.Definition = def
		p.Version = def.Version
		p.run(ctx)
	}
	<-p.done
}

func (p *Processor) run(ctx context.Context) {
	p.state.Store(StateInstantiating)
	act, err := p.instantiate()
	if err != nil {
		p.fail(ctx, err)
		return
	}
	p.data = &action.Data{
		ActionName: p.ActionName,
		Version:    p.Version,
		Params:     p.Params,
		Connection: p.conn,
		Definition: p.Definition,
	}

	p.state.Store(StatePreprocessing)
	chain, err := p.preProcess(ctx)
	if err != nil {
		p.complete(ctx, "", err)
		return
	}

	p.state.Store(StateValidating)
	if errs := p.validate(); len(errs) > 0 {
		p.ValidatorErrors = errs
		p.complete(ctx, xerrors.CodeValidatorErrors, nil)
		return
	}

	p.state.Store(StateExecuting)
	if !p.execute(ctx, act) {
		return
	}

	p.state.Store(StatePostprocessing)
	p.Response = p.data.Response
	err = p.postProcess(ctx, chain)
	// Post hooks may replace the response, also when they fail.
	p.Response = p.data.Response
	p.complete(ctx, "", err)
}

func (p *Processor) instantiate() (act action.Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("instantiate %s: %v", p.ActionName, r)
		}
	}()
	act = p.Definition.New()
	if act == nil {
		return nil, fmt.Errorf("action %s built a nil instance", p.ActionName)
	}
	return act, nil
}

func (p *Processor) preProcess(ctx context.Context) ([]*action.Middleware, error) {
	if p.Definition.Private && p.conn.Type != action.ConnectionTypeInternal {
		return nil, xerrors.New(xerrors.CodePrivateAction, "")
	}
	chain := p.api.Actions.Chain(p.Definition)
	for _, m := range chain {
		if m.Pre == nil {
			continue
		}
		if err := safeHook(ctx, m.Pre, p.data); err != nil {
			return nil, err
		}
	}
	return chain, nil
}

func (p *Processor) postProcess(ctx context.Context, chain []*action.Middleware) error {
	for _, m := range chain {
		if m.Post == nil {
			continue
		}
		if err := safeHook(ctx, m.Post, p.data); err != nil {
			return err
		}
	}
	return nil
}

func safeHook(ctx context.Context, hook action.Hook, data *action.Data) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.New(xerrors.CodeServerError, fmt.Sprintf("middleware panic: %v", r))
		}
	}()
	return hook(ctx, data)
}

type outcome struct {
	response any
	err      error
	panicked any
	stack    []byte
}

// execute races the action body against the timeout and reports whether
// the pipeline should continue.
func (p *Processor) execute(ctx context.Context, act action.Action) bool {
	timeout := p.Definition.Timeout
	if timeout <= 0 {
		timeout = p.api.Config().General.ActionTimeout
	}

	results := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{panicked: r, stack: debug.Stack()}
			}
			results <- out
		}()
		out.response, out.err = act.Run(ctx, p.data)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-results:
		switch {
		case out.panicked != nil:
			p.reportPanic(ctx, out)
			p.complete(ctx, xerrors.CodeServerError, nil)
			return false
		case out.err != nil:
			p.complete(ctx, "", out.err)
			return false
		}
		if out.response == nil {
			out.response = map[string]any{}
		}
		p.data.Response = out.response
		return true
	case <-timer.C:
		p.complete(ctx, xerrors.CodeResponseTimeout, nil)
		return false
	case <-ctx.Done():
		p.complete(ctx, "", ctx.Err())
		return false
	}
}

func (p *Processor) reportPanic(ctx context.Context, out outcome) {
	err := xerrors.New(xerrors.CodeServerError, fmt.Sprintf("%v", out.panicked),
		xerrors.WithMetadata("stack", string(out.stack)))
	event := alerting.NewEvent("pipeline", err)
	event.Action = p.ActionName
	event.ConnectionID = p.conn.ID
	p.api.ReportException(context.WithoutCancel(ctx), event)
}

// fail completes with a server error after reporting err.
func (p *Processor) fail(ctx context.Context, err error) {
	event := alerting.NewEvent("pipeline", err)
	event.Action = p.ActionName
	event.ConnectionID = p.conn.ID
	p.api.ReportException(context.WithoutCancel(ctx), event)
	p.complete(ctx, xerrors.CodeServerError, nil)
}

func cloneParams(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func parseVersion(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Run processes one call on conn and returns the completed processor.
func Run(ctx context.Context, a *api.API, conn *action.Connection) *Processor {
	p := New(a, conn, nil)
	p.Process(ctx)
	return p
}
