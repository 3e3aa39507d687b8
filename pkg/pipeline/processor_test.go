package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "github.com/gil0mendes/Stellar/internal/errors"
	"github.com/gil0mendes/Stellar/internal/observability/alerting"
	"github.com/gil0mendes/Stellar/pkg/action"
	"github.com/gil0mendes/Stellar/pkg/api"
)

func newAPI(t *testing.T) *api.API {
	t.Helper()
	a := api.New()
	a.SetStatus(api.StatusRunning)
	a.Config().General.ActionTimeout = time.Second
	return a
}

func register(t *testing.T, a *api.API, def action.Definition) {
	t.Helper()
	require.NoError(t, a.Actions.Register(def))
}

func echoDefinition(runs *atomic.Int32) action.Definition {
	return action.Definition{
		Name:   "echo",
		Inputs: map[string]action.Input{"msg": {Required: true}},
		New: func() action.Action {
			return action.Func(func(_ context.Context, d *action.Data) (any, error) {
				if runs != nil {
					runs.Add(1)
				}
				return map[string]any{"msg": d.Params["msg"]}, nil
			})
		},
	}
}

func call(a *api.API, connType string, params map[string]any) (*Processor, int) {
	conn := action.NewConnection(connType, "127.0.0.1")
	conn.Params = params
	calls := 0
	p := New(a, conn, func(*Processor) { calls++ })
	p.Process(context.Background())
	return p, calls
}

func TestEchoEndToEnd(t *testing.T) {
	a := newAPI(t)
	var runs atomic.Int32
	register(t, a, echoDefinition(&runs))

	p, calls := call(a, "web", map[string]any{"action": "echo", "msg": "hi"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, xerrors.Code(""), p.Status)
	assert.NoError(t, p.Err)
	assert.Equal(t, map[string]any{"msg": "hi"}, p.Response)
	assert.Equal(t, StateCompleted, p.State())
	assert.False(t, p.Working())
	assert.Equal(t, int64(0), p.Connection().PendingActions())
	assert.Equal(t, int64(1), p.Connection().TotalActions())
	assert.Equal(t, int32(1), runs.Load())
}

func TestMissingRequiredInputNeverExecutes(t *testing.T) {
	a := newAPI(t)
	var runs atomic.Int32
	register(t, a, echoDefinition(&runs))

	p, calls := call(a, "web", map[string]any{"action": "echo"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, xerrors.CodeValidatorErrors, p.Status)
	assert.Equal(t, int32(0), runs.Load())

	resp, ok := p.Response.(map[string]any)
	require.True(t, ok)
	fields, ok := resp["error"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", fields["msg"])
}

func TestTimeoutCompletesOnce(t *testing.T) {
	a := newAPI(t)
	release := make(chan struct{})
	finished := make(chan struct{})
	var cancelled atomic.Bool
	register(t, a, action.Definition{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		New: func() action.Action {
			return action.Func(func(ctx context.Context, _ *action.Data) (any, error) {
				defer close(finished)
				<-release
				cancelled.Store(ctx.Err() != nil)
				return map[string]any{"late": true}, nil
			})
		},
	})

	var mu sync.Mutex
	completions := 0
	conn := action.NewConnection("web", "127.0.0.1")
	conn.Params = map[string]any{"action": "slow"}
	p := New(a, conn, func(*Processor) {
		mu.Lock()
		completions++
		mu.Unlock()
	})
	p.Process(context.Background())

	assert.Equal(t, xerrors.CodeResponseTimeout, p.Status)
	resp := p.Response.(map[string]any)
	assert.Equal(t, "response timeout for action 'slow'", resp["error"])

	close(release)
	<-finished
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, completions)
	assert.True(t, cancelled.Load())
	assert.NotContains(t, resp, "late")
	assert.Equal(t, int64(0), conn.PendingActions())
}

func TestTooManyRequests(t *testing.T) {
	a := newAPI(t)
	a.Config().General.SimultaneousActions = 2
	var runs atomic.Int32
	register(t, a, echoDefinition(&runs))

	conn := action.NewConnection("web", "127.0.0.1")
	conn.BeginAction()
	conn.BeginAction()
	conn.Params = map[string]any{"action": "echo", "msg": "hi"}

	p := Run(context.Background(), a, conn)
	assert.Equal(t, xerrors.CodeTooManyRequests, p.Status)
	assert.Equal(t, int64(3), conn.TotalActions())
	assert.Equal(t, int64(2), conn.PendingActions())
	assert.Equal(t, int32(0), runs.Load())
}

func TestAdmissionFailures(t *testing.T) {
	a := newAPI(t)
	register(t, a, echoDefinition(nil))
	register(t, a, action.Definition{
		Name:                   "nosocket",
		BlockedConnectionTypes: []string{"socket"},
		New:                    echoDefinition(nil).New,
	})

	p, _ := call(a, "web", map[string]any{"action": "missing"})
	assert.Equal(t, xerrors.CodeUnknownAction, p.Status)
	assert.Equal(t, map[string]any{"error": "unknown action or invalid apiVersion"}, p.Response)

	p, _ = call(a, "socket", map[string]any{"action": "nosocket"})
	assert.Equal(t, xerrors.CodeUnsupportedServerType, p.Status)
	assert.Equal(t, "this action does not support the socket connection type", p.Response.(map[string]any)["error"])

	a.SetStatus(api.StatusShuttingDown)
	p, _ = call(a, "web", map[string]any{"action": "echo", "msg": "x"})
	assert.Equal(t, xerrors.CodeServerShuttingDown, p.Status)
}

func TestPrivateActionsOnlyInternal(t *testing.T) {
	a := newAPI(t)
	def := echoDefinition(nil)
	def.Private = true
	register(t, a, def)

	p, _ := call(a, "web", map[string]any{"action": "echo", "msg": "x"})
	assert.Equal(t, xerrors.Code(""), p.Status)
	assert.Equal(t, xerrors.CodePrivateAction, xerrors.CodeOf(p.Err))

	p, _ = call(a, action.ConnectionTypeInternal, map[string]any{"action": "echo", "msg": "x"})
	assert.NoError(t, p.Err)
	assert.Equal(t, map[string]any{"msg": "x"}, p.Response)
}

func TestMiddlewareOrder(t *testing.T) {
	a := newAPI(t)
	var trail []string
	hook := func(label string) action.Hook {
		return func(context.Context, *action.Data) error {
			trail = append(trail, label)
			return nil
		}
	}
	require.NoError(t, a.Actions.RegisterMiddleware(action.Middleware{Name: "g2", Global: true, Priority: 20, Pre: hook("g2.pre"), Post: hook("g2.post")}))
	require.NoError(t, a.Actions.RegisterMiddleware(action.Middleware{Name: "g1", Global: true, Priority: 10, Pre: hook("g1.pre")}))
	require.NoError(t, a.Actions.RegisterMiddleware(action.Middleware{Name: "local", Pre: hook("local.pre"), Post: func(_ context.Context, d *action.Data) error {
		trail = append(trail, "local.post")
		d.Response.(map[string]any)["wrapped"] = true
		return nil
	}}))
	register(t, a, action.Definition{
		Name:       "wrapped",
		Middleware: []string{"local"},
		New: func() action.Action {
			return action.Func(func(context.Context, *action.Data) (any, error) {
				trail = append(trail, "run")
				return nil, nil
			})
		},
	})

	p, _ := call(a, "web", map[string]any{"action": "wrapped"})
	require.NoError(t, p.Err)
	assert.Equal(t, []string{"g1.pre", "g2.pre", "local.pre", "run", "g2.post", "local.post"}, trail)
	assert.Equal(t, map[string]any{"wrapped": true}, p.Response)
}

func TestPreHookErrorAborts(t *testing.T) {
	a := newAPI(t)
	var runs atomic.Int32
	require.NoError(t, a.Actions.RegisterMiddleware(action.Middleware{Name: "auth", Global: true, Pre: func(context.Context, *action.Data) error {
		return errors.New("not authenticated")
	}}))
	register(t, a, echoDefinition(&runs))

	p, _ := call(a, "web", map[string]any{"action": "echo", "msg": "x"})
	assert.Equal(t, xerrors.Code(""), p.Status)
	assert.EqualError(t, p.Err, "not authenticated")
	assert.Equal(t, map[string]any{"error": "not authenticated"}, p.Response)
	assert.Equal(t, int32(0), runs.Load())
}

func TestPostHookErrorReplacesStringResponse(t *testing.T) {
	a := newAPI(t)
	require.NoError(t, a.Actions.RegisterMiddleware(action.Middleware{Name: "post", Global: true, Post: func(context.Context, *action.Data) error {
		return errors.New("post failed")
	}}))
	register(t, a, action.Definition{
		Name: "text",
		New: func() action.Action {
			return action.Func(func(context.Context, *action.Data) (any, error) { return "plain", nil })
		},
	})

	p, _ := call(a, "web", map[string]any{"action": "text"})
	assert.Equal(t, "post failed", p.Response)
}

func TestPanicReportsServerError(t *testing.T) {
	a := newAPI(t)
	events := make(chan alerting.Event, 1)
	a.Exceptions.Add(alerting.FuncNotifier{Name: "test", Fn: func(_ context.Context, e alerting.Event) error {
		events <- e
		return nil
	}})
	register(t, a, action.Definition{
		Name: "boom",
		New: func() action.Action {
			return action.Func(func(context.Context, *action.Data) (any, error) { panic("kaboom") })
		},
	})

	p, calls := call(a, "web", map[string]any{"action": "boom"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, xerrors.CodeServerError, p.Status)
	assert.Equal(t, "the server experienced an internal error", p.Response.(map[string]any)["error"])

	event := <-events
	assert.Equal(t, "boom", event.Action)
	assert.Equal(t, "kaboom", event.Message)
}

func TestBareErrorPassesThrough(t *testing.T) {
	a := newAPI(t)
	register(t, a, action.Definition{
		Name: "fail",
		New: func() action.Action {
			return action.Func(func(context.Context, *action.Data) (any, error) {
				return nil, fmt.Errorf("record %d not found", 7)
			})
		},
	})

	p, _ := call(a, "web", map[string]any{"action": "fail"})
	assert.Equal(t, xerrors.Code(""), p.Status)
	assert.Equal(t, map[string]any{"error": "record 7 not found"}, p.Response)
}

func TestDefaultsAndFormats(t *testing.T) {
	a := newAPI(t)
	register(t, a, action.Definition{
		Name: "page",
		Inputs: map[string]action.Input{
			"limit":  {Default: "10", Format: action.FormatInteger, Validator: "max=50"},
			"offset": {DefaultFunc: func(*action.Data) any { return 0 }, Format: action.FormatInteger},
			"sort":   {Check: func(v any, _ *action.Data) error {
				if v != "asc" && v != "desc" {
					return errors.New("must be asc or desc")
				}
				return nil
			}},
		},
		New: func() action.Action {
			return action.Func(func(_ context.Context, d *action.Data) (any, error) {
				return map[string]any{"limit": d.Params["limit"], "offset": d.Params["offset"]}, nil
			})
		},
	})

	p, _ := call(a, "web", map[string]any{"action": "page"})
	require.NoError(t, p.Err)
	assert.Equal(t, map[string]any{"limit": 10, "offset": 0}, p.Response)

	p, _ = call(a, "web", map[string]any{"action": "page", "limit": "abc", "sort": "up"})
	assert.Equal(t, xerrors.CodeValidatorErrors, p.Status)
	assert.Equal(t, map[string]string{
		"limit": `"abc" is not a number`,
		"sort":  "must be asc or desc",
	}, p.Response.(map[string]any)["error"])

	p, _ = call(a, "web", map[string]any{"action": "page", "limit": 80})
	assert.Equal(t, xerrors.CodeValidatorErrors, p.Status)
	assert.Equal(t, "must satisfy max=50", p.Response.(map[string]any)["error"].(map[string]string)["limit"])
}

func TestVersionSelection(t *testing.T) {
	a := newAPI(t)
	for _, v := range []int{1, 2} {
		version := v
		register(t, a, action.Definition{
			Name:    "ver",
			Version: version,
			New: func() action.Action {
				return action.Func(func(context.Context, *action.Data) (any, error) {
					return map[string]any{"version": version}, nil
				})
			},
		})
	}

	p, _ := call(a, "web", map[string]any{"action": "ver"})
	assert.Equal(t, map[string]any{"version": 2}, p.Response)

	p, _ = call(a, "web", map[string]any{"action": "ver", "apiVersion": "1"})
	assert.Equal(t, map[string]any{"version": 1}, p.Response)

	p, _ = call(a, "web", map[string]any{"action": "ver", "apiVersion": 3})
	assert.Equal(t, xerrors.CodeUnknownAction, p.Status)
}

func TestCompletionObservers(t *testing.T) {
	a := newAPI(t)
	register(t, a, echoDefinition(nil))
	var got []api.Completion
	a.OnCompletion(func(c api.Completion) { got = append(got, c) })

	call(a, "web", map[string]any{"action": "echo", "msg": "x"})
	call(a, "web", map[string]any{"action": "echo"})

	require.Len(t, got, 2)
	assert.Equal(t, "", got[0].Status)
	assert.Equal(t, string(xerrors.CodeValidatorErrors), got[1].Status)
	assert.Equal(t, "web", got[1].ConnectionType)
}

func TestFilterParams(t *testing.T) {
	out := filterParams(map[string]any{
		"password": "secret",
		"bio":      "abcdefghij",
		"n":        3,
	}, []string{"password"}, 4)

	assert.Equal(t, FilteredValue, out["password"])
	assert.Equal(t, "abcd...", out["bio"])
	assert.Equal(t, 3, out["n"])
}

func TestPostHookErrorReplacesSliceResponse(t *testing.T) {
	a := newAPI(t)
	require.NoError(t, a.Actions.RegisterMiddleware(action.Middleware{Name: "post", Global: true, Post: func(context.Context, *action.Data) error {
		return errors.New("post failed")
	}}))
	register(t, a, action.Definition{
		Name: "list",
		New: func() action.Action {
			return action.Func(func(context.Context, *action.Data) (any, error) { return []any{1, 2}, nil })
		},
	})

	p, _ := call(a, "web", map[string]any{"action": "list"})
	require.Error(t, p.Err)
	assert.Equal(t, "post failed", p.Response)
}

func TestRequiredInputsAcceptZeroValues(t *testing.T) {
	a := newAPI(t)
	var runs atomic.Int32
	register(t, a, action.Definition{
		Name: "page",
		Inputs: map[string]action.Input{
			"offset": {Required: true, Format: action.FormatInteger},
			"flag":   {Required: true},
			"name":   {Required: true},
		},
		New: func() action.Action {
			return action.Func(func(_ context.Context, d *action.Data) (any, error) {
				runs.Add(1)
				return map[string]any{"offset": d.Params["offset"], "flag": d.Params["flag"], "name": d.Params["name"]}, nil
			})
		},
	})

	p, _ := call(a, "web", map[string]any{"action": "page", "offset": "0", "flag": false, "name": ""})
	require.NoError(t, p.Err)
	assert.Equal(t, map[string]any{"offset": 0, "flag": false, "name": ""}, p.Response)

	p, _ = call(a, "web", map[string]any{"action": "page", "offset": 0, "flag": nil})
	assert.Equal(t, xerrors.CodeValidatorErrors, p.Status)
	assert.Equal(t, map[string]string{"flag": "is required", "name": "is required"}, p.Response.(map[string]any)["error"])
	assert.Equal(t, int32(1), runs.Load())
}

func TestRequiredInputStillChecksRule(t *testing.T) {
	a := newAPI(t)
	register(t, a, action.Definition{
		Name:   "named",
		Inputs: map[string]action.Input{"name": {Required: true, Validator: "min=1"}},
		New: func() action.Action {
			return action.Func(func(context.Context, *action.Data) (any, error) { return nil, nil })
		},
	})

	p, _ := call(a, "web", map[string]any{"action": "named", "name": ""})
	assert.Equal(t, xerrors.CodeValidatorErrors, p.Status)
	assert.Equal(t, map[string]string{"name": "must satisfy min=1"}, p.Response.(map[string]any)["error"])
}
