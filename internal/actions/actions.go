// Package actions holds the actions every Stellar node ships with.
package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/gil0mendes/Stellar/internal/cache"
	"github.com/gil0mendes/Stellar/internal/task"
	"github.com/gil0mendes/Stellar/pkg/action"
	"github.com/gil0mendes/Stellar/pkg/api"
)

// Resource names the actions look up on the API.
const (
	ResourceCache = "cache"
	ResourceTasks = "tasks"
)

// Register installs the builtin middleware and actions on a.
func Register(a *api.API) error {
	for _, m := range Middleware(a) {
		if err := a.Actions.RegisterMiddleware(m); err != nil {
			return err
		}
	}
	for _, def := range Definitions(a) {
		if err := a.Actions.Register(def); err != nil {
			return fmt.Errorf("register action %s: %w", def.Name, err)
		}
	}
	return nil
}

// Middleware returns the builtin middleware.
func Middleware(a *api.API) []action.Middleware {
	return []action.Middleware{
		requireResource(a, ResourceCache),
		requireResource(a, ResourceTasks),
	}
}

// requireResource aborts the call when the named resource is not published,
// e.g. the cache satellite is not running.
func requireResource(a *api.API, name string) action.Middleware {
	return action.Middleware{
		Name: "require." + name,
		Pre: func(context.Context, *action.Data) error {
			if _, ok := a.Get(name); !ok {
				return fmt.Errorf("%s is not available", name)
			}
			return nil
		},
	}
}

// Definitions returns the builtin actions bound to a.
func Definitions(a *api.API) []action.Definition {
	return []action.Definition{
		{
			Name:        "echo",
			Description: "Returns the received message.",
			Inputs: map[string]action.Input{
				"msg": {Required: true, Format: action.FormatString},
			},
			New: func() action.Action { return action.Func(echo) },
		},
		{
			Name:        "status",
			Description: "Reports the node identity, run state, uptime and restart count.",
			LogLevel:    "debug",
			New:         func() action.Action { return statusAction{api: a} },
		},
		{
			Name:        "cache.save",
			Description: "Stores a value in the cache.",
			Middleware:  []string{"require." + ResourceCache},
			Inputs: map[string]action.Input{
				"key":   {Required: true, Format: action.FormatString},
				"value": {Required: true},
				"ttl":   {Format: action.FormatInteger, Validator: "gte=0", Default: 0},
			},
			New: func() action.Action { return cacheAction{api: a, op: cacheSave} },
		},
		{
			Name:        "cache.load",
			Description: "Loads a value from the cache.",
			Middleware:  []string{"require." + ResourceCache},
			Inputs: map[string]action.Input{
				"key": {Required: true, Format: action.FormatString},
			},
			New: func() action.Action { return cacheAction{api: a, op: cacheLoad} },
		},
		{
			Name:        "cache.destroy",
			Description: "Removes a value from the cache.",
			Middleware:  []string{"require." + ResourceCache},
			Inputs: map[string]action.Input{
				"key": {Required: true, Format: action.FormatString},
			},
			New: func() action.Action { return cacheAction{api: a, op: cacheDestroy} },
		},
		{
			Name:        "tasks.enqueue",
			Description: "Queues an action invocation for background execution.",
			Middleware:  []string{"require." + ResourceTasks},
			Inputs: map[string]action.Input{
				"task": {Required: true, Format: action.FormatString},
				"args": {Check: isObject},
			},
			New: func() action.Action { return tasksAction{api: a, op: tasksEnqueue} },
		},
		{
			Name:        "tasks.get",
			Description: "Returns the state of a queued task.",
			Middleware:  []string{"require." + ResourceTasks},
			Inputs: map[string]action.Input{
				"id": {Required: true, Format: action.FormatString},
			},
			New: func() action.Action { return tasksAction{api: a, op: tasksGet} },
		},
	}
}

func echo(_ context.Context, data *action.Data) (any, error) {
	return map[string]any{"msg": data.Params["msg"]}, nil
}

type statusAction struct {
	api *api.API
}

func (s statusAction) Run(context.Context, *action.Data) (any, error) {
	uptime := time.Duration(0)
	if boot := s.api.BootTime(); !boot.IsZero() {
		uptime = time.Since(boot)
	}
	hostname, _ := s.api.Get("hostname")
	return map[string]any{
		"id":       s.api.ID,
		"status":   string(s.api.Status()),
		"uptime":   uptime.Milliseconds(),
		"restarts": s.api.Restarts(),
		"hostname": hostname,
		"actions":  s.api.Actions.Names(),
	}, nil
}

type cacheOp int

const (
	cacheSave cacheOp = iota
	cacheLoad
	cacheDestroy
)

type cacheAction struct {
	api *api.API
	op  cacheOp
}

func (c cacheAction) Run(ctx context.Context, data *action.Data) (any, error) {
	store, err := api.Resource[cache.Store](c.api, ResourceCache)
	if err != nil {
		return nil, err
	}
	key := data.Params["key"].(string)
	switch c.op {
	case cacheSave:
		ttl := time.Duration(data.Params["ttl"].(int)) * time.Millisecond
		if ttl == 0 {
			ttl = c.api.Config().Cache.DefaultTTL
		}
		if err := store.Save(ctx, key, data.Params["value"], ttl); err != nil {
			return nil, err
		}
		return map[string]any{"saved": true}, nil
	case cacheLoad:
		var value any
		if err := store.Load(ctx, key, &value); err != nil {
			return nil, err
		}
		return map[string]any{"key": key, "value": value}, nil
	default:
		existed, err := store.Destroy(ctx, key)
		if err != nil {
			return nil, err
		}
		return map[string]any{"destroyed": existed}, nil
	}
}

type tasksOp int

const (
	tasksEnqueue tasksOp = iota
	tasksGet
)

type tasksAction struct {
	api *api.API
	op  tasksOp
}

func (t tasksAction) Run(ctx context.Context, data *action.Data) (any, error) {
	service, err := api.Resource[*task.Service](t.api, ResourceTasks)
	if err != nil {
		return nil, err
	}
	if t.op == tasksGet {
		return service.Get(ctx, data.Params["id"].(string))
	}
	args, _ := data.Params["args"].(map[string]any)
	return service.Enqueue(ctx, data.Params["task"].(string), args)
}

func isObject(value any, _ *action.Data) error {
	if _, ok := value.(map[string]any); !ok {
		return fmt.Errorf("must be an object")
	}
	return nil
}
