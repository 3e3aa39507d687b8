package action

import (
	"context"
	"time"
)

// Action is the unit of request handling logic. Run returns the response
// payload; a nil payload becomes an empty response object.
type Action interface {
	Run(ctx context.Context, data *Data) (any, error)
}

// Func adapts a function to Action.
type Func func(ctx context.Context, data *Data) (any, error)

// Run implements Action.
func (f Func) Run(ctx context.Context, data *Data) (any, error) {
	return f(ctx, data)
}

// Data is the per-invocation state shared by the action body and the
// middleware hooks.
type Data struct {
	ActionName string
	Version    int
	Params     map[string]any
	Connection *Connection
	Definition *Definition
	// Response may be replaced by the action body or by post hooks.
	Response any
}

// Param returns the parameter stored under key.
func (d *Data) Param(key string) (any, bool) {
	if d == nil || d.Params == nil {
		return nil, false
	}
	v, ok := d.Params[key]
	return v, ok
}

// Definition is the metadata an action is registered with.
type Definition struct {
	Name        string
	Version     int
	Description string
	Inputs      map[string]Input
	// Middleware names the per-action hooks, run after the global ones.
	Middleware             []string
	Private                bool
	BlockedConnectionTypes []string
	// LogLevel of the completion line; "none" suppresses it.
	LogLevel string
	// Timeout overrides general.actionTimeout when positive.
	Timeout time.Duration
	// New builds a fresh Action for every invocation.
	New func() Action

	middleware []*Middleware
}

// Blocks reports whether the action refuses connections of the given type.
func (d *Definition) Blocks(connType string) bool {
	for _, blocked := range d.BlockedConnectionTypes {
		if blocked == connType {
			return true
		}
	}
	return false
}
