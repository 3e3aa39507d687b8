package action

import "context"

// Hook is a middleware step. A non-nil error aborts the invocation.
type Hook func(ctx context.Context, data *Data) error

// Middleware is a named pair of hooks run around an action. Global
// middleware wraps every action, ordered by ascending Priority.
type Middleware struct {
	Name     string
	Priority int
	Global   bool
	Pre      Hook
	Post     Hook
}

// DefaultMiddlewarePriority applies when Priority is zero.
const DefaultMiddlewarePriority = 100
