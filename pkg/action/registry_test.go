package action

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop() Action {
	return Func(func(context.Context, *Data) (any, error) { return nil, nil })
}

func TestResolveDefaultsToLatestRegisteredVersion(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{Name: "echo", Version: 2, New: noop}))
	require.NoError(t, r.Register(Definition{Name: "echo", Version: 1, New: noop}))

	def, ok := r.Resolve("echo", 0)
	require.True(t, ok)
	assert.Equal(t, 1, def.Version)

	def, ok = r.Resolve("echo", 2)
	require.True(t, ok)
	assert.Equal(t, 2, def.Version)

	_, ok = r.Resolve("echo", 3)
	assert.False(t, ok)
	_, ok = r.Resolve("missing", 0)
	assert.False(t, ok)
}

func TestRegisterReplacesSameVersion(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{Name: "echo", New: noop, Description: "old"}))
	require.NoError(t, r.Register(Definition{Name: "echo", New: noop, Description: "new"}))

	def, ok := r.Resolve("echo", 0)
	require.True(t, ok)
	assert.Equal(t, "new", def.Description)
	assert.Equal(t, []int{1}, r.Versions("echo"))
}

func TestRegisterRejectsUnknownMiddleware(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Definition{Name: "echo", New: noop, Middleware: []string{"auth"}})
	assert.True(t, errors.Is(err, ErrUnknownMiddleware))

	assert.Error(t, r.Register(Definition{Name: "echo"}))
	assert.Error(t, r.Register(Definition{New: noop}))
}

func TestChainOrdersGlobalByPriorityThenPerAction(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterMiddleware(Middleware{Name: "late", Global: true, Priority: 200}))
	require.NoError(t, r.RegisterMiddleware(Middleware{Name: "default", Global: true}))
	require.NoError(t, r.RegisterMiddleware(Middleware{Name: "early", Global: true, Priority: 10}))
	require.NoError(t, r.RegisterMiddleware(Middleware{Name: "local"}))
	require.NoError(t, r.Register(Definition{Name: "echo", New: noop, Middleware: []string{"local"}}))

	def, _ := r.Resolve("echo", 0)
	var names []string
	for _, m := range r.Chain(def) {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"early", "default", "late", "local"}, names)
}

func TestRegisterMiddlewareReplacesGlobalEntry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterMiddleware(Middleware{Name: "audit", Global: true}))
	require.NoError(t, r.RegisterMiddleware(Middleware{Name: "audit", Global: false}))

	def := &Definition{Name: "x"}
	assert.Empty(t, r.Chain(def))
}

func TestReplacedMiddlewareReachesRegisteredActions(t *testing.T) {
	r := NewRegistry()
	var ran string
	mark := func(name string) Hook {
		return func(context.Context, *Data) error { ran = name; return nil }
	}
	require.NoError(t, r.RegisterMiddleware(Middleware{Name: "m", Pre: mark("old")}))
	require.NoError(t, r.Register(Definition{Name: "echo", Middleware: []string{"m"}, New: noop}))

	def, ok := r.Resolve("echo", 0)
	require.True(t, ok)
	before := r.Chain(def)

	require.NoError(t, r.RegisterMiddleware(Middleware{Name: "m", Pre: mark("new")}))

	def, ok = r.Resolve("echo", 0)
	require.True(t, ok)
	chain := r.Chain(def)
	require.Len(t, chain, 1)
	require.NoError(t, chain[0].Pre(context.Background(), &Data{}))
	assert.Equal(t, "new", ran)

	require.Len(t, before, 1)
	require.NoError(t, before[0].Pre(context.Background(), &Data{}))
	assert.Equal(t, "old", ran)
}

func TestResetClearsEverything(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterMiddleware(Middleware{Name: "g", Global: true}))
	require.NoError(t, r.Register(Definition{Name: "echo", New: noop}))
	r.Reset()

	assert.Empty(t, r.Names())
	assert.Empty(t, r.Chain(&Definition{}))
}
