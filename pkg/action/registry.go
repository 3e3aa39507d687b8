package action

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownMiddleware is returned when a definition names middleware that
// has not been registered.
var ErrUnknownMiddleware = errors.New("unknown middleware")

// Registry holds versioned action definitions and the middleware they use.
type Registry struct {
	mu         sync.RWMutex
	actions    map[string]map[int]*Definition
	versions   map[string][]int
	middleware map[string]*Middleware
	global     []*Middleware
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		actions:    make(map[string]map[int]*Definition),
		versions:   make(map[string][]int),
		middleware: make(map[string]*Middleware),
	}
}

// RegisterMiddleware adds or replaces a middleware.
func (r *Registry) RegisterMiddleware(m Middleware) error {
	if m.Name == "" {
		return errors.New("middleware name is required")
	}
	if m.Priority == 0 {
		m.Priority = DefaultMiddlewarePriority
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &m
	r.middleware[m.Name] = entry
	r.repoint(entry)

	global := make([]*Middleware, 0, len(r.global)+1)
	for _, g := range r.global {
		if g.Name != m.Name {
			global = append(global, g)
		}
	}
	if m.Global {
		global = append(global, entry)
	}
	sort.SliceStable(global, func(i, j int) bool { return global[i].Priority < global[j].Priority })
	r.global = global
	return nil
}

// repoint swaps a replaced middleware into the definitions that already
// resolved it. Slices are copied so chains built earlier stay intact.
func (r *Registry) repoint(entry *Middleware) {
	for _, byVersion := range r.actions {
		for _, def := range byVersion {
			for i, m := range def.middleware {
				if m.Name != entry.Name {
					continue
				}
				resolved := append([]*Middleware(nil), def.middleware...)
				resolved[i] = entry
				def.middleware = resolved
				break
			}
		}
	}
}

// Register adds a definition. Registering the same name and version again
// replaces the previous definition. Version 0 is stored as version 1.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return errors.New("action name is required")
	}
	if def.New == nil {
		return fmt.Errorf("action %s: constructor is required", def.Name)
	}
	if def.Version <= 0 {
		def.Version = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	resolved := make([]*Middleware, 0, len(def.Middleware))
	for _, name := range def.Middleware {
		m, ok := r.middleware[name]
		if !ok {
			return fmt.Errorf("action %s: %w %q", def.Name, ErrUnknownMiddleware, name)
		}
		resolved = append(resolved, m)
	}
	def.middleware = resolved

	byVersion, ok := r.actions[def.Name]
	if !ok {
		byVersion = make(map[int]*Definition)
		r.actions[def.Name] = byVersion
	}
	if _, exists := byVersion[def.Version]; exists {
		r.versions[def.Name] = removeVersion(r.versions[def.Name], def.Version)
	}
	byVersion[def.Version] = &def
	r.versions[def.Name] = append(r.versions[def.Name], def.Version)
	return nil
}

func removeVersion(list []int, version int) []int {
	out := list[:0:0]
	for _, v := range list {
		if v != version {
			out = append(out, v)
		}
	}
	return out
}

// Resolve looks up an action. Version 0 selects the most recently
// registered version.
func (r *Registry) Resolve(name string, version int) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byVersion, ok := r.actions[name]
	if !ok {
		return nil, false
	}
	if version <= 0 {
		versions := r.versions[name]
		if len(versions) == 0 {
			return nil, false
		}
		version = versions[len(versions)-1]
	}
	def, ok := byVersion[version]
	return def, ok
}

// Chain returns the middleware for one invocation of def: the global
// middleware followed by the per-action middleware.
func (r *Registry) Chain(def *Definition) []*Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := make([]*Middleware, 0, len(r.global)+len(def.middleware))
	chain = append(chain, r.global...)
	return append(chain, def.middleware...)
}

// Versions returns the registered versions of an action in registration order.
func (r *Registry) Versions(name string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int(nil), r.versions[name]...)
}

// Names returns the registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset drops every action and middleware.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = make(map[string]map[int]*Definition)
	r.versions = make(map[string][]int)
	r.middleware = make(map[string]*Middleware)
	r.global = nil
}
