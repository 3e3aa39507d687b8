// Package satellite defines the capability modules the engine drives through
// its load, start and stop stages, and how they are discovered on disk.
package satellite

import (
	"context"

	"github.com/gil0mendes/Stellar/pkg/api"
)

// DefaultPriority applies to every priority left at zero.
const DefaultPriority = 100

// Satellite is a capability module. Each lifecycle hook is optional and
// provided by implementing Loader, Starter or Stopper.
type Satellite interface {
	Name() string
}

// Loader is run once per discovery pass, in the load stage.
type Loader interface {
	Load(ctx context.Context, a *api.API) error
}

// Starter is run on every start and restart.
type Starter interface {
	Start(ctx context.Context, a *api.API) error
}

// Stopper is run on every stop.
type Stopper interface {
	Stop(ctx context.Context, a *api.API) error
}

// Priorities orders the hooks of a satellite; lower runs first.
type Priorities struct {
	Load  int
	Start int
	Stop  int
}

// Prioritized lets a satellite choose its priorities.
type Prioritized interface {
	Priorities() Priorities
}

// PrioritiesOf returns the normalised priorities of s.
func PrioritiesOf(s Satellite) Priorities {
	var p Priorities
	if pr, ok := s.(Prioritized); ok {
		p = pr.Priorities()
	}
	if p.Load <= 0 {
		p.Load = DefaultPriority
	}
	if p.Start <= 0 {
		p.Start = DefaultPriority
	}
	if p.Stop <= 0 {
		p.Stop = DefaultPriority
	}
	return p
}

// Factory builds a fresh satellite for a discovery pass.
type Factory func() Satellite
