// Package satellites provides the satellites every Stellar node boots with:
// the pid file, the builtin actions, the shared redis and MySQL clients, the
// cache, the background task queue, the metrics endpoint and the HTTP
// transport.
package satellites

import (
	"github.com/gil0mendes/Stellar/internal/actions"
	"github.com/gil0mendes/Stellar/pkg/satellite"
)

// Names of the resources published on the shared context.
const (
	ResourcePid     = "pid"
	ResourceRedis   = "redis"
	ResourceDB      = "db"
	ResourceCache   = actions.ResourceCache
	ResourceTasks   = actions.ResourceTasks
	ResourceMetrics = "metrics"
	ResourceWeb     = "web"
)

// Builtins returns the factories of the builtin satellites.
func Builtins() []satellite.Factory {
	return []satellite.Factory{
		func() satellite.Satellite { return &Pid{} },
		func() satellite.Satellite { return &Actions{} },
		func() satellite.Satellite { return &Redis{} },
		func() satellite.Satellite { return &Database{} },
		func() satellite.Satellite { return &Cache{} },
		func() satellite.Satellite { return &Tasks{} },
		func() satellite.Satellite { return &Metrics{} },
		func() satellite.Satellite { return &Web{} },
	}
}
