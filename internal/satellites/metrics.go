package satellites

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gil0mendes/Stellar/internal/observability/metrics"
	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/satellite"
)

// Metrics records action completions and reported exceptions, and serves
// them on metrics.address when metrics.enabled is set.
type Metrics struct {
	registry *prometheus.Registry
	server   *metrics.Server
}

func (*Metrics) Name() string { return "metrics" }

func (*Metrics) Priorities() satellite.Priorities {
	return satellite.Priorities{Load: 50, Stop: 950}
}

// Load registers the collectors once per shared context; later discovery
// passes reuse them.
func (m *Metrics) Load(_ context.Context, a *api.API) error {
	if existing, err := api.Resource[*Registry](a, ResourceMetrics); err == nil {
		m.registry = existing.Gatherer
		return nil
	}
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(m.registry)
	a.OnCompletion(recorder.ObserveCompletion)
	a.Exceptions.Add(recorder.Notifier())
	a.Set(ResourceMetrics, &Registry{Metrics: recorder, Gatherer: m.registry})
	return nil
}

func (m *Metrics) Start(_ context.Context, a *api.API) error {
	cfg := a.Config().Metrics
	if !cfg.Enabled {
		return nil
	}
	server, err := metrics.StartServer(cfg.Address, m.registry)
	if err != nil {
		return err
	}
	m.server = server
	a.Logger("metrics").Info("metrics endpoint listening", slog.String("address", cfg.Address))
	return nil
}

func (m *Metrics) Stop(ctx context.Context, _ *api.API) error {
	if m.server == nil {
		return nil
	}
	err := m.server.Shutdown(ctx)
	m.server = nil
	return err
}

// Registry is the resource published under "metrics".
type Registry struct {
	Metrics  *metrics.Metrics
	Gatherer *prometheus.Registry
}

func (r *Registry) metrics() *metrics.Metrics {
	if r == nil {
		return nil
	}
	return r.Metrics
}
