package satellites

import (
	"context"
	"log/slog"

	"github.com/gil0mendes/Stellar/internal/web"
	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/satellite"
)

// Web serves actions over HTTP when web.enabled is set. It stops first so
// no new calls arrive while the rest of the node shuts down.
type Web struct {
	server *web.Server
}

func (*Web) Name() string { return "web" }

func (*Web) Priorities() satellite.Priorities {
	return satellite.Priorities{Start: 300, Stop: 50}
}

func (w *Web) Start(_ context.Context, a *api.API) error {
	cfg := a.Config().Web
	if !cfg.Enabled {
		return nil
	}
	var recorder *Registry
	if r, err := api.Resource[*Registry](a, ResourceMetrics); err == nil {
		recorder = r
	}
	server, err := web.Start(cfg.Address, web.NewRouter(a, recorder.metrics()))
	if err != nil {
		return err
	}
	w.server = server
	a.Set(ResourceWeb, server)
	a.Logger("web").Info("web server listening", slog.String("address", server.Addr()))
	return nil
}

func (w *Web) Stop(ctx context.Context, a *api.API) error {
	if w.server == nil {
		return nil
	}
	a.Set(ResourceWeb, nil)
	err := w.server.Shutdown(ctx)
	w.server = nil
	return err
}
