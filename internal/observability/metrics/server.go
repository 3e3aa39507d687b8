package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Server is a standalone HTTP server exposing /metrics.
type Server struct {
	srv  *http.Server
	errs chan error
}

// StartServer starts listening on addr in the background.
func StartServer(addr string, g prometheus.Gatherer) (*Server, error) {
	if addr == "" {
		return nil, errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	s := &Server{
		srv:  &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		errs: make(chan error, 1),
	}
	go func() {
		defer close(s.errs)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
	}()
	return s, nil
}

// Shutdown stops the server and returns any listen error it hit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	shutdownErr := s.srv.Shutdown(ctx)
	if err, ok := <-s.errs; ok && err != nil {
		return err
	}
	return shutdownErr
}
