package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	xerrors "github.com/gil0mendes/Stellar/internal/errors"
	"github.com/gil0mendes/Stellar/internal/observability/metrics"
	"github.com/gil0mendes/Stellar/pkg/action"
	"github.com/gil0mendes/Stellar/pkg/api"
	"github.com/gil0mendes/Stellar/pkg/logger"
	"github.com/gil0mendes/Stellar/pkg/pipeline"
)

// ConnectionType is the type of every connection built by this transport.
const ConnectionType = "web"

const maxBodyBytes = 1 << 20

// NewRouter builds the chi router. m may be nil.
func NewRouter(a *api.API, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observe(m))
	r.Use(middleware.Recoverer)

	h := &handler{api: a}
	r.Get("/api/{action}", h.serve)
	r.Post("/api/{action}", h.serve)
	return r
}

type handler struct {
	api *api.API
}

func (h *handler) serve(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	params[pipeline.ParamAction] = chi.URLParam(r, "action")

	conn := action.NewConnection(ConnectionType, remoteIP(r))
	conn.Params = params
	conn.ReceiveMessage()

	p := pipeline.Run(r.Context(), h.api, conn)
	writeJSON(w, StatusCode(p), p.Response)
}

// requestParams merges the query string with a JSON object body. Body
// fields win over query values.
func requestParams(r *http.Request) (map[string]any, error) {
	params := make(map[string]any)
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			params[key] = values[0]
		} else {
			params[key] = values
		}
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return params, nil
	}

	var body map[string]any
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body)
	switch {
	case errors.Is(err, io.EOF):
		return params, nil
	case err != nil:
		return nil, errors.New("request body must be a JSON object")
	}
	for key, value := range body {
		params[key] = value
	}
	return params, nil
}

// StatusCode maps the outcome of a processor to an HTTP status.
func StatusCode(p *pipeline.Processor) int {
	if p.Err == nil {
		return http.StatusOK
	}
	code := p.Status
	if code == "" {
		code = xerrors.CodeOf(p.Err)
	}
	switch code {
	case xerrors.CodeUnknownAction:
		return http.StatusNotFound
	case xerrors.CodeValidatorErrors:
		return http.StatusUnprocessableEntity
	case xerrors.CodePrivateAction, xerrors.CodeUnsupportedServerType:
		return http.StatusForbidden
	case xerrors.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case xerrors.CodeServerShuttingDown:
		return http.StatusServiceUnavailable
	case xerrors.CodeResponseTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Named("web").Warn("encode response", slog.Any("error", err))
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func observe(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveHTTPRequest(route, r.Method, status, time.Since(start))
			logger.Named("web").Debug("request served",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Server runs the router on an address.
type Server struct {
	srv  *http.Server
	addr net.Addr
	errs chan error
}

// Start listens on addr in the background.
func Start(addr string, handler http.Handler) (*Server, error) {
	if addr == "" {
		return nil, errors.New("web address is empty")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv:  &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		addr: ln.Addr(),
		errs: make(chan error, 1),
	}
	go func() {
		defer close(s.errs)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.addr.String()
}

// Shutdown drains in-flight requests and stops the server.
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
