package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "github.com/gil0mendes/Stellar/internal/errors"
	"github.com/gil0mendes/Stellar/internal/observability/alerting"
	"github.com/gil0mendes/Stellar/pkg/api"
)

func TestObserveCompletionLabelsStatus(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCompletion(api.Completion{Action: "echo", ConnectionType: "web", Duration: 10 * time.Millisecond})
	m.ObserveCompletion(api.Completion{Action: "echo", ConnectionType: "web", Status: "RESPONSE_TIMEOUT"})
	m.ObserveCompletion(api.Completion{Action: "echo", ConnectionType: "web"})

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActionsTotal.WithLabelValues("echo", StatusOK, "web")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActionsTotal.WithLabelValues("echo", "RESPONSE_TIMEOUT", "web")))
}

func TestNotifierCountsExceptions(t *testing.T) {
	m := New(prometheus.NewRegistry())
	fanout := alerting.NewFanout(m.Notifier())

	event := alerting.NewEvent("pipeline", xerrors.New(xerrors.CodeServerError, "boom"))
	require.NoError(t, fanout.Notify(context.Background(), event))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExceptionsTotal.WithLabelValues("pipeline", "SERVER_ERROR")))
	assert.Equal(t, []alerting.Channel{ChannelMetrics}, fanout.Channels())
}

func TestHandlerExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveHTTPRequest("/api/{action}", http.MethodGet, http.StatusOK, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `stellar_http_requests_total{code="200",handler="/api/{action}",method="GET"} 1`)
	assert.Contains(t, string(body), "stellar_http_request_duration_seconds_count")
}

func TestStartServerRequiresAddress(t *testing.T) {
	_, err := StartServer("", prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestServerShutdown(t *testing.T) {
	s, err := StartServer("127.0.0.1:0", prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = s.Shutdown(ctx)
	assert.True(t, err == nil || errors.Is(err, http.ErrServerClosed))
}

func TestNilMetricsIgnoresObservations(t *testing.T) {
	var m *Metrics
	m.ObserveCompletion(api.Completion{Action: "echo"})
	m.ObserveHTTPRequest("/", http.MethodGet, 200, time.Millisecond)
}
