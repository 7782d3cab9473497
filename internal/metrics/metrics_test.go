package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/edgevisor/internal/domain"
)

func TestListener_Transitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := New(reg)

	l.OnTransition(domain.Event{Service: "db", Old: domain.StateNew, New: domain.StateInstalled, Generation: 1})
	l.OnTransition(domain.Event{Service: "db", Old: domain.StateInstalled, New: domain.StateStarting, Generation: 2})
	l.OnTransition(domain.Event{Service: "db", Old: domain.StateStarting, New: domain.StateRunning, Generation: 2})

	assert.Equal(t, 1.0, testutil.ToFloat64(l.transitions.WithLabelValues("db", "STARTING", "RUNNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.state.WithLabelValues("db", "RUNNING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(l.state.WithLabelValues("db", "STARTING")))
	assert.Equal(t, 2.0, testutil.ToFloat64(l.generation.WithLabelValues("db")))
}

func TestListener_FailuresAndForced(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := New(reg)

	l.OnTransition(domain.Event{
		Service: "app",
		Old:     domain.StateRunning,
		New:     domain.StateErrored,
		Failure: &domain.Failure{Stage: domain.StageRun, Code: domain.StatusRunError},
	})
	l.OnTransition(domain.Event{
		Service: "app",
		Old:     domain.StateStopping,
		New:     domain.StateFinished,
		Forced:  true,
		Failure: &domain.Failure{Stage: domain.StageShutdown, Code: domain.StatusForcedShutdown},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(l.failures.WithLabelValues("app", "RUN_ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.forced.WithLabelValues("app")))

	l.Forget("app")
	assert.Zero(t, testutil.CollectAndCount(l.forced))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := New(reg)
	l.OnTransition(domain.Event{Service: "db", Old: domain.StateNew, New: domain.StateInstalled})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `edgevisor_service_transitions_total{from="NEW",service="db",to="INSTALLED"} 1`))
}
