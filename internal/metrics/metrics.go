// Package metrics exports service transitions as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/events"
)

const namespace = "edgevisor"

// Listener updates metrics from the event bus.
type Listener struct {
	transitions *prometheus.CounterVec
	state       *prometheus.GaugeVec
	failures    *prometheus.CounterVec
	forced      *prometheus.CounterVec
	generation  *prometheus.GaugeVec
}

// New registers the edgevisor metrics with reg.
func New(reg prometheus.Registerer) *Listener {
	f := promauto.With(reg)
	return &Listener{
		// transitions tracks every committed state change
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_transitions_total",
			Help:      "Total service state transitions by service and target state",
		}, []string{"service", "from", "to"}),

		// state is 1 for the current state of each service, 0 otherwise
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_state",
			Help:      "Current service state, one series per state",
		}, []string{"service", "state"}),

		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_failures_total",
			Help:      "Total stage failures by service and status code",
		}, []string{"service", "code"}),

		forced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_forced_shutdowns_total",
			Help:      "Total services forced to FINISHED at a shutdown deadline",
		}, []string{"service"}),

		generation: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_generation",
			Help:      "Current state generation of each service",
		}, []string{"service"}),
	}
}

// OnTransition implements events.Listener.
func (l *Listener) OnTransition(ev domain.Event) {
	l.transitions.WithLabelValues(ev.Service, ev.Old.String(), ev.New.String()).Inc()
	for _, st := range domain.AllStates {
		v := 0.0
		if st == ev.New {
			v = 1
		}
		l.state.WithLabelValues(ev.Service, st.String()).Set(v)
	}
	l.generation.WithLabelValues(ev.Service).Set(float64(ev.Generation))
	if ev.Failure != nil {
		l.failures.WithLabelValues(ev.Service, string(ev.Failure.Code)).Inc()
	}
	if ev.Forced {
		l.forced.WithLabelValues(ev.Service).Inc()
	}
}

// Forget drops the series of a removed service.
func (l *Listener) Forget(service string) {
	labels := prometheus.Labels{"service": service}
	l.transitions.DeletePartialMatch(labels)
	l.state.DeletePartialMatch(labels)
	l.failures.DeletePartialMatch(labels)
	l.forced.DeletePartialMatch(labels)
	l.generation.DeletePartialMatch(labels)
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ events.Listener = (*Listener)(nil)
