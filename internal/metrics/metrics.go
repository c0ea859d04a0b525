package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sportscouncil/tournament-gateway/internal/auth"
)

// AuthMetrics counts authentication decisions by operation and reason.
type AuthMetrics struct {
	decisions *prometheus.CounterVec
}

func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	f := promauto.With(reg)
	return &AuthMetrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tournament",
			Subsystem: "auth",
			Name:      "decisions_total",
			Help:      "Login and token checks by operation and outcome reason.",
		}, []string{"op", "reason"}),
	}
}

func (m *AuthMetrics) Observe(_ context.Context, ev auth.Event) {
	m.decisions.WithLabelValues(ev.Op, auth.Reason(ev.Reason)).Inc()
}

// Decisions exposes the counter for tests and dashboards.
func (m *AuthMetrics) Decisions() *prometheus.CounterVec {
	return m.decisions
}

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
