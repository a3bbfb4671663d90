package v1

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	identityBackendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_backend_calls_total",
			Help: "Calls made to the identity backend by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	sessionCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cache_lookups_total",
			Help: "Session state lookups by source: cache hit, miss, stale, corrupt, error or memory.",
		},
		[]string{"result"},
	)

	sessionAuthenticated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_authenticated",
			Help: "1 when the dashboard session is authenticated, 0 otherwise.",
		},
	)

	contentCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_cache_lookups_total",
			Help: "Content listing lookups by collection and result (hit, miss, error, superseded).",
		},
		[]string{"collection", "result"},
	)
)

func observeBackendCall(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	identityBackendCalls.WithLabelValues(operation, outcome).Inc()
}
