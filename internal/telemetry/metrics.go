package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider state-machine and token/userinfo/introspection call metrics,
// following internal/auth/metrics.go's promauto registration pattern.
var (
	// ProviderStateTransitions counts provider state-machine transitions.
	// Labels: provider (id), state (fetching_config|fetching_keys|ready|config_failed|keys_failed).
	ProviderStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oidcrp_provider_state_transitions_total",
			Help: "Total provider state-machine transitions, by resulting state.",
		},
		[]string{"provider", "state"},
	)

	// JWKSRefreshTotal counts JWKS refresh attempts by outcome.
	JWKSRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oidcrp_jwks_refresh_total",
			Help: "Total JWKS refresh attempts, by outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// TokenRequestDuration measures token-endpoint call latency.
	TokenRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oidcrp_token_request_duration_seconds",
			Help:    "Duration of token endpoint calls (exchange, refresh, introspect).",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "operation"},
	)

	// UserInfoRequestDuration measures userinfo endpoint call latency.
	UserInfoRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oidcrp_userinfo_request_duration_seconds",
			Help:    "Duration of userinfo endpoint calls.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"provider"},
	)

	// ValidationOutcomes counts ID token validation results by error kind
	// ("" for success).
	ValidationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oidcrp_id_token_validation_total",
			Help: "Total ID token validation attempts, by outcome kind.",
		},
		[]string{"provider", "kind"},
	)
)
