// Package metrics defines and registers all custom Prometheus metrics for the
// authgate service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry at package
// init through promauto; the HTTP layer exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authgate"

// ── Authentication ────────────────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials" or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// TokenOutcomesTotal counts token inspections by diagnostic outcome.
// Label:
//   - outcome: "valid", "expired", "malformed" or "bad_signature"
var TokenOutcomesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_outcomes_total",
		Help:      "Total number of token inspections, by outcome.",
	},
	[]string{"outcome"},
)

// PasswordHashDuration measures how long a single hash takes at the
// configured work factor.
var PasswordHashDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "password_hash_duration_seconds",
		Help:      "Duration of password hashing at the configured cost.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	},
)

// ── Access control ────────────────────────────────────────────────────────────

// AuthDecisionsTotal counts middleware decisions.
// Label:
//   - decision: "authenticated", "authentication_required", "invalid_credential",
//     "authorized", "forbidden"
var AuthDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_decisions_total",
		Help:      "Total number of access control decisions, by decision.",
	},
	[]string{"decision"},
)

// EnforcementBypassTotal counts requests let through because enforcement is off.
var EnforcementBypassTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enforcement_bypass_total",
		Help:      "Total number of requests passed through with enforcement disabled.",
	},
)

// EnforcementCacheTotal counts toggle reads.
// Label:
//   - result: "hit", "miss", "fail_open"
var EnforcementCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enforcement_cache_total",
		Help:      "Total number of enforcement setting reads, by cache result.",
	},
	[]string{"result"},
)
