// Package metrics exposes the gateway's Prometheus collectors. All
// collectors register on the default registry; promhttp serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes recorded by RecordRequest.
const (
	OutcomeSuccess  = "success"
	OutcomeFailOpen = "fail_open"
	OutcomeError    = "error"
	OutcomeDenied   = "budget_denied"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_requests_total",
			Help: "Total number of chat completion requests by outcome",
		},
		[]string{"outcome"},
	)

	routingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_routing_decisions_total",
			Help: "Total number of routing decisions by tier",
		},
		[]string{"tier"},
	)

	economyDowngrades = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arbiter_economy_downgrades_total",
			Help: "Total number of smart-to-fast downgrades under a low budget",
		},
	)

	attemptFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_attempt_failures_total",
			Help: "Total number of failed invocation attempts by provider and error kind",
		},
		[]string{"provider", "kind"},
	)

	failOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_fail_open_total",
			Help: "Total number of fail-open fallback invocations by result",
		},
		[]string{"result"},
	)

	breakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arbiter_breaker_open",
			Help: "Whether the provider circuit breaker is open (1) or closed (0)",
		},
		[]string{"provider"},
	)

	tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_tokens_total",
			Help: "Total number of tokens billed",
		},
		[]string{"model", "type"},
	)

	spendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_spend_dollars_total",
			Help: "Total dollars charged against user budgets",
		},
		[]string{"model"},
	)
)

// RecordRequest counts one finished chat completion request.
func RecordRequest(outcome string) {
	requestsTotal.WithLabelValues(outcome).Inc()
}

// RecordRoutingDecision counts a routed request against its final tier.
func RecordRoutingDecision(tier string) {
	routingDecisions.WithLabelValues(tier).Inc()
}

// RecordEconomyDowngrade counts a smart-to-fast budget downgrade.
func RecordEconomyDowngrade() {
	economyDowngrades.Inc()
}

// RecordAttemptFailure counts one failed invocation attempt.
func RecordAttemptFailure(provider, kind string) {
	attemptFailures.WithLabelValues(provider, kind).Inc()
}

// RecordFailOpen counts a fallback invocation and its result.
func RecordFailOpen(succeeded bool) {
	result := "success"
	if !succeeded {
		result = "error"
	}
	failOpenTotal.WithLabelValues(result).Inc()
}

// SetBreakerOpen publishes a provider breaker state change.
func SetBreakerOpen(provider string, open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	breakerOpen.WithLabelValues(provider).Set(value)
}

// RecordUsage counts billed tokens and spend for a completed request.
func RecordUsage(model string, promptTokens, completionTokens int, cost float64) {
	tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	spendTotal.WithLabelValues(model).Add(cost)
}
