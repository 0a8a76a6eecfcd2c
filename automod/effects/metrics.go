package effects

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_action_results",
	Help: "Number of moderation action steps, by step and outcome",
}, []string{"step", "outcome"})

var ledgerFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_ledger_write_failures",
	Help: "Number of violation records which could not be persisted after retries",
})

var sanctionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_sanctions_applied",
	Help: "Number of mutes and bans applied",
}, []string{"kind"})

var circuitBreaks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_sanction_circuit_breaks",
	Help: "Number of sanctions skipped by the per-group circuit breaker",
}, []string{"kind"})
