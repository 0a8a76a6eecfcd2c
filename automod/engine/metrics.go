package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messageProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "automod_message_duration_sec",
	Help: "Total duration of automod message processing",
})

var messageProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_messages_processed",
	Help: "Number of messages processed, by terminal state",
}, []string{"state"})

var messageErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_message_errors",
	Help: "Number of messages which failed some part of processing",
}, []string{"type"})

var violationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_violations",
	Help: "Number of triggered filters, by kind",
}, []string{"kind"})

var filterErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_filter_errors",
	Help: "Number of filter evaluations which failed (errored or panicked)",
})

var trackerSize = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_tracker_entries",
	Help: "Number of (group, author) pairs held by the behavior tracker",
})

var queuedMessages = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_queued_messages",
	Help: "Number of messages waiting in per-author queues",
})
