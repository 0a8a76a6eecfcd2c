package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var bridgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_bridge_requests",
	Help: "Number of platform bridge requests, by operation and HTTP status",
}, []string{"op", "status"})

var bridgeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "automod_bridge_request_duration_sec",
	Help: "Duration of platform bridge requests",
}, []string{"op"})
