package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var consumerRecords = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_consumer_records",
	Help: "Number of records read from the message topic, by result",
}, []string{"result"})
