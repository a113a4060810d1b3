package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wagateway",
		Subsystem: "delivery",
		Name:      "jobs_enqueued_total",
		Help:      "Outbound messages accepted into the delivery queue.",
	})

	metricSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wagateway",
		Subsystem: "delivery",
		Name:      "jobs_sent_total",
		Help:      "Outbound messages delivered successfully.",
	})

	metricFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wagateway",
		Subsystem: "delivery",
		Name:      "jobs_failed_total",
		Help:      "Outbound messages that exhausted all delivery attempts.",
	})

	metricRetried = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wagateway",
		Subsystem: "delivery",
		Name:      "attempts_retried_total",
		Help:      "Individual delivery attempts that failed and were retried.",
	})
)
