package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	dispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mobiletracking",
			Subsystem: "queue",
			Name:      "dispatched_total",
			Help:      "Total number of requests handed to the transport",
		},
		[]string{"queue"},
	)

	completedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mobiletracking",
			Subsystem: "queue",
			Name:      "completed_total",
			Help:      "Total number of dispatched requests that finished, by outcome",
		},
		[]string{"queue", "outcome"},
	)

	backlogGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mobiletracking",
			Subsystem: "queue",
			Name:      "backlog",
			Help:      "Requests waiting to be dispatched",
		},
		[]string{"queue"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mobiletracking",
			Subsystem: "queue",
			Name:      "request_duration_seconds",
			Help:      "Time from dispatch to transport result",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"queue", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(dispatchedTotal, completedTotal, backlogGauge, requestDuration)
}

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)
