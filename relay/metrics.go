package relay

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	requests        *prometheus.CounterVec
	upstreamLatency prometheus.Histogram
	fetchBytes      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hermitcrab",
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Relay requests by route and status code.",
		}, []string{"route", "status"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hermitcrab",
			Subsystem: "relay",
			Name:      "upstream_duration_seconds",
			Help:      "Latency of completion requests forwarded upstream.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hermitcrab",
			Subsystem: "relay",
			Name:      "fetch_bytes_total",
			Help:      "Bytes read by /relay/fetch before truncation.",
		}),
	}
	reg.MustRegister(m.requests, m.upstreamLatency, m.fetchBytes)
	return m
}
