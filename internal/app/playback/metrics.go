package playback

import (
	appmetrics "quotespeak/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Requests *prometheus.CounterVec
	Pending  *prometheus.GaugeVec
	WaitTime prometheus.Histogram
}

var metrics = &Metrics{
	Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "playback",
		Name:      "requests_total",
	}, []string{"result"}),
	Pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "playback",
		Name:      "pending",
	}, []string{"tenant"}),
	WaitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
		Subsystem: "playback",
		Name:      "wait_seconds",
		Buckets:   appmetrics.RequestSecondsBuckets,
	}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.Requests)
	reg.MustRegister(metrics.Pending)
	reg.MustRegister(metrics.WaitTime)
}
