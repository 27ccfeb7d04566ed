package ttsquest

import (
	appmetrics "quotespeak/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	QueryTime *prometheus.HistogramVec
	Errors    *prometheus.CounterVec
	Points    prometheus.Gauge
}

var metrics = &Metrics{
	QueryTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "ttsquest",
		Name:      "request_seconds",
		Buckets:   appmetrics.RequestSecondsBuckets,
	}, []string{"op"}),
	Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "ttsquest",
		Name:      "errors_total",
	}, []string{"op", "err_code"}),
	Points: prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "ttsquest",
		Name:      "points",
	}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.QueryTime)
	reg.MustRegister(metrics.Errors)
	reg.MustRegister(metrics.Points)
}
