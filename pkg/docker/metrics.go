package docker

import (
	appmetrics "quotespeak/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	QueryTime *prometheus.HistogramVec
	Errors    *prometheus.CounterVec
}

var metrics = &Metrics{
	QueryTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "docker",
		Name:      "request_seconds",
		Buckets:   appmetrics.RequestSecondsBuckets,
	}, []string{"action"}),
	Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "docker",
		Name:      "errors_total",
	}, []string{"action", "err_code"}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.QueryTime)
	reg.MustRegister(metrics.Errors)
}
