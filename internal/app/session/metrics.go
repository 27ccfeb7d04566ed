package session

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Sessions prometheus.Gauge
	Joins    *prometheus.CounterVec
	Speech   *prometheus.CounterVec
}

var metrics = &Metrics{
	Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "session",
		Name:      "active",
	}),
	Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "session",
		Name:      "joins_total",
	}, []string{"result"}),
	Speech: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "session",
		Name:      "speech_total",
	}, []string{"kind", "result"}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.Sessions)
	reg.MustRegister(metrics.Joins)
	reg.MustRegister(metrics.Speech)
}
