package synth

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Routes         *prometheus.CounterVec
	Results        *prometheus.CounterVec
	EngineRunning  prometheus.Gauge
	EngineControls *prometheus.CounterVec
	BreakerState   prometheus.Gauge
}

var metrics = &Metrics{
	Routes: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "synth",
		Name:      "routes_total",
	}, []string{"route"}),
	Results: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "synth",
		Name:      "results_total",
	}, []string{"tier", "result"}),
	EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "synth",
		Name:      "local_engine_running",
	}),
	EngineControls: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "synth",
		Name:      "local_engine_controls_total",
	}, []string{"action", "result"}),
	BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "synth",
		Name:      "external_breaker_state",
		Help:      "0 closed, 1 half-open, 2 open",
	}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.Routes)
	reg.MustRegister(metrics.Results)
	reg.MustRegister(metrics.EngineRunning)
	reg.MustRegister(metrics.EngineControls)
	reg.MustRegister(metrics.BreakerState)
}
