package ws

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Clients prometheus.Gauge
	Dropped prometheus.Counter
}

var metrics = &Metrics{
	Clients: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ws",
		Name:      "clients",
	}),
	Dropped: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ws",
		Name:      "dropped_messages",
	}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.Clients)
	reg.MustRegister(metrics.Dropped)
}
