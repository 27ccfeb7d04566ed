package discord

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Joins       *prometheus.CounterVec
	Clips       *prometheus.CounterVec
	Frames      prometheus.Counter
	Departures  prometheus.Counter
	Disconnects prometheus.Counter
}

var metrics = &Metrics{
	Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discord",
		Name:      "voice_joins",
	}, []string{"result"}),
	Clips: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discord",
		Name:      "clips",
	}, []string{"result"}),
	Frames: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discord",
		Name:      "opus_frames_sent",
	}),
	Departures: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discord",
		Name:      "empty_channel_departures",
	}),
	Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discord",
		Name:      "voice_disconnects",
	}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.Joins)
	reg.MustRegister(metrics.Clips)
	reg.MustRegister(metrics.Frames)
	reg.MustRegister(metrics.Departures)
	reg.MustRegister(metrics.Disconnects)
}
