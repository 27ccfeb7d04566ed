package monitoring

import (
	"quotespeak/internal/app/playback"
	"quotespeak/internal/app/session"
	"quotespeak/internal/app/synth"
	"quotespeak/internal/app/voice/discord"
	"quotespeak/pkg/docker"
	"quotespeak/pkg/ttsquest"
	"quotespeak/pkg/voicevox"
	"quotespeak/pkg/ws"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	BuildInfo *prometheus.GaugeVec
}

var AppMetrics = &Metrics{
	BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quotespeak",
		Name:      "build_info",
	}, []string{"version"}),
}

// RegisterMetrics registers the metrics of every component plus the go runtime collectors.
func RegisterMetrics(reg prometheus.Registerer, version string) {
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ws.RegisterMetrics(reg)
	ttsquest.RegisterMetrics(reg)
	voicevox.RegisterMetrics(reg)
	docker.RegisterMetrics(reg)
	synth.RegisterMetrics(reg)
	playback.RegisterMetrics(reg)
	session.RegisterMetrics(reg)
	discord.RegisterMetrics(reg)

	reg.MustRegister(AppMetrics.BuildInfo)
	AppMetrics.BuildInfo.WithLabelValues(version).Set(1)
}
