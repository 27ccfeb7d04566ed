package cfg

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"quotespeak/internal/app/api"
	"quotespeak/internal/app/session"
	"quotespeak/internal/app/synth"
	"quotespeak/internal/app/voice/discord"
	"quotespeak/pkg/docker"
	"quotespeak/pkg/ffmpeg"
	"quotespeak/pkg/ttsquest"
	"quotespeak/pkg/voicevox"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel slog.Level `yaml:"log_level" env:"LOG_LEVEL"`

	Api api.Config `yaml:"api"`

	Discord discord.Config `yaml:"discord"`

	TTSQuest ttsquest.Config `yaml:"tts_quest"`
	Voicevox voicevox.Config `yaml:"voicevox"`
	Docker   docker.Config   `yaml:"docker"`
	Ffmpeg   ffmpeg.Config   `yaml:"ffmpeg"`

	// HTTPTimeout bounds every outgoing http call on top of per-call deadlines.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	Synth   synth.Config   `yaml:"synth"`
	Session session.Config `yaml:"session"`
}

func Default() *Config {
	return &Config{
		LogLevel: slog.LevelInfo,

		Api: api.Config{
			Port:    8080,
			Timeout: 30 * time.Second,
		},

		Discord: discord.Config{
			SelfDeaf:    true,
			SendTimeout: 5 * time.Second,
		},

		TTSQuest: ttsquest.Config{
			URL: "https://deprecatedapis.tts.quest/v2",
		},
		Voicevox: voicevox.Config{
			URL: "http://voicevox:50021",
		},
		Docker: docker.Config{
			Socket: "/var/run/docker.sock",
			URL:    "http://localhost",
		},
		Ffmpeg: ffmpeg.Config{
			Path: "ffmpeg",
		},

		HTTPTimeout: time.Minute,

		Synth: synth.Config{
			Threshold:       1000,
			ExternalTimeout: 10 * time.Second,
			LocalTimeout:    30 * time.Second,
			StopTimeout:     30 * time.Second,
			BudgetInterval:  10 * time.Minute,
			Breaker: synth.BreakerConfig{
				Failures: 5,
				Cooldown: time.Minute,
			},
			Engine: synth.EngineConfig{
				Container:      "quotespeak-voicevox-1",
				WarmUp:         5 * time.Second,
				ControlTimeout: 30 * time.Second,
				AssumeRunning:  true,
				StopOnShutdown: true,
			},
		},

		Session: session.Config{
			Speaker:           3,
			MaxTextLength:     session.DefaultMaxTextLength,
			JoinTimeout:       15 * time.Second,
			SynthesisTimeout:  time.Minute,
			JoinAnnouncement:  "%sさんが入室しました",
			LeaveAnnouncement: "%sさんが退出しました",
			DepartureNotice:   "ボイスチャンネルに誰もいなくなったため、退出しました。",
		},
	}
}

// Load reads the yaml file at path over the defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't open %s file: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("can't unmarshal %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("can't parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Api.Port <= 0 || c.Api.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d is out of range", c.Api.Port))
	}
	if c.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if c.TTSQuest.URL == "" {
		errs = append(errs, errors.New("tts_quest.url is required"))
	}
	if c.Voicevox.URL == "" {
		errs = append(errs, errors.New("voicevox.url is required"))
	}
	if c.Docker.Socket == "" && c.Docker.URL == "" {
		errs = append(errs, errors.New("docker.socket or docker.url is required"))
	}
	if c.Synth.Engine.Container == "" {
		errs = append(errs, errors.New("synth.engine.container is required"))
	}
	if c.Synth.Threshold < 0 {
		errs = append(errs, errors.New("synth.threshold can't be negative"))
	}
	if c.Synth.ExternalTimeout <= 0 {
		errs = append(errs, errors.New("synth.external_timeout must be positive"))
	}
	if c.Synth.BudgetInterval <= 0 {
		errs = append(errs, errors.New("synth.budget_interval must be positive"))
	}
	if c.Session.MaxTextLength <= 3 {
		errs = append(errs, fmt.Errorf("session.max_text_length %d is too small", c.Session.MaxTextLength))
	}

	return errors.Join(errs...)
}
