package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"quotespeak/cfg"
	"quotespeak/internal/app/api"
	"quotespeak/internal/app/monitoring"
	"quotespeak/internal/app/session"
	"quotespeak/internal/app/synth"
	"quotespeak/internal/app/voice/discord"
	"quotespeak/pkg/docker"
	"quotespeak/pkg/ffmpeg"
	"quotespeak/pkg/pubsub"
	"quotespeak/pkg/ttsquest"
	"quotespeak/pkg/voicevox"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "cfg-path", "cfg/cfg.yaml", "path to config file")
	flag.Parse()

	cfg, err := cfg.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	monitoring.RegisterMetrics(reg, version)

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	dockerHTTPClient := httpClient
	if cfg.Docker.Socket != "" {
		dockerHTTPClient = docker.NewUnixHTTPClient(cfg.Docker.Socket, cfg.HTTPTimeout)
	}

	engine := synth.NewLocalEngine(logger.WithGroup("engine"), &cfg.Synth.Engine, docker.New(dockerHTTPClient, &cfg.Docker))

	router := synth.NewRouter(
		logger.WithGroup("synth"),
		&cfg.Synth,
		ttsquest.New(httpClient, &cfg.TTSQuest),
		voicevox.New(httpClient, &cfg.Voicevox),
		engine,
	)

	monitor := synth.NewBudgetMonitor(logger.WithGroup("budget"), router, cfg.Synth.BudgetInterval)

	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		log.Fatal("failed to create discord session: ", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	platform := discord.New(logger.WithGroup("discord"), &cfg.Discord, dg, ffmpeg.New(&cfg.Ffmpeg))

	events := pubsub.New()

	registry := session.NewRegistry(logger.WithGroup("sessions"), platform, session.PublishEvents(events))
	service := session.NewService(logger.WithGroup("service"), &cfg.Session, registry, router, platform)

	removeWatch := platform.Watch(service)

	if err := dg.Open(); err != nil {
		log.Fatal("failed to open discord session: ", err)
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Api.Port),
		Handler:           api.NewAPI(&cfg.Api, logger.WithGroup("api"), service, events, reg).NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting server", "addr", srv.Addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting budget monitor", "interval", cfg.Synth.BudgetInterval)
		return monitor.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Run finished with error", "err", err)
	}

	removeWatch()
	service.Close()
	router.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to stop local engine", "err", err)
	}

	if err := dg.Close(); err != nil {
		logger.Error("Failed to close discord session", "err", err)
	}

	logger.Info("Bye")
}
