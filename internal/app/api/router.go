package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"quotespeak/internal/app/playback"
	"quotespeak/internal/app/session"
	"quotespeak/pkg/pubsub"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogchi "github.com/samber/slog-chi"
)

type Config struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
	// Token guards the control routes with a bearer token when set.
	Token string `yaml:"token" env:"API_TOKEN"`
}

// Service is the session layer the API drives.
type Service interface {
	SubmitSpeech(ctx context.Context, tenantID, text string, opts ...session.SubmitOption) (*playback.Handle, error)
	SkipCurrent(tenantID string) (bool, error)
	ClearQueue(tenantID string) (int, error)
	StopAll(tenantID string) (int, error)
	JoinSession(ctx context.Context, tenantID, channelID, textChannelID string) (*session.Session, error)
	LeaveSession(tenantID string) error
	SetAutoRead(tenantID string, enabled bool) error
	Status(tenantID string) (*session.Status, error)
}

var _ Service = &session.Service{}

type API struct {
	logger *slog.Logger
	cfg    *Config

	service  Service
	events   *pubsub.PubSub
	gatherer prometheus.Gatherer
}

func NewAPI(cfg *Config, logger *slog.Logger, service Service, events *pubsub.PubSub, gatherer prometheus.Gatherer) *API {
	return &API{
		logger:   logger,
		cfg:      cfg,
		service:  service,
		events:   events,
		gatherer: gatherer,
	}
}

func (api *API) NewRouter() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(slogchi.New(api.logger))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.StripSlashes)

	router.Use(middleware.Recoverer)

	if api.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(api.gatherer, promhttp.HandlerOpts{}))
	}

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Group(func(router chi.Router) {
		router.Use(api.AuthMiddleware)

		// no timeout here, websocket connections are long lived
		router.Get("/ws/{tenant_id}", api.wsHandler)

		router.Group(func(router chi.Router) {
			if api.cfg.Timeout > 0 {
				router.Use(middleware.Timeout(api.cfg.Timeout))
			}

			router.Route("/sessions/{tenant_id}", func(router chi.Router) {
				router.Post("/", api.joinSession)
				router.Delete("/", api.leaveSession)
				router.Get("/", api.sessionStatus)

				router.Post("/speech", api.submitSpeech)
				router.Post("/skip", api.skip)
				router.Post("/clear", api.clear)
				router.Post("/stop", api.stopAll)
				router.Put("/autoread", api.setAutoRead)
			})
		})
	})

	return router
}
