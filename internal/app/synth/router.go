package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"quotespeak/pkg/ttsquest"

	"github.com/sony/gobreaker/v2"
)

// ExternalClient is the metered tier. Synthesize must return audio that is
// already fully received, since its context is cancelled right after it returns.
type ExternalClient interface {
	Points(ctx context.Context) (*ttsquest.Points, error)
	Synthesize(ctx context.Context, req *ttsquest.Request) (io.ReadCloser, error)
}

type LocalClient interface {
	AudioQuery(ctx context.Context, text string, speaker int) (json.RawMessage, error)
	Synthesis(ctx context.Context, plan json.RawMessage, speaker int) (io.ReadCloser, error)
}

type BreakerConfig struct {
	// Failures is how many consecutive external failures open the breaker, 0 disables it.
	Failures uint32        `yaml:"failures"`
	Cooldown time.Duration `yaml:"cooldown"`
}

type Config struct {
	Threshold       int           `yaml:"threshold"`
	ExternalTimeout time.Duration `yaml:"external_timeout"`
	LocalTimeout    time.Duration `yaml:"local_timeout"`
	StopTimeout     time.Duration `yaml:"stop_timeout"`
	BudgetInterval  time.Duration `yaml:"budget_interval"`

	Breaker BreakerConfig `yaml:"breaker"`
	Engine  EngineConfig  `yaml:"engine"`
}

// Router picks the synthesis tier per request and owns the desired state of the local engine.
type Router struct {
	logger *slog.Logger
	cfg    *Config

	external ExternalClient
	local    LocalClient
	engine   *LocalEngine

	breaker *gobreaker.CircuitBreaker[io.ReadCloser]

	stopping atomic.Bool
	wg       sync.WaitGroup
}

func NewRouter(logger *slog.Logger, cfg *Config, external ExternalClient, local LocalClient, engine *LocalEngine) *Router {
	r := &Router{
		logger:   logger,
		cfg:      cfg,
		external: external,
		local:    local,
		engine:   engine,
	}

	r.breaker = gobreaker.NewCircuitBreaker[io.ReadCloser](gobreaker.Settings{
		Name:        "ttsquest",
		MaxRequests: 1,
		Timeout:     cfg.Breaker.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.Breaker.Failures > 0 && counts.ConsecutiveFailures >= cfg.Breaker.Failures
		},
		IsSuccessful: func(err error) bool {
			// a caller hanging up says nothing about the api
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("External synthesis breaker changed state", "from", from.String(), "to", to.String())
			metrics.BreakerState.Set(float64(to))
		},
	})

	return r
}

func (r *Router) Engine() *LocalEngine {
	return r.engine
}

// Synthesize returns audio for text, trying the external tier first unless its
// budget is known to be low. It fails only when both tiers fail.
func (r *Router) Synthesize(ctx context.Context, text string, speaker int) (io.ReadCloser, error) {
	var externalErr error

	points, err := r.points(ctx)
	switch {
	case err != nil:
		r.logger.Warn("Budget unknown, assuming it is sufficient", "err", err)
	case points.Points < r.cfg.Threshold:
		r.logger.Warn("External budget low, using local engine", "points", points.Points, "threshold", r.cfg.Threshold)
		externalErr = fmt.Errorf("%w: %d points left", ErrLowBudget, points.Points)
	case r.engine.Running():
		r.logger.Info("External budget recovered, stopping local engine", "points", points.Points)
		r.stopEngine()
	}

	if externalErr == nil {
		audio, err := r.synthesizeExternal(ctx, text, speaker)
		if err == nil {
			metrics.Routes.WithLabelValues("external").Inc()
			return audio, nil
		}

		r.logger.Warn("External synthesis failed, falling back to local engine", "err", err)
		externalErr = err
		metrics.Routes.WithLabelValues("local_fallback").Inc()
	} else {
		metrics.Routes.WithLabelValues("local_low_budget").Inc()
	}

	if err := r.engine.EnsureState(ctx, Running); err != nil {
		r.logger.Warn("Local engine not confirmed running, trying it anyway", "err", err)
	}

	audio, err := r.synthesizeLocal(ctx, text, speaker)
	if err != nil {
		r.logger.Error("Local synthesis failed", "err", err)
		return nil, &SynthesisError{External: externalErr, Local: err}
	}

	return audio, nil
}

// Reconcile stops the local engine when the external budget is above the threshold.
func (r *Router) Reconcile(ctx context.Context) error {
	points, err := r.points(ctx)
	if err != nil {
		return err
	}

	if points.Points > r.cfg.Threshold && r.engine.Running() {
		r.logger.Info("External budget sufficient, stopping local engine", "points", points.Points)
		return r.engine.EnsureState(ctx, Stopped)
	}

	return nil
}

// Wait blocks until background engine stops have finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) points(ctx context.Context) (*ttsquest.Points, error) {
	if r.cfg.ExternalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ExternalTimeout)
		defer cancel()
	}

	points, err := r.external.Points(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBudgetQueryFailed, err)
	}

	return points, nil
}

func (r *Router) synthesizeExternal(ctx context.Context, text string, speaker int) (io.ReadCloser, error) {
	audio, err := r.breaker.Execute(func() (io.ReadCloser, error) {
		callCtx := ctx
		if r.cfg.ExternalTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.ExternalTimeout)
			defer cancel()
		}

		return r.external.Synthesize(callCtx, ttsquest.NewRequest(text, speaker))
	})
	if err != nil {
		metrics.Results.WithLabelValues("external", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrExternalSynthesisFailed, err)
	}

	metrics.Results.WithLabelValues("external", "ok").Inc()

	return audio, nil
}

func (r *Router) synthesizeLocal(ctx context.Context, text string, speaker int) (io.ReadCloser, error) {
	if r.cfg.LocalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.LocalTimeout)
		defer cancel()
	}

	plan, err := r.local.AudioQuery(ctx, text, speaker)
	if err != nil {
		metrics.Results.WithLabelValues("local", "error").Inc()
		return nil, fmt.Errorf("%w: audio query: %w", ErrLocalSynthesisFailed, err)
	}

	audio, err := r.local.Synthesis(ctx, plan, speaker)
	if err != nil {
		metrics.Results.WithLabelValues("local", "error").Inc()
		return nil, fmt.Errorf("%w: synthesis: %w", ErrLocalSynthesisFailed, err)
	}

	metrics.Results.WithLabelValues("local", "ok").Inc()

	return audio, nil
}

// stopEngine stops the local engine in the background; at most one stop is in flight.
func (r *Router) stopEngine() {
	if !r.stopping.CompareAndSwap(false, true) {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.stopping.Store(false)

		ctx := context.Background()
		if r.cfg.StopTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.cfg.StopTimeout)
			defer cancel()
		}

		if err := r.engine.EnsureState(ctx, Stopped); err != nil {
			r.logger.Warn("Background local engine stop failed", "err", err)
		}
	}()
}
