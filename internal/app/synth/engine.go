package synth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"quotespeak/pkg/docker"
)

type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// ContainerController starts and stops the container hosting the local engine.
// Implementations return docker.ErrNotModified when it already is in that state.
type ContainerController interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
}

type EngineConfig struct {
	Container      string        `yaml:"container"`
	WarmUp         time.Duration `yaml:"warm_up"`
	ControlTimeout time.Duration `yaml:"control_timeout"`
	// AssumeRunning is the state believed at startup, before any control call was made.
	AssumeRunning  bool `yaml:"assume_running"`
	StopOnShutdown bool `yaml:"stop_on_shutdown"`
}

// LocalEngine tracks the last known state of the local engine and drives it
// towards a desired state. The state is trusted until a control call says otherwise.
type LocalEngine struct {
	logger *slog.Logger
	cfg    *EngineConfig

	controller ContainerController

	running    atomic.Bool
	transition sync.Mutex
}

func NewLocalEngine(logger *slog.Logger, cfg *EngineConfig, controller ContainerController) *LocalEngine {
	e := &LocalEngine{
		logger:     logger,
		cfg:        cfg,
		controller: controller,
	}

	e.setRunning(cfg.AssumeRunning)

	return e
}

func (e *LocalEngine) Running() bool {
	return e.running.Load()
}

func (e *LocalEngine) State() State {
	if e.Running() {
		return Running
	}
	return Stopped
}

// EnsureState is a no-op when the last known state already matches. Transitions
// are serialized, so concurrent callers asking for the same state cause one
// control call and all of them wait for the warm-up that follows a start.
func (e *LocalEngine) EnsureState(ctx context.Context, desired State) error {
	if e.State() == desired {
		return nil
	}

	e.transition.Lock()
	defer e.transition.Unlock()

	if e.State() == desired {
		return nil
	}

	action := "start"
	control := e.controller.Start
	if desired == Stopped {
		action = "stop"
		control = e.controller.Stop
	}

	e.logger.Info("Changing local engine state", "action", action, "container", e.cfg.Container)

	controlCtx := ctx
	if e.cfg.ControlTimeout > 0 {
		var cancel context.CancelFunc
		controlCtx, cancel = context.WithTimeout(ctx, e.cfg.ControlTimeout)
		defer cancel()
	}

	err := control(controlCtx, e.cfg.Container)
	switch {
	case errors.Is(err, docker.ErrNotModified):
		e.logger.Info("Local engine already in desired state", "state", desired)
		metrics.EngineControls.WithLabelValues(action, "not_modified").Inc()

		e.setRunning(desired == Running)
		return nil
	case err != nil:
		metrics.EngineControls.WithLabelValues(action, "error").Inc()

		controlErr := &ControlError{Action: action, Container: e.cfg.Container, Err: err}
		e.logger.Error("Local engine control failed", "err", controlErr)
		return controlErr
	}

	metrics.EngineControls.WithLabelValues(action, "ok").Inc()

	var warmUpErr error
	if desired == Running && e.cfg.WarmUp > 0 {
		timer := time.NewTimer(e.cfg.WarmUp)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			warmUpErr = ctx.Err()
		}
	}

	// the container did start even if the caller gave up waiting for it
	e.setRunning(desired == Running)

	e.logger.Info("Local engine state changed", "state", desired)

	return warmUpErr
}

// Shutdown stops the engine when configured to, so it does not outlive the process.
func (e *LocalEngine) Shutdown(ctx context.Context) error {
	if !e.cfg.StopOnShutdown {
		return nil
	}
	return e.EnsureState(ctx, Stopped)
}

func (e *LocalEngine) setRunning(running bool) {
	e.running.Store(running)
	if running {
		metrics.EngineRunning.Set(1)
	} else {
		metrics.EngineRunning.Set(0)
	}
}
