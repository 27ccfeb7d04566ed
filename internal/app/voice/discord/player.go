package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"quotespeak/internal/app/playback"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

var opusTags = []byte("OpusTags")

// sink is where opus frames of the playing clip go.
type sink interface {
	Speaking(speaking bool) error
	Send(ctx context.Context, frame []byte) error
}

type clip struct {
	id     uuid.UUID
	cancel context.CancelFunc
}

type player struct {
	logger     *slog.Logger
	transcoder Transcoder
	report     playback.ReportFunc

	lock    sync.Mutex
	sink    sink
	current *clip
}

var _ playback.Player = &player{}

func newPlayer(logger *slog.Logger, transcoder Transcoder, report playback.ReportFunc) *player {
	return &player{
		logger:     logger,
		transcoder: transcoder,
		report:     report,
	}
}

func (p *player) attach(s sink) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.sink = s
}

func (p *player) output() sink {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.sink
}

func (p *player) Play(id uuid.UUID, audio io.ReadCloser) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.sink == nil {
		return ErrNotSubscribed
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.current = &clip{id: id, cancel: cancel}

	go p.play(ctx, id, p.sink, audio)

	return nil
}

func (p *player) Stop(id uuid.UUID) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.current != nil && p.current.id == id {
		p.current.cancel()
	}
}

func (p *player) play(ctx context.Context, id uuid.UUID, out sink, audio io.ReadCloser) {
	err := p.stream(ctx, out, audio)

	stopped := ctx.Err() != nil

	p.lock.Lock()
	if p.current != nil && p.current.id == id {
		p.current.cancel()
		p.current = nil
	}
	p.lock.Unlock()

	switch {
	case stopped:
		metrics.Clips.WithLabelValues("stopped").Inc()
		err = nil
	case err != nil:
		metrics.Clips.WithLabelValues("error").Inc()
		p.logger.Warn("Clip playback failed", "id", id, "err", err)
	default:
		metrics.Clips.WithLabelValues("finished").Inc()
	}

	p.report(playback.Outcome{ID: id, Err: err})
}

func (p *player) stream(ctx context.Context, out sink, audio io.ReadCloser) error {
	defer audio.Close()

	opus, err := p.transcoder.OpusStream(ctx, audio)
	if err != nil {
		return fmt.Errorf("failed to transcode clip: %w", err)
	}
	defer opus.Close()

	pages, _, err := oggreader.NewWith(opus)
	if err != nil {
		return fmt.Errorf("failed to read ogg header: %w", err)
	}

	if err := out.Speaking(true); err != nil {
		p.logger.Debug("Failed to set speaking", "err", err)
	}
	defer func() {
		if err := out.Speaking(false); err != nil {
			p.logger.Debug("Failed to unset speaking", "err", err)
		}
	}()

	for {
		frame, _, err := pages.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read ogg page: %w", err)
		}

		if len(frame) == 0 || bytes.HasPrefix(frame, opusTags) {
			continue
		}

		if err := out.Send(ctx, frame); err != nil {
			return fmt.Errorf("failed to send frame: %w", err)
		}

		metrics.Frames.Inc()
	}
}
