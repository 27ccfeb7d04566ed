package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"quotespeak/internal/app/playback"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, speaker int) (io.ReadCloser, error)
}

type Config struct {
	Speaker          int           `yaml:"speaker"`
	MaxTextLength    int           `yaml:"max_text_length"`
	JoinTimeout      time.Duration `yaml:"join_timeout"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`

	JoinAnnouncement  string `yaml:"join_announcement"`
	LeaveAnnouncement string `yaml:"leave_announcement"`
	DepartureNotice   string `yaml:"departure_notice"`
}

// Service is what the chat layer drives: joining and leaving, submitting speech
// and controlling playback, all keyed by tenant.
type Service struct {
	logger *slog.Logger
	cfg    *Config

	registry *Registry
	synth    Synthesizer
	notifier Notifier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lock   sync.Mutex
	closed bool
}

func NewService(logger *slog.Logger, cfg *Config, registry *Registry, synth Synthesizer, notifier Notifier) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		logger:   logger,
		cfg:      cfg,
		registry: registry,
		synth:    synth,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
	}
}

type submitOptions struct {
	speaker       int
	channelID     string
	textChannelID string
}

type SubmitOption func(o *submitOptions)

// WithAutoJoin lets SubmitSpeech join channelID when the tenant has no session yet.
func WithAutoJoin(channelID, textChannelID string) SubmitOption {
	return func(o *submitOptions) {
		o.channelID = channelID
		o.textChannelID = textChannelID
	}
}

func WithSpeaker(speaker int) SubmitOption {
	return func(o *submitOptions) {
		o.speaker = speaker
	}
}

// SubmitSpeech queues text for playback right away and synthesizes it in the
// background, so requests play in submission order whatever their synthesis time.
// It only fails when there is no session to speak in.
func (s *Service) SubmitSpeech(ctx context.Context, tenantID, text string, opts ...SubmitOption) (*playback.Handle, error) {
	o := &submitOptions{speaker: s.cfg.Speaker}
	for _, opt := range opts {
		opt(o)
	}

	text = PrepareText(text, s.cfg.MaxTextLength)
	if text == "" {
		return nil, ErrEmptyText
	}

	if s.isClosed() {
		return nil, playback.ErrSessionClosed
	}

	sess, err := s.session(ctx, tenantID, o)
	if err != nil {
		metrics.Speech.WithLabelValues("explicit", "rejected").Inc()
		return nil, err
	}

	if err := sess.ensureSubscribed(); err != nil {
		s.logger.Warn("Failed to resubscribe player", "tenant", tenantID, "err", err)
	}

	audio := playback.NewAudio()
	handle := sess.Queue().Enqueue(text, audio)

	// enqueued into a session that was closed in the meantime
	if handle.Err() != nil {
		return handle, nil
	}

	metrics.Speech.WithLabelValues("explicit", "queued").Inc()

	started := s.spawn(func() {
		synthCtx := s.ctx
		if s.cfg.SynthesisTimeout > 0 {
			var cancel context.CancelFunc
			synthCtx, cancel = context.WithTimeout(s.ctx, s.cfg.SynthesisTimeout)
			defer cancel()
		}

		stream, err := s.synth.Synthesize(synthCtx, text, o.speaker)
		if err != nil {
			s.logger.Error("Speech synthesis failed", "tenant", tenantID, "id", handle.ID(), "err", err)
		}
		audio.Resolve(stream, err)
	})
	if !started {
		audio.Resolve(nil, playback.ErrSessionClosed)
	}

	return handle, nil
}

// Announce speaks text on the tenant's behalf; failures are only logged.
func (s *Service) Announce(tenantID, text string) {
	handle, err := s.SubmitSpeech(s.ctx, tenantID, text)
	if err != nil {
		metrics.Speech.WithLabelValues("implicit", "rejected").Inc()
		s.logger.Warn("Announcement dropped", "tenant", tenantID, "err", err)
		return
	}

	s.spawn(func() {
		if err := handle.Wait(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			metrics.Speech.WithLabelValues("implicit", "failed").Inc()
			s.logger.Warn("Announcement failed", "tenant", tenantID, "err", err)
		}
	})
}

// AnnounceMember reads out a member entering or leaving the session's channel when auto-read is on.
func (s *Service) AnnounceMember(tenantID, displayName string, joined bool) {
	sess, ok := s.registry.Get(tenantID)
	if !ok || !sess.AutoRead() {
		return
	}

	template := s.cfg.LeaveAnnouncement
	if joined {
		template = s.cfg.JoinAnnouncement
	}
	if template == "" {
		return
	}

	s.Announce(tenantID, fmt.Sprintf(template, displayName))
}

func (s *Service) SkipCurrent(tenantID string) (bool, error) {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return false, ErrNotConnected
	}

	return sess.Queue().Skip(), nil
}

// ClearQueue drops pending requests; the one playing keeps playing.
func (s *Service) ClearQueue(tenantID string) (int, error) {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return 0, ErrNotConnected
	}

	return sess.Queue().Clear(), nil
}

// StopAll drops pending requests and stops the one playing.
func (s *Service) StopAll(tenantID string) (int, error) {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return 0, ErrNotConnected
	}

	return sess.Queue().StopAll(), nil
}

// JoinSession connects to channelID, moving an existing session there if needed.
// An explicit join binds textChannelID for notices and turns auto-read off.
func (s *Service) JoinSession(ctx context.Context, tenantID, channelID, textChannelID string) (*Session, error) {
	if s.cfg.JoinTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JoinTimeout)
		defer cancel()
	}

	sess, ok := s.registry.Get(tenantID)
	if ok && sess.Connection().ChannelID() != channelID {
		if err := sess.Connection().Move(ctx, channelID); err != nil {
			return nil, fmt.Errorf("failed to move to channel %s: %w", channelID, err)
		}
		s.logger.Info("Session moved", "tenant", tenantID, "channel", channelID)
	}

	if !ok {
		var err error
		sess, err = s.registry.GetOrCreate(ctx, tenantID, channelID)
		if err != nil {
			return nil, err
		}
	}

	if textChannelID != "" {
		sess.SetTextChannelID(textChannelID)
	}
	sess.SetAutoRead(false)

	if err := sess.ensureSubscribed(); err != nil {
		s.logger.Warn("Failed to resubscribe player", "tenant", tenantID, "err", err)
	}

	return sess, nil
}

func (s *Service) LeaveSession(tenantID string) error {
	if !s.registry.Remove(tenantID) {
		return ErrNotConnected
	}
	return nil
}

// AutoDepart leaves a voice channel nobody is listening in and says so in the bound text channel.
func (s *Service) AutoDepart(ctx context.Context, tenantID string) {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return
	}

	textChannelID := sess.TextChannelID()

	if !s.registry.Remove(tenantID) {
		return
	}

	s.logger.Info("Left empty voice channel", "tenant", tenantID)

	if s.notifier == nil || textChannelID == "" || s.cfg.DepartureNotice == "" {
		return
	}

	if err := s.notifier.Notify(ctx, textChannelID, s.cfg.DepartureNotice); err != nil {
		s.logger.Warn("Failed to post departure notice", "tenant", tenantID, "err", err)
	}
}

func (s *Service) SetAutoRead(tenantID string, enabled bool) error {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return ErrNotConnected
	}

	sess.SetAutoRead(enabled)

	return nil
}

type Status struct {
	TenantID      string            `json:"tenant_id"`
	ChannelID     string            `json:"channel_id"`
	TextChannelID string            `json:"text_channel_id"`
	AutoRead      bool              `json:"auto_read"`
	State         string            `json:"state"`
	Queue         playback.Snapshot `json:"queue"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (s *Service) Status(tenantID string) (*Status, error) {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return nil, ErrNotConnected
	}

	snap := sess.Queue().Snapshot()

	return &Status{
		TenantID:      tenantID,
		ChannelID:     sess.Connection().ChannelID(),
		TextChannelID: sess.TextChannelID(),
		AutoRead:      sess.AutoRead(),
		State:         snap.State.String(),
		Queue:         snap,
		CreatedAt:     sess.CreatedAt(),
	}, nil
}

// Close tears down every session and waits for background synthesis to return.
func (s *Service) Close() {
	s.lock.Lock()
	s.closed = true
	s.lock.Unlock()

	s.registry.CloseAll()
	s.cancel()
	s.wg.Wait()
}

func (s *Service) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.closed
}

// spawn runs fn in the background unless Close has already started waiting.
func (s *Service) spawn(fn func()) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()

	return true
}

func (s *Service) session(ctx context.Context, tenantID string, o *submitOptions) (*Session, error) {
	if sess, ok := s.registry.Get(tenantID); ok {
		return sess, nil
	}

	if o.channelID == "" {
		return nil, ErrNotConnected
	}

	if s.cfg.JoinTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JoinTimeout)
		defer cancel()
	}

	sess, err := s.registry.GetOrCreate(ctx, tenantID, o.channelID)
	if err != nil {
		return nil, err
	}

	sess.bindTextChannel(o.textChannelID)

	return sess, nil
}
