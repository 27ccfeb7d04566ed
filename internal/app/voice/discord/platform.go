package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"quotespeak/internal/app/playback"
	"quotespeak/internal/app/session"

	"github.com/bwmarrin/discordgo"
)

var (
	ErrNotSubscribed = errors.New("player is not attached to a voice connection")
	ErrNotReady      = errors.New("voice connection is not ready")
	ErrSendTimeout   = errors.New("timed out sending opus frame")
)

type Config struct {
	Token       string        `yaml:"token" env:"DISCORD_TOKEN"`
	SelfDeaf    bool          `yaml:"self_deaf"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// Transcoder turns an arbitrary audio stream into Ogg/Opus with one 20ms packet per page.
type Transcoder interface {
	OpusStream(ctx context.Context, in io.Reader) (io.ReadCloser, error)
}

// Platform joins voice channels on discord, one connection per guild. The tenant ID is the guild ID.
type Platform struct {
	logger     *slog.Logger
	cfg        *Config
	session    *discordgo.Session
	transcoder Transcoder

	lock  sync.Mutex
	conns map[string]*connection
}

var (
	_ session.Platform = &Platform{}
	_ session.Notifier = &Platform{}
)

func New(logger *slog.Logger, cfg *Config, s *discordgo.Session, transcoder Transcoder) *Platform {
	return &Platform{
		logger:     logger,
		cfg:        cfg,
		session:    s,
		transcoder: transcoder,
		conns:      make(map[string]*connection),
	}
}

func (p *Platform) Join(ctx context.Context, tenantID, channelID string) (session.Connection, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}

	done := make(chan result, 1)
	go func() {
		vc, err := p.session.ChannelVoiceJoin(tenantID, channelID, false, p.cfg.SelfDeaf)
		done <- result{vc: vc, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				_ = res.vc.Disconnect()
			}
		}()
		metrics.Joins.WithLabelValues("timeout").Inc()
		return nil, fmt.Errorf("failed to join voice channel %s: %w", channelID, ctx.Err())
	}

	if res.err != nil {
		metrics.Joins.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to join voice channel %s: %w", channelID, res.err)
	}

	metrics.Joins.WithLabelValues("ok").Inc()

	conn := &connection{
		platform:  p,
		guildID:   tenantID,
		channelID: channelID,
		vc:        res.vc,
	}

	p.lock.Lock()
	p.conns[tenantID] = conn
	p.lock.Unlock()

	p.logger.Info("Joined voice channel", "guild", tenantID, "channel", channelID)

	return conn, nil
}

func (p *Platform) NewPlayer(tenantID string, report playback.ReportFunc) playback.Player {
	return newPlayer(p.logger.With("guild", tenantID), p.transcoder, report)
}

// Notify posts message to a text channel.
func (p *Platform) Notify(ctx context.Context, channelID, message string) error {
	if _, err := p.session.ChannelMessageSend(channelID, message, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}

	return nil
}

// channelOf returns the voice channel the bot is connected to in guildID.
func (p *Platform) channelOf(guildID string) (string, bool) {
	p.lock.Lock()
	conn, ok := p.conns[guildID]
	p.lock.Unlock()

	if !ok {
		return "", false
	}

	return conn.ChannelID(), true
}

func (p *Platform) forget(conn *connection) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.conns[conn.guildID] == conn {
		delete(p.conns, conn.guildID)
	}
}

type connection struct {
	platform *Platform
	guildID  string
	vc       *discordgo.VoiceConnection

	lock      sync.Mutex
	channelID string
}

func (c *connection) ChannelID() string {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.channelID
}

func (c *connection) Move(ctx context.Context, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.vc.ChangeChannel(channelID, false, c.platform.cfg.SelfDeaf); err != nil {
		return fmt.Errorf("failed to change voice channel: %w", err)
	}

	c.setChannelID(channelID)

	return nil
}

func (c *connection) setChannelID(channelID string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.channelID = channelID
}

func (c *connection) Subscribed(pl playback.Player) bool {
	p, ok := pl.(*player)
	if !ok {
		return false
	}

	return p.output() == sink(c) && c.ready()
}

func (c *connection) Subscribe(pl playback.Player) error {
	p, ok := pl.(*player)
	if !ok {
		return fmt.Errorf("unsupported player %T", pl)
	}

	p.attach(c)

	return nil
}

func (c *connection) Destroy() error {
	c.platform.forget(c)

	if err := c.vc.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from voice: %w", err)
	}

	c.platform.logger.Info("Left voice channel", "guild", c.guildID, "channel", c.ChannelID())

	return nil
}

func (c *connection) ready() bool {
	c.vc.RLock()
	defer c.vc.RUnlock()

	return c.vc.Ready && c.vc.OpusSend != nil
}

func (c *connection) Speaking(speaking bool) error {
	return c.vc.Speaking(speaking)
}

func (c *connection) Send(ctx context.Context, frame []byte) error {
	if !c.ready() {
		return ErrNotReady
	}

	timeout := c.platform.cfg.SendTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.vc.OpusSend <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrSendTimeout
	}
}
