package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"quotespeak/internal/app/playback"
)

var (
	ErrNotConnected = errors.New("not connected to a voice channel")
	ErrEmptyText    = errors.New("nothing to say")
)

// Connection is a live voice connection owned by the platform.
type Connection interface {
	ChannelID() string
	// Move switches the connection to another voice channel of the same tenant.
	Move(ctx context.Context, channelID string) error
	// Subscribed reports whether player is the one attached to the connection.
	Subscribed(player playback.Player) bool
	Subscribe(player playback.Player) error
	Destroy() error
}

type Platform interface {
	Join(ctx context.Context, tenantID, channelID string) (Connection, error)
	NewPlayer(tenantID string, report playback.ReportFunc) playback.Player
}

// Notifier posts plain text messages to a text channel.
type Notifier interface {
	Notify(ctx context.Context, channelID, message string) error
}

// Session is the bot's presence in one tenant's voice channel.
type Session struct {
	tenantID  string
	conn      Connection
	queue     *playback.Queue
	createdAt time.Time

	autoRead atomic.Bool

	lock          sync.Mutex
	textChannelID string
}

func (s *Session) TenantID() string {
	return s.tenantID
}

func (s *Session) Connection() Connection {
	return s.conn
}

func (s *Session) Queue() *playback.Queue {
	return s.queue
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) AutoRead() bool {
	return s.autoRead.Load()
}

func (s *Session) SetAutoRead(enabled bool) {
	s.autoRead.Store(enabled)
}

func (s *Session) TextChannelID() string {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.textChannelID
}

func (s *Session) SetTextChannelID(channelID string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.textChannelID = channelID
}

// bindTextChannel sets the text channel unless one is already bound.
func (s *Session) bindTextChannel(channelID string) {
	if channelID == "" {
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.textChannelID == "" {
		s.textChannelID = channelID
	}
}

// ensureSubscribed attaches the queue's player to the connection, again only
// if the platform lost the association, e.g. after a reconnect.
func (s *Session) ensureSubscribed() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	player := s.queue.Player()
	if s.conn.Subscribed(player) {
		return nil
	}

	return s.conn.Subscribe(player)
}
