package session_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"quotespeak/internal/app/playback"
	"quotespeak/internal/app/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

var (
	_ session.Platform    = &fakePlatform{}
	_ session.Connection  = &fakeConn{}
	_ session.Synthesizer = &mockSynth{}
	_ session.Notifier    = &mockNotifier{}
)

type fakePlayer struct {
	report playback.ReportFunc

	lock  sync.Mutex
	plays []uuid.UUID
	hold  bool
}

func (p *fakePlayer) Play(id uuid.UUID, audio io.ReadCloser) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	_ = audio.Close()
	p.plays = append(p.plays, id)

	if !p.hold {
		go p.report(playback.Outcome{ID: id})
	}

	return nil
}

func (p *fakePlayer) Stop(id uuid.UUID) {
	go p.report(playback.Outcome{ID: id})
}

func (p *fakePlayer) Plays() []uuid.UUID {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]uuid.UUID(nil), p.plays...)
}

type fakeConn struct {
	lock       sync.Mutex
	channelID  string
	subscribed playback.Player
	subscribes int
	destroyed  bool
	moveErr    error
}

func (c *fakeConn) ChannelID() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.channelID
}

func (c *fakeConn) Move(ctx context.Context, channelID string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.moveErr != nil {
		return c.moveErr
	}
	c.channelID = channelID
	return nil
}

func (c *fakeConn) Subscribed(player playback.Player) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.subscribed == player
}

func (c *fakeConn) Subscribe(player playback.Player) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.subscribed = player
	c.subscribes++
	return nil
}

// lose simulates the platform dropping the player association after a reconnect.
func (c *fakeConn) lose() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.subscribed = nil
}

func (c *fakeConn) Subscribes() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.subscribes
}

func (c *fakeConn) Destroyed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.destroyed
}

func (c *fakeConn) Destroy() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.destroyed = true
	return nil
}

type fakePlatform struct {
	joins     atomic.Int32
	joinDelay time.Duration
	joinErr   error
	holdPlays bool

	lock    sync.Mutex
	conns   map[string]*fakeConn
	players map[string]*fakePlayer
}

func newPlatform() *fakePlatform {
	return &fakePlatform{
		conns:   make(map[string]*fakeConn),
		players: make(map[string]*fakePlayer),
	}
}

func (p *fakePlatform) Join(ctx context.Context, tenantID, channelID string) (session.Connection, error) {
	p.joins.Add(1)

	if p.joinDelay > 0 {
		time.Sleep(p.joinDelay)
	}
	if p.joinErr != nil {
		return nil, p.joinErr
	}

	conn := &fakeConn{channelID: channelID}

	p.lock.Lock()
	p.conns[tenantID] = conn
	p.lock.Unlock()

	return conn, nil
}

func (p *fakePlatform) NewPlayer(tenantID string, report playback.ReportFunc) playback.Player {
	player := &fakePlayer{report: report, hold: p.holdPlays}

	p.lock.Lock()
	p.players[tenantID] = player
	p.lock.Unlock()

	return player
}

func (p *fakePlatform) conn(tenantID string) *fakeConn {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.conns[tenantID]
}

func (p *fakePlatform) player(tenantID string) *fakePlayer {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.players[tenantID]
}

type mockSynth struct {
	mock.Mock
}

func (s *mockSynth) Synthesize(ctx context.Context, text string, speaker int) (io.ReadCloser, error) {
	args := s.Called(ctx, text, speaker)
	audio, _ := args.Get(0).(io.ReadCloser)
	return audio, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (n *mockNotifier) Notify(ctx context.Context, channelID, message string) error {
	args := n.Called(ctx, channelID, message)
	return args.Error(0)
}

func wav() io.ReadCloser {
	return io.NopCloser(strings.NewReader("RIFF....WAVE"))
}

var errSynth = errors.New("synthesis failed on both tiers")
