package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"quotespeak/internal/app/api"
	"quotespeak/internal/app/playback"
	"quotespeak/internal/app/session"
	"quotespeak/internal/app/synth"
	"quotespeak/pkg/pubsub"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type player struct {
	report playback.ReportFunc
	hold   bool
}

func (p *player) Play(id uuid.UUID, audio io.ReadCloser) error {
	_ = audio.Close()
	if !p.hold {
		go p.report(playback.Outcome{ID: id})
	}
	return nil
}

func (p *player) Stop(id uuid.UUID) {
	go p.report(playback.Outcome{ID: id})
}

type conn struct {
	lock      sync.Mutex
	channelID string
	player    playback.Player
}

func (c *conn) ChannelID() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.channelID
}

func (c *conn) Move(ctx context.Context, channelID string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.channelID = channelID
	return nil
}

func (c *conn) Subscribed(p playback.Player) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.player == p
}

func (c *conn) Subscribe(p playback.Player) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.player = p
	return nil
}

func (c *conn) Destroy() error {
	return nil
}

type platform struct {
	hold bool
}

func (p *platform) Join(ctx context.Context, tenantID, channelID string) (session.Connection, error) {
	if channelID == "missing" {
		return nil, errors.New("unknown channel")
	}
	return &conn{channelID: channelID}, nil
}

func (p *platform) NewPlayer(tenantID string, report playback.ReportFunc) playback.Player {
	return &player{report: report, hold: p.hold}
}

type synthesizer struct{}

func (synthesizer) Synthesize(ctx context.Context, text string, speaker int) (io.ReadCloser, error) {
	if text == "fail" {
		return nil, &synth.SynthesisError{External: synth.ErrLowBudget, Local: synth.ErrLocalSynthesisFailed}
	}
	return io.NopCloser(strings.NewReader("RIFF")), nil
}

type env struct {
	server  *httptest.Server
	service *session.Service
}

func newEnv(t *testing.T, cfg *api.Config, p *platform) *env {
	ps := pubsub.New()
	registry := session.NewRegistry(slog.Default(), p, session.PublishEvents(ps))
	service := session.NewService(slog.Default(), &session.Config{Speaker: 3, MaxTextLength: 200}, registry, synthesizer{}, nil)

	server := httptest.NewServer(api.NewAPI(cfg, slog.Default(), service, ps, prometheus.NewRegistry()).NewRouter())

	t.Cleanup(func() {
		server.Close()
		service.Close()
	})

	return &env{server: server, service: service}
}

func (e *env) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out))
	}

	return resp.StatusCode, out
}

func TestJoinAndStatus(t *testing.T) {
	assert := require.New(t)

	e := newEnv(t, &api.Config{}, &platform{})

	code, body := e.do(t, http.MethodPost, "/sessions/guild", map[string]string{"channel_id": "voice", "text_channel_id": "text"})
	assert.Equal(http.StatusOK, code)
	assert.Equal("voice", body["channel_id"])
	assert.Equal("text", body["text_channel_id"])
	assert.Equal(false, body["auto_read"])

	code, body = e.do(t, http.MethodGet, "/sessions/guild", nil)
	assert.Equal(http.StatusOK, code)
	assert.Equal("idle", body["state"])

	code, _ = e.do(t, http.MethodDelete, "/sessions/guild", nil)
	assert.Equal(http.StatusNoContent, code)

	code, _ = e.do(t, http.MethodGet, "/sessions/guild", nil)
	assert.Equal(http.StatusNotFound, code)
}

func TestJoinValidation(t *testing.T) {
	assert := require.New(t)

	e := newEnv(t, &api.Config{}, &platform{})

	code, _ := e.do(t, http.MethodPost, "/sessions/guild", map[string]string{})
	assert.Equal(http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPost, "/sessions/guild", map[string]string{"channel_id": "missing"})
	assert.Equal(http.StatusInternalServerError, code)
}

func TestSpeechNotConnected(t *testing.T) {
	e := newEnv(t, &api.Config{}, &platform{})

	code, _ := e.do(t, http.MethodPost, "/sessions/guild/speech", map[string]any{"text": "hello"})
	require.Equal(t, http.StatusNotFound, code)
}

func TestSpeechWait(t *testing.T) {
	assert := require.New(t)

	e := newEnv(t, &api.Config{}, &platform{})

	code, body := e.do(t, http.MethodPost, "/sessions/guild/speech", map[string]any{"text": "hello", "channel_id": "voice", "wait": true})
	assert.Equal(http.StatusOK, code)
	assert.Equal("finished", body["status"])

	code, body = e.do(t, http.MethodPost, "/sessions/guild/speech", map[string]any{"text": "fail", "wait": true})
	assert.Equal(http.StatusBadGateway, code)
	assert.Equal("failed", body["status"])

	code, _ = e.do(t, http.MethodPost, "/sessions/guild/speech", map[string]any{"text": "  "})
	assert.Equal(http.StatusBadRequest, code)
}

func TestQueueControls(t *testing.T) {
	assert := require.New(t)

	e := newEnv(t, &api.Config{}, &platform{hold: true})

	for i := 0; i < 3; i++ {
		code, body := e.do(t, http.MethodPost, "/sessions/guild/speech", map[string]any{"text": "hello", "channel_id": "voice"})
		assert.Equal(http.StatusAccepted, code)
		assert.Equal("queued", body["status"])
	}

	code, body := e.do(t, http.MethodPost, "/sessions/guild/clear", nil)
	assert.Equal(http.StatusOK, code)
	assert.EqualValues(2, body["count"])

	code, body = e.do(t, http.MethodPost, "/sessions/guild/skip", nil)
	assert.Equal(http.StatusOK, code)
	assert.Equal(true, body["skipped"])

	code, _ = e.do(t, http.MethodPost, "/sessions/guild/stop", nil)
	assert.Equal(http.StatusOK, code)

	code, _ = e.do(t, http.MethodPost, "/sessions/other/skip", nil)
	assert.Equal(http.StatusNotFound, code)
}

func TestAutoRead(t *testing.T) {
	assert := require.New(t)

	e := newEnv(t, &api.Config{}, &platform{})

	code, _ := e.do(t, http.MethodPut, "/sessions/guild/autoread", map[string]any{"enabled": true})
	assert.Equal(http.StatusNotFound, code)

	code, _ = e.do(t, http.MethodPost, "/sessions/guild", map[string]string{"channel_id": "voice"})
	assert.Equal(http.StatusOK, code)

	code, _ = e.do(t, http.MethodPut, "/sessions/guild/autoread", map[string]any{})
	assert.Equal(http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPut, "/sessions/guild/autoread", map[string]any{"enabled": true})
	assert.Equal(http.StatusNoContent, code)

	_, body := e.do(t, http.MethodGet, "/sessions/guild", nil)
	assert.Equal(true, body["auto_read"])
}

func TestTokenRequired(t *testing.T) {
	assert := require.New(t)

	e := newEnv(t, &api.Config{Token: "secret"}, &platform{})

	code, _ := e.do(t, http.MethodGet, "/sessions/guild", nil)
	assert.Equal(http.StatusUnauthorized, code)

	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/sessions/guild", nil)
	assert.NoError(err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := http.DefaultClient.Do(req)
	assert.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(e.server.URL + "/healthz")
	assert.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
}

func TestEventsWebsocket(t *testing.T) {
	assert := require.New(t)

	e := newEnv(t, &api.Config{}, &platform{})

	wsConn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.server.URL, "http")+"/ws/guild", nil)
	assert.NoError(err)
	defer wsConn.Close()

	// the subscription is registered after the upgrade, give the handler a moment
	time.Sleep(50 * time.Millisecond)

	code, _ := e.do(t, http.MethodPost, "/sessions/guild/speech", map[string]any{"text": "hello", "channel_id": "voice", "wait": true})
	assert.Equal(http.StatusOK, code)

	var types []playback.EventType
	assert.NoError(wsConn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	for len(types) < 3 {
		var event playback.Event
		assert.NoError(wsConn.ReadJSON(&event))
		assert.Equal("guild", event.Tenant)
		assert.Equal("hello", event.Text)
		types = append(types, event.Type)
	}

	assert.Equal([]playback.EventType{playback.EventQueued, playback.EventStarted, playback.EventFinished}, types)
}
