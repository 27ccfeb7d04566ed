package discord

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"quotespeak/internal/app/playback"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	lock     sync.Mutex
	frames   [][]byte
	speaking []bool

	block   bool
	sendErr error
}

func (s *fakeSink) Speaking(speaking bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.speaking = append(s.speaking, speaking)
	return nil
}

func (s *fakeSink) Send(ctx context.Context, frame []byte) error {
	s.lock.Lock()
	block, sendErr := s.block, s.sendErr
	s.lock.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if sendErr != nil {
		return sendErr
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.frames = append(s.frames, bytes.Clone(frame))
	return nil
}

func (s *fakeSink) Frames() [][]byte {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.frames
}

type staticTranscoder struct {
	data []byte
	err  error
}

func (t *staticTranscoder) OpusStream(ctx context.Context, in io.Reader) (io.ReadCloser, error) {
	if t.err != nil {
		return nil, t.err
	}
	return io.NopCloser(bytes.NewReader(t.data)), nil
}

func oggStream(t *testing.T, frames ...[]byte) []byte {
	buf := &bytes.Buffer{}

	w, err := oggwriter.NewWith(buf, 48000, 2)
	require.NoError(t, err)

	for i, frame := range frames {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{Timestamp: uint32(i * 960)},
			Payload: frame,
		}))
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

type reports struct {
	ch chan playback.Outcome
}

func newReports() *reports {
	return &reports{ch: make(chan playback.Outcome, 4)}
}

func (r *reports) report(o playback.Outcome) {
	r.ch <- o
}

func (r *reports) next(t *testing.T) playback.Outcome {
	select {
	case o := <-r.ch:
		return o
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no outcome reported")
		return playback.Outcome{}
	}
}

type trackedAudio struct {
	io.Reader
	closed chan struct{}
}

func (a *trackedAudio) Close() error {
	close(a.closed)
	return nil
}

func audio() *trackedAudio {
	return &trackedAudio{Reader: bytes.NewReader([]byte("RIFF")), closed: make(chan struct{})}
}

func TestPlayerSendsOpusFrames(t *testing.T) {
	assert := assert.New(t)

	frames := [][]byte{{0xf8, 0x01}, {0xf8, 0x02}, {0xf8, 0x03}}
	out := &fakeSink{}
	r := newReports()

	p := newPlayer(slog.Default(), &staticTranscoder{data: oggStream(t, frames...)}, r.report)
	p.attach(out)

	id := uuid.New()
	in := audio()
	assert.NoError(p.Play(id, in))

	outcome := r.next(t)
	assert.Equal(id, outcome.ID)
	assert.NoError(outcome.Err)

	assert.Equal(frames, out.Frames())
	assert.Equal([]bool{true, false}, out.speaking)

	select {
	case <-in.closed:
	default:
		assert.Fail("audio must be closed after playback")
	}
}

func TestPlayerWithoutConnection(t *testing.T) {
	p := newPlayer(slog.Default(), &staticTranscoder{}, newReports().report)

	assert.ErrorIs(t, p.Play(uuid.New(), audio()), ErrNotSubscribed)
}

func TestPlayerStopReportsFinished(t *testing.T) {
	assert := assert.New(t)

	out := &fakeSink{block: true}
	r := newReports()

	p := newPlayer(slog.Default(), &staticTranscoder{data: oggStream(t, []byte{0xf8, 0x01})}, r.report)
	p.attach(out)

	id := uuid.New()
	assert.NoError(p.Play(id, audio()))

	p.Stop(uuid.New())
	p.Stop(id)

	outcome := r.next(t)
	assert.Equal(id, outcome.ID)
	assert.NoError(outcome.Err)
}

func TestPlayerReportsErrors(t *testing.T) {
	sendErr := errors.New("voice gone")

	tests := []struct {
		name       string
		transcoder *staticTranscoder
		sink       *fakeSink
		expected   error
	}{
		{
			name:       "transcode",
			transcoder: &staticTranscoder{err: errors.New("no ffmpeg")},
			sink:       &fakeSink{},
		},
		{
			name:       "not ogg",
			transcoder: &staticTranscoder{data: []byte("definitely not an ogg stream")},
			sink:       &fakeSink{},
		},
		{
			name:       "send",
			transcoder: &staticTranscoder{data: oggStream(t, []byte{0xf8, 0x01})},
			sink:       &fakeSink{sendErr: sendErr},
			expected:   sendErr,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := newReports()

			p := newPlayer(slog.Default(), test.transcoder, r.report)
			p.attach(test.sink)

			id := uuid.New()
			require.NoError(t, p.Play(id, audio()))

			outcome := r.next(t)
			assert.Equal(t, id, outcome.ID)
			assert.Error(t, outcome.Err)
			if test.expected != nil {
				assert.ErrorIs(t, outcome.Err, test.expected)
			}
		})
	}
}
