package synth_test

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"quotespeak/internal/app/synth"
	"quotespeak/pkg/ttsquest"

	"github.com/stretchr/testify/mock"
)

var (
	_ synth.ContainerController = &mockController{}
	_ synth.ExternalClient      = &mockExternal{}
	_ synth.LocalClient         = &mockLocal{}
)

type mockController struct {
	mock.Mock
}

func (c *mockController) Start(ctx context.Context, name string) error {
	args := c.Called(ctx, name)
	return args.Error(0)
}

func (c *mockController) Stop(ctx context.Context, name string) error {
	args := c.Called(ctx, name)
	return args.Error(0)
}

type mockExternal struct {
	mock.Mock
}

func (e *mockExternal) Points(ctx context.Context) (*ttsquest.Points, error) {
	args := e.Called(ctx)
	points, _ := args.Get(0).(*ttsquest.Points)
	return points, args.Error(1)
}

func (e *mockExternal) Synthesize(ctx context.Context, req *ttsquest.Request) (io.ReadCloser, error) {
	args := e.Called(ctx, req)
	audio, _ := args.Get(0).(io.ReadCloser)
	return audio, args.Error(1)
}

type mockLocal struct {
	mock.Mock
}

func (l *mockLocal) AudioQuery(ctx context.Context, text string, speaker int) (json.RawMessage, error) {
	args := l.Called(ctx, text, speaker)
	plan, _ := args.Get(0).(json.RawMessage)
	return plan, args.Error(1)
}

func (l *mockLocal) Synthesis(ctx context.Context, plan json.RawMessage, speaker int) (io.ReadCloser, error) {
	args := l.Called(ctx, plan, speaker)
	audio, _ := args.Get(0).(io.ReadCloser)
	return audio, args.Error(1)
}

func audio(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}
