package playback

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestHandleSettlesOnce(t *testing.T) {
	assert := assert.New(t)

	h := newHandle(uuid.New())
	assert.Nil(h.Err())

	first := errors.New("first")
	assert.True(h.settle(first))
	assert.False(h.settle(nil))
	assert.False(h.settle(errors.New("second")))

	assert.ErrorIs(h.Err(), first)
	assert.ErrorIs(h.Wait(context.Background()), first)
}

func TestHandleWaitContext(t *testing.T) {
	h := newHandle(uuid.New())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
}

func TestAudioTakeAfterResolve(t *testing.T) {
	assert := assert.New(t)

	a := NewAudio()
	assert.False(a.isReady())

	a.Resolve(io.NopCloser(strings.NewReader("wav")), nil)
	assert.True(a.isReady())

	stream, err := a.take()
	assert.NoError(err)
	assert.NotNil(stream)

	// ownership moved to the caller, discarding must not touch it
	a.discard()
}

func TestAudioResolvedWithNothing(t *testing.T) {
	a := Stream(nil)

	_, err := a.take()
	assert.ErrorIs(t, err, errNoAudio)
}
