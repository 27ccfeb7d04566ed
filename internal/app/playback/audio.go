package playback

import (
	"io"
	"sync"
)

// Audio is the stream a request will play, possibly still being synthesized.
// It is resolved once; streams arriving after it was resolved or discarded are closed.
type Audio struct {
	lock sync.Mutex

	ready     chan struct{}
	resolved  bool
	discarded bool

	stream io.ReadCloser
	err    error
}

// NewAudio returns an unresolved Audio to be filled in with Resolve.
func NewAudio() *Audio {
	return &Audio{
		ready: make(chan struct{}),
	}
}

// Stream returns Audio that is ready to play.
func Stream(stream io.ReadCloser) *Audio {
	a := NewAudio()
	a.Resolve(stream, nil)
	return a
}

// Failed returns Audio whose synthesis already failed.
func Failed(err error) *Audio {
	a := NewAudio()
	a.Resolve(nil, err)
	return a
}

func (a *Audio) Resolve(stream io.ReadCloser, err error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.resolved {
		closeStream(stream)
		return
	}

	a.resolved = true
	a.stream, a.err = stream, err
	close(a.ready)
}

func (a *Audio) Ready() <-chan struct{} {
	return a.ready
}

// discard releases the stream and makes Ready fire for anyone still waiting.
func (a *Audio) discard() {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.discarded {
		return
	}
	a.discarded = true

	if !a.resolved {
		a.resolved = true
		close(a.ready)
		return
	}

	closeStream(a.stream)
	a.stream = nil
}

// take hands the stream over to the caller. Only valid once Ready fired.
func (a *Audio) take() (io.ReadCloser, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	stream, err := a.stream, a.err
	a.stream = nil
	a.discarded = true

	if err == nil && stream == nil {
		return nil, errNoAudio
	}

	return stream, err
}

func (a *Audio) isReady() bool {
	select {
	case <-a.ready:
		return true
	default:
		return false
	}
}

func closeStream(stream io.ReadCloser) {
	if stream != nil {
		_ = stream.Close()
	}
}
