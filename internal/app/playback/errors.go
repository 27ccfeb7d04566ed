package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed rejects requests still queued or playing when their session is torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrQueueCleared rejects requests removed from the queue before they started playing.
	ErrQueueCleared = errors.New("removed from queue")

	errNoAudio = errors.New("no audio")
)

// PlayerError is a playback failure reported by the voice platform.
type PlayerError struct {
	Err error
}

func (e *PlayerError) Error() string {
	return fmt.Sprintf("playback failed: %v", e.Err)
}

func (e *PlayerError) Unwrap() error {
	return e.Err
}
