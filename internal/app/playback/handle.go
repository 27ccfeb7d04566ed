package playback

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Handle is the completion of one playback request. It settles exactly once:
// with nil when the clip finished or was skipped, otherwise with the reason it never played out.
type Handle struct {
	id uuid.UUID

	done chan struct{}
	err  error
	once sync.Once
}

func newHandle(id uuid.UUID) *Handle {
	return &Handle{
		id:   id,
		done: make(chan struct{}),
	}
}

func (h *Handle) ID() uuid.UUID {
	return h.id
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err is nil until Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) settle(err error) bool {
	settled := false
	h.once.Do(func() {
		h.err = err
		close(h.done)
		settled = true
	})
	return settled
}
