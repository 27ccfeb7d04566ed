package pubsub

import (
	"sync"

	"github.com/google/uuid"
)

type topic struct {
	subscribers map[uuid.UUID]func(msg any)

	lock sync.RWMutex
}

func newTopic() *topic {
	return &topic{
		subscribers: make(map[uuid.UUID]func(msg any)),
	}
}

func (t *topic) publish(msg any) {
	t.lock.RLock()
	handlers := make([]func(msg any), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		handlers = append(handlers, fn)
	}
	t.lock.RUnlock()

	for _, fn := range handlers {
		fn(msg)
	}
}

func (t *topic) subscribe(fn func(msg any)) uuid.UUID {
	t.lock.Lock()
	defer t.lock.Unlock()

	id := uuid.New()
	t.subscribers[id] = fn

	return id
}

// unsubscribe returns how many subscribers are left.
func (t *topic) unsubscribe(id uuid.UUID) int {
	t.lock.Lock()
	defer t.lock.Unlock()

	delete(t.subscribers, id)

	return len(t.subscribers)
}

func (t *topic) len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return len(t.subscribers)
}
