package pubsub

import "sync"

// PubSub fans messages out to per-topic subscribers. Topics exist while they have subscribers.
type PubSub struct {
	topics map[string]*topic

	lock sync.Mutex
}

func New() *PubSub {
	return &PubSub{
		topics: make(map[string]*topic),
	}
}

// Publish calls every subscriber of topic synchronously, outside any pubsub lock.
func (p *PubSub) Publish(topic string, message any) {
	p.lock.Lock()
	t, ok := p.topics[topic]
	p.lock.Unlock()

	if !ok {
		return
	}

	t.publish(message)
}

func (p *PubSub) Subscribe(topic string, handler func(message any)) (unsub func()) {
	p.lock.Lock()
	defer p.lock.Unlock()

	t, ok := p.topics[topic]
	if !ok {
		t = newTopic()
		p.topics[topic] = t
	}

	id := t.subscribe(handler)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.lock.Lock()
			defer p.lock.Unlock()

			if t.unsubscribe(id) == 0 && p.topics[topic] == t {
				delete(p.topics, topic)
			}
		})
	}
}

func (p *PubSub) Subscribers(topic string) int {
	p.lock.Lock()
	t, ok := p.topics[topic]
	p.lock.Unlock()

	if !ok {
		return 0
	}

	return t.len()
}
