package immediateticker

import (
	"sync"
	"time"
)

// ImmediateTicker behaves like time.Ticker but also delivers a tick right away.
// Like time.Ticker it drops ticks for slow receivers instead of queueing them.
type ImmediateTicker struct {
	C <-chan time.Time

	t    *time.Ticker
	done chan struct{}
	once sync.Once
}

func New(interval time.Duration) *ImmediateTicker {
	aggregated := make(chan time.Time, 1)
	aggregated <- time.Now()

	it := &ImmediateTicker{
		C:    aggregated,
		t:    time.NewTicker(interval),
		done: make(chan struct{}),
	}

	go func() {
		for {
			select {
			case tickTime := <-it.t.C:
				select {
				case aggregated <- tickTime:
				default:
				}
			case <-it.done:
				return
			}
		}
	}()

	return it
}

func (it *ImmediateTicker) Stop() {
	it.t.Stop()
	it.once.Do(func() { close(it.done) })
}

func (it *ImmediateTicker) Reset(interval time.Duration) {
	it.t.Reset(interval)
}
