package playback

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// Outcome is what a player reports once a clip ends. A nil Err means it finished.
type Outcome struct {
	ID  uuid.UUID
	Err error
}

type ReportFunc func(Outcome)

// Player plays one clip at a time on a voice connection.
//
// Play must return without waiting for the clip and must not call the report
// func before returning. It owns audio only when it returns nil. Stop must not
// block on the clip's goroutine; the outcome of a stopped clip is still
// reported, with a nil Err.
type Player interface {
	Play(id uuid.UUID, audio io.ReadCloser) error
	Stop(id uuid.UUID)
}

type Option func(q *Queue)

// WithObserver registers fn to receive every event of the queue. fn must not call back into the queue.
func WithObserver(fn func(Event)) Option {
	return func(q *Queue) {
		q.observers = append(q.observers, fn)
	}
}

type request struct {
	id     uuid.UUID
	text   string
	audio  *Audio
	handle *Handle

	enqueuedAt time.Time
	playing    bool
}

// Queue serializes playback for one session: requests play one at a time in
// the order they were enqueued.
type Queue struct {
	logger *slog.Logger
	tenant string
	player Player

	lock    sync.Mutex
	state   State
	current *request
	pending []*request
	closed  bool

	observers []func(Event)
	outbox    []Event
	emitLock  sync.Mutex
}

func NewQueue(logger *slog.Logger, tenant string, newPlayer func(report ReportFunc) Player, opts ...Option) *Queue {
	q := &Queue{
		logger: logger,
		tenant: tenant,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.player = newPlayer(q.Report)

	return q
}

func (q *Queue) Player() Player {
	return q.player
}

// Enqueue appends a request and starts it right away when the queue is idle.
// It never fails directly; a closed queue returns a handle already rejected with ErrSessionClosed.
func (q *Queue) Enqueue(text string, audio *Audio) *Handle {
	req := &request{
		id:         uuid.New(),
		text:       text,
		audio:      audio,
		enqueuedAt: time.Now(),
	}
	req.handle = newHandle(req.id)

	q.lock.Lock()

	if q.closed {
		q.lock.Unlock()

		audio.discard()
		req.handle.settle(ErrSessionClosed)
		metrics.Requests.WithLabelValues("closed").Inc()

		return req.handle
	}

	q.pending = append(q.pending, req)
	q.record(EventQueued, req, nil)

	if q.state == Idle {
		q.advanceLocked()
	}

	q.updatePendingLocked()
	q.lock.Unlock()

	q.flush()

	return req.handle
}

// Report feeds a player outcome into the queue. Outcomes for anything but the
// current request are stale and ignored.
func (q *Queue) Report(outcome Outcome) {
	q.lock.Lock()

	req := q.current
	if req == nil || req.id != outcome.ID || !req.playing {
		q.lock.Unlock()
		q.logger.Debug("Ignoring stale playback outcome", "tenant", q.tenant, "id", outcome.ID)
		return
	}

	var err error
	if outcome.Err != nil {
		var playerErr *PlayerError
		if errors.As(outcome.Err, &playerErr) {
			err = outcome.Err
		} else {
			err = &PlayerError{Err: outcome.Err}
		}
		q.logger.Warn("Playback failed", "tenant", q.tenant, "id", req.id, "err", err)
	}

	q.finishLocked(req, err)
	q.advanceLocked()
	q.updatePendingLocked()

	q.lock.Unlock()

	q.flush()
}

// Skip stops the current request, which then finishes normally and lets the
// queue advance. A request still waiting for its audio is resolved in place.
func (q *Queue) Skip() bool {
	q.lock.Lock()

	req := q.current
	if req == nil {
		q.lock.Unlock()
		return false
	}

	if !req.playing {
		req.audio.discard()
		q.finishLocked(req, nil)
		q.advanceLocked()
		q.updatePendingLocked()

		q.lock.Unlock()
		q.flush()

		return true
	}

	q.lock.Unlock()

	q.player.Stop(req.id)

	return true
}

// Clear rejects every pending request with ErrQueueCleared. The current request keeps playing.
func (q *Queue) Clear() int {
	q.lock.Lock()

	cleared := q.pending
	q.pending = nil

	for _, req := range cleared {
		req.audio.discard()
		q.settleLocked(req, ErrQueueCleared)
	}

	q.updatePendingLocked()
	q.lock.Unlock()

	q.flush()

	return len(cleared)
}

// StopAll clears the pending requests and then skips the current one.
func (q *Queue) StopAll() int {
	cleared := q.Clear()
	q.Skip()
	return cleared
}

// Close rejects everything queued or playing with ErrSessionClosed and refuses new requests.
func (q *Queue) Close() {
	q.lock.Lock()

	if q.closed {
		q.lock.Unlock()
		return
	}
	q.closed = true

	var stopID uuid.UUID
	var stop bool

	if req := q.current; req != nil {
		if req.playing {
			stopID, stop = req.id, true
		}
		req.audio.discard()
		q.settleLocked(req, ErrSessionClosed)
	}

	for _, req := range q.pending {
		req.audio.discard()
		q.settleLocked(req, ErrSessionClosed)
	}

	q.current = nil
	q.pending = nil
	q.state = Idle

	metrics.Pending.DeleteLabelValues(q.tenant)

	q.lock.Unlock()

	if stop {
		q.player.Stop(stopID)
	}

	q.flush()
}

type Item struct {
	ID         uuid.UUID `json:"id"`
	Text       string    `json:"text"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	AudioReady bool      `json:"audio_ready"`
	Playing    bool      `json:"playing"`
}

type Snapshot struct {
	State   State  `json:"-"`
	Closed  bool   `json:"closed"`
	Current *Item  `json:"current,omitempty"`
	Pending []Item `json:"pending"`
}

func (q *Queue) Snapshot() Snapshot {
	q.lock.Lock()
	defer q.lock.Unlock()

	snap := Snapshot{
		State:   q.state,
		Closed:  q.closed,
		Pending: make([]Item, 0, len(q.pending)),
	}

	if q.current != nil {
		item := q.current.item()
		snap.Current = &item
	}

	for _, req := range q.pending {
		snap.Pending = append(snap.Pending, req.item())
	}

	return snap
}

func (r *request) item() Item {
	return Item{
		ID:         r.id,
		Text:       r.text,
		EnqueuedAt: r.enqueuedAt,
		AudioReady: r.audio.isReady(),
		Playing:    r.playing,
	}
}

// advanceLocked starts the next pending request, or goes idle when none is left.
// Requests whose audio or playback fails immediately are rejected and skipped over.
func (q *Queue) advanceLocked() {
	for {
		if len(q.pending) == 0 {
			q.state = Idle
			q.current = nil
			return
		}

		req := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]

		q.state = Playing
		q.current = req

		if !req.audio.isReady() {
			go q.awaitAudio(req)
			return
		}

		if q.startLocked(req) {
			return
		}
	}
}

func (q *Queue) awaitAudio(req *request) {
	<-req.audio.Ready()

	q.lock.Lock()

	// skipped, cleared or closed while synthesizing
	if q.current != req {
		q.lock.Unlock()
		return
	}

	if !q.startLocked(req) {
		q.advanceLocked()
	}

	q.updatePendingLocked()
	q.lock.Unlock()

	q.flush()
}

func (q *Queue) startLocked(req *request) bool {
	stream, err := req.audio.take()
	if err != nil {
		q.logger.Warn("Audio for request unavailable", "tenant", q.tenant, "id", req.id, "err", err)
		q.finishLocked(req, err)
		return false
	}

	if err := q.player.Play(req.id, stream); err != nil {
		closeStream(stream)

		playerErr := &PlayerError{Err: err}
		q.logger.Warn("Playback failed to start", "tenant", q.tenant, "id", req.id, "err", playerErr)
		q.finishLocked(req, playerErr)
		return false
	}

	req.playing = true
	metrics.WaitTime.Observe(time.Since(req.enqueuedAt).Seconds())
	q.record(EventStarted, req, nil)

	return true
}

func (q *Queue) finishLocked(req *request, err error) {
	q.settleLocked(req, err)
	if q.current == req {
		q.current = nil
	}
}

func (q *Queue) settleLocked(req *request, err error) {
	if !req.handle.settle(err) {
		return
	}

	eventType, result := outcomeEvent(err)
	metrics.Requests.WithLabelValues(result).Inc()
	q.record(eventType, req, err)
}

func (q *Queue) updatePendingLocked() {
	if q.closed {
		return
	}
	metrics.Pending.WithLabelValues(q.tenant).Set(float64(len(q.pending)))
}

func (q *Queue) record(eventType EventType, req *request, err error) {
	if len(q.observers) == 0 {
		return
	}

	event := Event{
		Tenant:    q.tenant,
		Type:      eventType,
		RequestID: req.id,
		Text:      req.text,
	}
	if err != nil {
		event.Error = err.Error()
	}

	q.outbox = append(q.outbox, event)
}

// flush hands recorded events to observers outside the queue lock, in the order they were recorded.
func (q *Queue) flush() {
	q.emitLock.Lock()
	defer q.emitLock.Unlock()

	for {
		q.lock.Lock()
		events := q.outbox
		q.outbox = nil
		q.lock.Unlock()

		if len(events) == 0 {
			return
		}

		for _, event := range events {
			for _, observer := range q.observers {
				observer(event)
			}
		}
	}
}
