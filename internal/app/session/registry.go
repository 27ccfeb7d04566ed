package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quotespeak/internal/app/playback"

	"golang.org/x/sync/singleflight"
)

// Registry holds at most one Session per tenant.
type Registry struct {
	logger   *slog.Logger
	platform Platform

	queueOpts []playback.Option

	lock     sync.RWMutex
	sessions map[string]*Session

	joins singleflight.Group
}

func NewRegistry(logger *slog.Logger, platform Platform, queueOpts ...playback.Option) *Registry {
	return &Registry{
		logger:    logger,
		platform:  platform,
		queueOpts: queueOpts,
		sessions:  make(map[string]*Session),
	}
}

func (r *Registry) Get(tenantID string) (*Session, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	s, ok := r.sessions[tenantID]
	return s, ok
}

// GetOrCreate returns the tenant's session, joining channelID first when there is none.
// Concurrent calls for one tenant share a single join.
func (r *Registry) GetOrCreate(ctx context.Context, tenantID, channelID string) (*Session, error) {
	if s, ok := r.Get(tenantID); ok {
		return s, nil
	}

	v, err, _ := r.joins.Do(tenantID, func() (any, error) {
		if s, ok := r.Get(tenantID); ok {
			return s, nil
		}

		conn, err := r.platform.Join(ctx, tenantID, channelID)
		if err != nil {
			metrics.Joins.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to join channel %s: %w", channelID, err)
		}

		s := &Session{
			tenantID:  tenantID,
			conn:      conn,
			createdAt: time.Now(),
		}
		s.queue = playback.NewQueue(r.logger.WithGroup("queue"), tenantID, func(report playback.ReportFunc) playback.Player {
			return r.platform.NewPlayer(tenantID, report)
		}, r.queueOpts...)

		if err := s.ensureSubscribed(); err != nil {
			r.logger.Warn("Failed to subscribe player", "tenant", tenantID, "err", err)
		}

		r.lock.Lock()
		r.sessions[tenantID] = s
		metrics.Sessions.Set(float64(len(r.sessions)))
		r.lock.Unlock()

		metrics.Joins.WithLabelValues("ok").Inc()
		r.logger.Info("Session created", "tenant", tenantID, "channel", channelID)

		return s, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Session), nil
}

// Remove tears the session down: anything queued or playing is rejected with
// playback.ErrSessionClosed and the voice connection is destroyed.
func (r *Registry) Remove(tenantID string) bool {
	r.lock.Lock()
	s, ok := r.sessions[tenantID]
	delete(r.sessions, tenantID)
	metrics.Sessions.Set(float64(len(r.sessions)))
	r.lock.Unlock()

	if !ok {
		return false
	}

	s.queue.Close()

	if err := s.conn.Destroy(); err != nil {
		r.logger.Warn("Failed to destroy voice connection", "tenant", tenantID, "err", err)
	}

	r.logger.Info("Session removed", "tenant", tenantID)

	return true
}

func (r *Registry) CloseAll() {
	r.lock.RLock()
	tenants := make([]string, 0, len(r.sessions))
	for tenantID := range r.sessions {
		tenants = append(tenants, tenantID)
	}
	r.lock.RUnlock()

	for _, tenantID := range tenants {
		r.Remove(tenantID)
	}
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.sessions)
}
