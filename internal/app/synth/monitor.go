package synth

import (
	"context"
	"log/slog"
	"time"

	immediateticker "quotespeak/pkg/immediate_ticker"
)

// BudgetMonitor periodically re-checks the external budget so the local engine
// is stopped even while nobody is requesting speech.
type BudgetMonitor struct {
	logger   *slog.Logger
	router   *Router
	interval time.Duration
}

func NewBudgetMonitor(logger *slog.Logger, router *Router, interval time.Duration) *BudgetMonitor {
	return &BudgetMonitor{
		logger:   logger,
		router:   router,
		interval: interval,
	}
}

// Run checks immediately, then every interval until ctx is done.
func (m *BudgetMonitor) Run(ctx context.Context) error {
	ticker := immediateticker.New(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.router.Reconcile(ctx); err != nil {
				m.logger.Warn("Budget check failed", "err", err)
			}
		}
	}
}
