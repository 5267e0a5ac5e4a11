package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/store"
)

// StatsSource produces the dashboard counters.
type StatsSource interface {
	DashboardStats(ctx context.Context, now time.Time) (store.DashboardStats, error)
}

// StatsMessage is the "stats_update" frame.
type StatsMessage struct {
	Type      string               `json:"type"`
	Data      store.DashboardStats `json:"data"`
	Timestamp time.Time            `json:"timestamp"`
}

// RunStats broadcasts stats_update every interval while clients are
// connected. After a failed query it waits onError instead.
func (h *Hub) RunStats(ctx context.Context, src StatsSource, interval, onError time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if onError <= 0 {
		onError = 2 * interval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		next := interval
		if h.Clients() > 0 {
			if err := h.broadcastStats(ctx, src); err != nil {
				if ctx.Err() != nil {
					return
				}
				h.logger.Warn("dashboard stats failed", zap.Error(err))
				next = onError
			}
		}
		timer.Reset(next)
	}
}

func (h *Hub) broadcastStats(ctx context.Context, src StatsSource) error {
	now := h.clock.Now()
	stats, err := src.DashboardStats(ctx, now)
	if err != nil {
		return err
	}
	h.Broadcast(StatsMessage{Type: "stats_update", Data: stats, Timestamp: now})
	return nil
}
