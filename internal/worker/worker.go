// Package worker implements the crawl session consumer loop.
package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/crawler"
	queueMemory "github.com/osvhub/osv-discovery/internal/queue/memory"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// SessionRunner executes one crawl session to completion.
type SessionRunner interface {
	Run(ctx context.Context, item crawler.QueueItem) vessel.CrawlSession
}

// Config controls Worker behavior.
type Config struct {
	// SessionTimeout caps one session. Zero means no limit.
	SessionTimeout time.Duration
}

// Worker consumes queue items and runs them as crawl sessions.
type Worker struct {
	queue  crawler.Queue
	runner SessionRunner
	clock  crawler.Clock
	cfg    Config
	logger *zap.Logger
	busy   atomic.Bool
}

// New constructs a Worker.
func New(
	queue crawler.Queue,
	runner SessionRunner,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		runner: runner,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Busy reports whether a session is running on this worker.
func (w *Worker) Busy() bool {
	return w.busy.Load()
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queueMemory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued session", zap.String("session_id", item.SessionID))
		w.processSession(ctx, item)
	}
}

func (w *Worker) processSession(ctx context.Context, item crawler.QueueItem) {
	logger := w.logger.With(zap.String("session_id", item.SessionID))
	if w.runner == nil {
		logger.Error("no session runner configured")
		return
	}
	w.busy.Store(true)
	defer w.busy.Store(false)

	if item.Submitted > 0 && w.clock != nil {
		waited := w.clock.Now().Sub(time.Unix(item.Submitted, 0))
		logger.Info("session starting",
			zap.String("session_type", string(item.Options.Type)),
			zap.Duration("queued_for", waited),
			zap.Int("attempt", item.Attempt),
		)
	}

	runCtx, span := otel.Tracer("osv-discovery/worker").Start(ctx, "crawl_session")
	span.SetAttributes(
		attribute.String("session.id", item.SessionID),
		attribute.String("session.type", string(item.Options.Type)),
	)
	defer span.End()
	if w.cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, w.cfg.SessionTimeout)
		defer cancel()
	}

	sess := w.runner.Run(runCtx, item)
	span.SetAttributes(
		attribute.String("session.status", string(sess.Status)),
		attribute.Int("session.vessels_found", sess.VesselsFound),
	)
	logger.Info("session processed",
		zap.String("status", string(sess.Status)),
		zap.Int("vessels_found", sess.VesselsFound),
		zap.Int("errors", sess.ErrorsCount),
	)
}
