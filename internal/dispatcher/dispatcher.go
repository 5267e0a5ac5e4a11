// Package dispatcher manages worker fan-out over the session queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/worker"
)

// ErrUnavailable means the queue cannot take another session right now.
var ErrUnavailable = errors.New("session queue unavailable")

// nonBlocking is implemented by queues that can reject instead of wait.
type nonBlocking interface {
	TryEnqueue(item crawler.QueueItem) error
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Submit enqueues without waiting for room when the queue allows it. A full
// or closed queue yields ErrUnavailable.
func (d *Dispatcher) Submit(ctx context.Context, item crawler.QueueItem) error {
	q, ok := d.queue.(nonBlocking)
	if !ok {
		return d.Enqueue(ctx, item)
	}
	if err := q.TryEnqueue(item); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Workers reports the pool size.
func (d *Dispatcher) Workers() int {
	return len(d.workers)
}

// Active reports how many workers are running a session.
func (d *Dispatcher) Active() int {
	n := 0
	for _, w := range d.workers {
		if w.Busy() {
			n++
		}
	}
	return n
}
