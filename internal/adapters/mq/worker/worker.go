// Package worker runs the goroutines that drain reaction queues into the
// pipeline.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/attune/internal/adapters/mq/queue"
	"github.com/okian/attune/pkg/logger"
	"github.com/okian/attune/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Processor handles one reaction job.
type Processor interface {
	Process(ctx context.Context, job queue.Job) error
}

// Source hands out a queue per worker.
type Source interface {
	Shards() int
	Shard(i int) queue.Queue
}

// InMemoryWorker drains one queue, one job at a time.
type InMemoryWorker struct {
	queue     queue.Queue
	processor Processor
	name      string

	processed atomic.Int64
	done      chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from q.
func NewInMemoryWorker(q queue.Queue, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		name:      "worker",
		done:      make(chan struct{}),
		logger:    logger.Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes jobs until the queue is closed and drained or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "error processing reaction",
					logger.String("session_id", job.SessionID),
					logger.String("track_id", job.Reaction.TrackID),
					logger.Error(err),
				)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// Processed returns how many jobs the worker has handled.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing reaction: %v", r)
		}
		if err != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "process_error")
		}
	}()
	w.processed.Add(1)
	return w.processor.Process(ctx, job)
}

// Pool runs one worker per shard of a Source.
type Pool struct {
	source          Source
	workers         []*InMemoryWorker
	shutdownTimeout time.Duration
	started         atomic.Bool

	logger logger.Logger
}

// NewPool creates a pool with a worker bound to each shard.
func NewPool(src Source, p Processor, opts ...PoolOption) *Pool {
	pool := &Pool{
		source:          src,
		workers:         make([]*InMemoryWorker, src.Shards()),
		shutdownTimeout: poolShutdownTimeout,
		logger:          logger.Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(pool)
	}
	for i := range pool.workers {
		pool.workers[i] = NewInMemoryWorker(src.Shard(i), p, WithName("worker-"+strconv.Itoa(i)))
	}
	return pool
}

// Start launches the workers. Later calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns the total jobs handled by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Shutdown closes the source queues when they support it and waits for the
// workers to drain what is left.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !p.started.Load() {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, p.shutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
