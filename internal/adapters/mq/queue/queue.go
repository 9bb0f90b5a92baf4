// Package queue buffers reaction jobs between the connection layer and the
// pipeline workers.
//
// Jobs are sharded by session, so a single consumer per shard sees every
// session's reactions in submission order.
package queue

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 4096
	defaultShardCount    = 8
)

// Job is the payload type flowing through the queue.
type Job = model.ReactionJob

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job; it fails with ErrFull or ErrClosed instead of blocking.
	Enqueue(ctx context.Context, j Job) error

	// Dequeue returns the channel jobs are delivered on. It is closed once
	// the queue is closed and drained.
	Dequeue() <-chan Job

	Len() int
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the job channel.
func (q *InMemoryQueue) Dequeue() <-chan Job {
	return q.jobs
}

// Len returns the number of buffered jobs.
func (q *InMemoryQueue) Len() int {
	return len(q.jobs)
}

// Close stops accepting jobs. Buffered jobs remain readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Sharded spreads jobs over several queues keyed by session id.
type Sharded struct {
	shardCount    int
	shardCapacity int
	shards        []*InMemoryQueue
}

// NewSharded creates a sharded queue.
func NewSharded(opts ...ShardedOption) *Sharded {
	s := &Sharded{shardCount: defaultShardCount, shardCapacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*InMemoryQueue, s.shardCount)
	for i := range s.shards {
		s.shards[i] = NewInMemoryQueue(WithCapacity(s.shardCapacity))
	}
	metrics.UpdateQueueCapacity(s.shardCount * s.shardCapacity)
	metrics.UpdateQueueSize(0)
	return s
}

// ShardFor returns the shard index that owns sessionID.
func (s *Sharded) ShardFor(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(s.shards)))
}

// Enqueue routes j to its session's shard.
func (s *Sharded) Enqueue(ctx context.Context, j Job) error {
	err := s.shards[s.ShardFor(j.SessionID)].Enqueue(ctx, j)
	metrics.UpdateQueueSize(s.Len())
	return err
}

// Shards returns the number of shards.
func (s *Sharded) Shards() int {
	return len(s.shards)
}

// Shard returns shard i.
func (s *Sharded) Shard(i int) Queue {
	return s.shards[i]
}

// Len returns the jobs buffered across all shards.
func (s *Sharded) Len() int {
	n := 0
	for _, q := range s.shards {
		n += q.Len()
	}
	return n
}

// Close closes every shard.
func (s *Sharded) Close() error {
	for _, q := range s.shards {
		_ = q.Close()
	}
	return nil
}
