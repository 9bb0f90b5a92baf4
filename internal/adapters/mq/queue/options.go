package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of buffered jobs.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// ShardedOption configures a Sharded queue.
type ShardedOption func(*Sharded)

// WithShards sets the number of shards.
func WithShards(n int) ShardedOption {
	return func(s *Sharded) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithShardCapacity sets the capacity of every shard.
func WithShardCapacity(capacity int) ShardedOption {
	return func(s *Sharded) {
		if capacity > 0 {
			s.shardCapacity = capacity
		}
	}
}
