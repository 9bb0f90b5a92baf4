// Package reactionlog durably records accepted reactions in badger.
//
// Writes go through a circuit breaker. After repeated failures appends are
// refused with ErrWrite until the breaker half-opens.
package reactionlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/pkg/logger"
	"github.com/okian/attune/pkg/metrics"
)

const (
	keyPrefix = "reaction:"

	defaultFailureThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
	breakerHalfOpenRequests = 1
)

// Entry is one logged reaction.
type Entry struct {
	SessionID  string         `json:"sessionId"`
	Reaction   model.Reaction `json:"reaction"`
	RecordedAt time.Time      `json:"recordedAt"`
}

// BadgerLog appends reactions to a badger database keyed by session and time.
type BadgerLog struct {
	db *badger.DB
	cb *gobreaker.CircuitBreaker[interface{}]

	inMemory         bool
	syncWrites       bool
	failureThreshold uint32
	breakerTimeout   time.Duration

	seq    atomic.Uint64
	mu     sync.RWMutex
	closed bool

	log logger.Logger
}

// Open opens (or creates) the log in dir.
func Open(_ context.Context, dir string, opts ...Option) (*BadgerLog, error) {
	l := &BadgerLog{
		failureThreshold: defaultFailureThreshold,
		breakerTimeout:   defaultBreakerTimeout,
		log:              logger.Named("reactionlog"),
	}
	for _, opt := range opts {
		opt(l)
	}

	bopts := badger.DefaultOptions(dir).
		WithSyncWrites(l.syncWrites).
		WithLogger(badgerLogger{log: l.log})
	if l.inMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	l.db = db

	l.cb = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "reactionlog",
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     l.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= l.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateReactionLogBreakerState(int(to))
			l.log.Warn(context.Background(), "reaction log breaker changed state",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	metrics.UpdateReactionLogBreakerState(int(gobreaker.StateClosed))
	return l, nil
}

// Append records r for sessionID.
func (l *BadgerLog) Append(ctx context.Context, sessionID string, r model.Reaction) error {
	_, err := l.cb.Execute(func() (interface{}, error) {
		return nil, l.write(ctx, sessionID, r)
	})
	if err != nil {
		metrics.RecordReactionLogFailure()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
		return err
	}
	metrics.RecordReactionLogWrite()
	return nil
}

func (l *BadgerLog) write(_ context.Context, sessionID string, r model.Reaction) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	now := time.Now().UTC()
	data, err := json.Marshal(Entry{SessionID: sessionID, Reaction: r, RecordedAt: now})
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrWrite, err)
	}
	key := entryKey(sessionID, r.Timestamp, l.seq.Add(1))
	if err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// entryKey orders a session's entries by reaction time, then append order.
func entryKey(sessionID string, at time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%010d", keyPrefix, sessionID, at.UnixNano(), seq))
}

// Session returns the logged reactions of a session in order.
func (l *BadgerLog) Session(_ context.Context, sessionID string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}

	prefix := []byte(keyPrefix + sessionID + ":")
	var out []Entry
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	return out, nil
}

// Count returns the number of logged reactions.
func (l *BadgerLog) Count(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, ErrClosed
	}

	n := 0
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// State reports the breaker state: closed, half-open or open.
func (l *BadgerLog) State() string {
	return l.cb.State().String()
}

// Close flushes and closes the database.
func (l *BadgerLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
