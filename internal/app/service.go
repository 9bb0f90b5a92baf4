// Package service wires the session engine together: session, catalog and
// preference state, the reaction pipeline, recommendations and the event bus.
// It implements the dependencies required by the HTTP and WebSocket layers.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/attune/internal/adapters/mq/bus"
	"github.com/okian/attune/internal/adapters/mq/queue"
	"github.com/okian/attune/internal/adapters/mq/worker"
	"github.com/okian/attune/internal/adapters/repository"
	"github.com/okian/attune/internal/domain/debounce"
	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/internal/domain/pipeline"
	"github.com/okian/attune/internal/domain/recommend"
	"github.com/okian/attune/internal/domain/session"
	"github.com/okian/attune/pkg/logger"
	"github.com/okian/attune/pkg/metrics"
)

// Service owns all engine state. Other components reach that state only
// through its methods.
type Service struct {
	mu sync.RWMutex

	// Long-lived state
	sessions *session.Store
	catalog  *repository.FeatureStore
	prefs    *repository.PreferenceStore
	stats    *repository.TrackStatsStore
	engine   *recommend.Engine
	pipeline *pipeline.Pipeline

	// Runtime components, rebuilt on every Start
	bus       *bus.Bus
	queue     *queue.Sharded
	pool      *worker.Pool
	refresher *pipeline.Refresher
	debouncer *debounce.Debouncer[string, model.ReactionJob]
	cancel    context.CancelFunc

	// Configuration
	workerCount        int
	queueSize          int
	reactionDebounce   time.Duration
	recommendDebounce  time.Duration
	maxRecommendations int
	peerCount          int
	weights            recommend.Weights
	catalogSource      repository.CatalogSource
	catalogSize        int
	reactionLog        pipeline.Sink
	now                func() time.Time

	started bool

	logger logger.Logger
}

// hooks forwards to whichever bus and refresher the running service has.
// Before Start (and after Stop) events are dropped.
type hooks struct {
	s *Service
}

func (h hooks) Publish(ctx context.Context, ev model.Event) error {
	h.s.mu.RLock()
	b := h.s.bus
	h.s.mu.RUnlock()
	if b == nil {
		return nil
	}
	return b.Publish(ctx, ev)
}

func (h hooks) Trigger(sessionID string, r model.Reaction) {
	h.s.mu.RLock()
	rf := h.s.refresher
	h.s.mu.RUnlock()
	if rf != nil {
		rf.Trigger(sessionID, r)
	}
}

// New constructs a Service. Call Start before submitting asynchronous
// reactions or subscribing to events.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:        runtime.NumCPU() * 2,
		queueSize:          4096,
		reactionDebounce:   300 * time.Millisecond,
		recommendDebounce:  500 * time.Millisecond,
		maxRecommendations: 10,
		peerCount:          5,
		weights:            recommend.DefaultWeights(),
		catalogSize:        500,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	h := hooks{s: s}
	s.sessions = session.NewStore(session.WithClock(s.now), session.WithPublisher(h))
	s.catalog = repository.NewFeatureStore()
	s.prefs = repository.NewPreferenceStore()
	s.stats = repository.NewTrackStatsStore()
	s.engine = recommend.New(s.catalog, s.prefs, s.sessions,
		recommend.WithWeights(s.weights),
		recommend.WithLimit(s.maxRecommendations),
		recommend.WithPeerCount(s.peerCount),
		recommend.WithClock(s.now),
	)
	s.pipeline = pipeline.New(s.sessions, s.prefs, s.stats, h,
		pipeline.WithSink(s.reactionLog),
		pipeline.WithTrigger(h),
		pipeline.WithAdvancer(s.engine, s.catalog),
		pipeline.WithClock(s.now),
	)
	return s
}

// Start loads the catalog and starts the bus, the reaction workers and the
// recommendation refresher.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting session engine...")

	if s.catalog.Len() == 0 {
		if err := s.loadCatalog(ctx); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.bus = bus.New()
	s.queue = queue.NewSharded(queue.WithShards(s.workerCount), queue.WithShardCapacity(s.queueSize))
	s.pool = worker.NewPool(s.queue, s.pipeline)
	s.pool.Start(runCtx)
	s.refresher = pipeline.NewRefresher(runCtx, s.engine.Refresh, hooks{s: s},
		pipeline.WithRefreshWindow(s.recommendDebounce),
		pipeline.WithRefresherClock(s.now),
	)
	q := s.queue
	s.debouncer = debounce.New[string, model.ReactionJob](s.reactionDebounce,
		func(_ string, job model.ReactionJob) { s.enqueue(runCtx, q, job) },
		debounce.WithOnSuperseded[string, model.ReactionJob](func(string) { metrics.RecordReactionDebounced() }),
		debounce.WithGroup[string, model.ReactionJob](func(_ string, job model.ReactionJob) string { return job.SessionID }),
	)

	s.started = true
	s.logger.Info(ctx, "session engine started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("tracks", s.catalog.Len()),
	)
	return nil
}

func (s *Service) loadCatalog(ctx context.Context) error {
	if s.catalogSource != nil {
		n, err := s.catalog.Load(ctx, s.catalogSource)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		if n > 0 {
			s.logger.Info(ctx, "catalog loaded", logger.Int("tracks", n))
			return nil
		}
		s.logger.Warn(ctx, "catalog source is empty, using synthetic catalog")
	}
	return s.catalog.Put(ctx, repository.SyntheticCatalog(s.catalogSize)...)
}

// Stop drains queued reactions and shuts the runtime components down.
// Pending debounced reactions are dropped.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	debouncer, pool, refresher, b, cancel := s.debouncer, s.pool, s.refresher, s.bus, s.cancel
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping session engine...")

	debouncer.Stop()
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	refresher.Stop()
	cancel()

	s.mu.Lock()
	s.bus, s.refresher, s.debouncer, s.pool, s.queue = nil, nil, nil, nil, nil
	s.mu.Unlock()
	if err := b.Close(); err != nil {
		s.logger.Warn(ctx, "bus close failed", logger.Error(err))
	}
	s.logger.Info(ctx, "session engine stopped")
}

// Serve runs the service until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// CreateSession starts a new session.
func (s *Service) CreateSession(ctx context.Context, settings model.SettingsPatch) (model.Session, error) {
	return s.sessions.Create(ctx, "", settings)
}

// JoinSession adds a participant.
func (s *Service) JoinSession(ctx context.Context, sessionID string, req model.JoinRequest) (model.Session, error) {
	sess, err := s.sessions.Join(ctx, sessionID, req)
	if err != nil {
		return model.Session{}, err
	}
	s.poke(sessionID)
	return sess, nil
}

// LeaveSession removes the participant on connectionID. Unknown connections
// are ignored. The last participant leaving ends the session.
func (s *Service) LeaveSession(ctx context.Context, sessionID, connectionID string) {
	s.CloseConnection(connectionID)
	left, ended := s.sessions.Leave(ctx, sessionID, connectionID)
	switch {
	case ended:
		s.release(sessionID)
	case left:
		s.poke(sessionID)
	}
}

// CloseConnection drops a connection's pending debounced reaction.
func (s *Service) CloseConnection(connectionID string) {
	s.mu.RLock()
	d := s.debouncer
	s.mu.RUnlock()
	if d != nil {
		d.Cancel(connectionID)
	}
}

// RecordReaction applies a reaction synchronously.
func (s *Service) RecordReaction(ctx context.Context, sessionID string, r model.Reaction) (model.Reaction, error) {
	out, err := s.pipeline.Record(ctx, sessionID, r)
	if err != nil {
		return model.Reaction{}, err
	}
	return out.Reaction, nil
}

// SubmitReaction queues a reaction from a live connection. Reactions from one
// connection arriving within the debounce window collapse into the latest.
// Surviving reactions of a session reach the queue in submission order.
// Malformed reactions and unknown sessions are rejected immediately.
func (s *Service) SubmitReaction(ctx context.Context, sessionID, connectionID string, r model.Reaction) error {
	if err := r.Validate(); err != nil {
		metrics.RecordReactionRejected("invalid")
		return err
	}
	if _, err := s.sessions.Metrics(ctx, sessionID); err != nil {
		return err
	}

	s.mu.RLock()
	d := s.debouncer
	s.mu.RUnlock()
	if d == nil {
		return ErrNotStarted
	}
	key := connectionID
	if key == "" {
		key = sessionID + "/" + r.ProfileID
	}
	d.Submit(key, model.ReactionJob{
		SessionID:    sessionID,
		ConnectionID: connectionID,
		Reaction:     r,
		EnqueuedAt:   s.now(),
	})
	return nil
}

func (s *Service) enqueue(ctx context.Context, q *queue.Sharded, job model.ReactionJob) {
	if err := q.Enqueue(ctx, job); err != nil {
		metrics.RecordReactionRejected("backpressure")
		s.logger.Warn(ctx, "reaction dropped",
			logger.String("session_id", job.SessionID),
			logger.String("connection_id", job.ConnectionID),
			logger.Error(err),
		)
	}
}

// UpdateCurrentTrack changes the playing track.
func (s *Service) UpdateCurrentTrack(ctx context.Context, sessionID string, track model.TrackPlay) (model.TrackPlay, error) {
	if track.TrackID == "" {
		return model.TrackPlay{}, fmt.Errorf("%w: empty track id", model.ErrTrackNotFound)
	}
	if (track.Title == "" || track.Artist == "") && s.catalog.Len() > 0 {
		if t, err := s.catalog.Track(ctx, track.TrackID); err == nil {
			if track.Title == "" {
				track.Title = t.Title
			}
			if track.Artist == "" {
				track.Artist = t.Artist
			}
		}
	}
	play, err := s.sessions.UpdateCurrentTrack(ctx, sessionID, track)
	if err != nil {
		return model.TrackPlay{}, err
	}
	s.stats.RecordPlay(ctx, track.TrackID)
	s.poke(sessionID)
	return play, nil
}

// GetRecommendations returns the merged list for a profile, or for the whole
// group when profileID is empty.
func (s *Service) GetRecommendations(ctx context.Context, sessionID, profileID string) ([]model.Recommendation, error) {
	return s.engine.Recommend(ctx, sessionID, profileID)
}

// GetMetrics returns live session metrics.
func (s *Service) GetMetrics(ctx context.Context, sessionID string) (model.Metrics, error) {
	return s.sessions.Metrics(ctx, sessionID)
}

// GetSession returns a session snapshot.
func (s *Service) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// EndSession ends a session and releases everything attached to it. It
// reports whether the session existed.
func (s *Service) EndSession(ctx context.Context, sessionID string) bool {
	if !s.sessions.End(ctx, sessionID) {
		return false
	}
	s.release(sessionID)
	return true
}

// release drops pending debounced reactions, cancels the refresher and
// closes bus subscriptions of an ended session.
func (s *Service) release(sessionID string) {
	s.mu.RLock()
	d, rf, b := s.debouncer, s.refresher, s.bus
	s.mu.RUnlock()
	if d != nil {
		d.CancelGroup(sessionID)
	}
	if rf != nil {
		rf.Cancel(sessionID)
	}
	if b != nil {
		b.CloseSession(sessionID)
	}
}

// PendingReactions returns how many debounced reactions of a session are
// still waiting for their window to close.
func (s *Service) PendingReactions(sessionID string) int {
	s.mu.RLock()
	d := s.debouncer
	s.mu.RUnlock()
	if d == nil {
		return 0
	}
	return d.PendingGroup(sessionID)
}

func (s *Service) poke(sessionID string) {
	s.mu.RLock()
	rf := s.refresher
	s.mu.RUnlock()
	if rf != nil {
		rf.Poke(sessionID)
	}
}

// Subscribe streams a session's events until ctx is done, the subscription
// is closed or the session ends.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (*bus.Subscription, error) {
	if _, err := s.sessions.Metrics(ctx, sessionID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	b := s.bus
	s.mu.RUnlock()
	if b == nil {
		return nil, ErrNotStarted
	}
	return b.Subscribe(ctx, sessionID)
}

// TrackStats returns cross-session statistics for a catalog track.
func (s *Service) TrackStats(ctx context.Context, trackID string) (model.TrackStats, error) {
	if _, err := s.catalog.Track(ctx, trackID); err != nil {
		st := s.stats.Stats(ctx, trackID)
		if st.Plays == 0 && st.Likes == 0 && st.Dislikes == 0 {
			return model.TrackStats{}, err
		}
		return st, nil
	}
	return s.stats.Stats(ctx, trackID), nil
}

// TopTracks returns the n most popular tracks.
func (s *Service) TopTracks(ctx context.Context, n int) []model.TrackStats {
	return s.stats.Top(ctx, n)
}

// Track returns a catalog track.
func (s *Service) Track(ctx context.Context, trackID string) (model.Track, error) {
	return s.catalog.Track(ctx, trackID)
}

// IsNotFound reports whether err means a missing session or track.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrSessionNotFound) || errors.Is(err, model.ErrTrackNotFound)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions, participants := s.sessions.Counts()
	stats := map[string]interface{}{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"sessions":     sessions,
		"participants": participants,
		"tracks":       s.catalog.Len(),
		"profiles":     s.prefs.Count(),
	}
	if s.started {
		stats["queueLength"] = s.queue.Len()
		stats["processed"] = s.pool.Processed()
		stats["subscribers"] = s.bus.Subscribers()
		stats["pendingRefreshes"] = s.refresher.Pending()
		metrics.UpdateQueueSize(s.queue.Len())
	}
	return stats
}
