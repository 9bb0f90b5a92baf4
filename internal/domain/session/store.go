// Package session owns live session state: participants, reactions, the
// current track and the user -> session index.
//
// Locking: structural changes (create, join, leave, end) hold the table lock
// and then the session lock, always in that order. Reactions, track changes
// and reads take the table read lock only to find the session, then work
// under the session lock alone, so sessions never block each other.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/pkg/logger"
	"github.com/okian/attune/pkg/metrics"
)

// Publisher receives lifecycle events after the state change is applied.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.Event) error { return nil }

// Store is the in-memory session table.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*entry
	userIndex map[string]string

	now       func() time.Time
	publisher Publisher
	log       logger.Logger
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:  make(map[string]*entry),
		userIndex: make(map[string]string),
		now:       time.Now,
		publisher: nopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("session")
	}
	return s
}

// ReactionOutcome describes the effect of a recorded reaction.
type ReactionOutcome struct {
	Reaction             model.Reaction
	Polarity             model.Polarity
	Engagement           float64
	ParticipantFound     bool
	Settings             model.Settings
	CurrentTrackID       string
	CurrentTrackDislikes int
	PlayedTracks         []string
}

// Create registers a new session. An empty id allocates one.
func (s *Store) Create(ctx context.Context, id string, patch model.SettingsPatch) (model.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()
	e := newEntry(id, now, patch.Merge(model.DefaultSettings()))

	s.mu.Lock()
	if _, exists := s.sessions[id]; exists {
		s.mu.Unlock()
		return model.Session{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	s.sessions[id] = e
	snap := e.snapshot(now)
	s.updateGaugesLocked()
	s.mu.Unlock()

	metrics.RecordSessionCreated()
	s.publish(ctx, model.NewEvent(model.EventSessionCreated, id, now, snap))
	return snap, nil
}

// Join adds or overwrites the participant keyed by user id and points the
// user index at this session. A user already in another session stays listed
// there; only the index moves.
func (s *Store) Join(ctx context.Context, sessionID string, req model.JoinRequest) (model.Session, error) {
	now := s.now()

	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return model.Session{}, fmt.Errorf("%w: %s", model.ErrSessionNotFound, sessionID)
	}
	e.mu.Lock()
	if err := e.join(req, now); err != nil {
		e.mu.Unlock()
		s.mu.Unlock()
		return model.Session{}, err
	}
	snap := e.snapshot(now)
	e.mu.Unlock()
	s.userIndex[req.UserID] = sessionID
	s.updateGaugesLocked()
	s.mu.Unlock()

	s.publish(ctx, model.NewEvent(model.EventUserJoined, sessionID, now, model.ParticipantPayload{
		UserID:       req.UserID,
		ProfileID:    req.ProfileID,
		ConnectionID: req.ConnectionID,
	}))
	return snap, nil
}

// Leave removes the participant on connectionID. Unknown sessions or
// connections are a silent no-op. When the last participant leaves the
// session is ended. It reports whether a participant left and whether the
// session ended as a result.
func (s *Store) Leave(ctx context.Context, sessionID, connectionID string) (left, ended bool) {
	now := s.now()

	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return false, false
	}
	e.mu.Lock()
	p, ok := e.leave(connectionID, now)
	if !ok {
		e.mu.Unlock()
		s.mu.Unlock()
		return false, false
	}
	if s.userIndex[p.UserID] == sessionID {
		delete(s.userIndex, p.UserID)
	}
	var final model.Metrics
	if len(e.order) == 0 {
		final = s.endLocked(e, now)
		ended = true
	}
	e.mu.Unlock()
	s.updateGaugesLocked()
	s.mu.Unlock()

	s.publish(ctx, model.NewEvent(model.EventUserLeft, sessionID, now, model.ParticipantPayload{
		UserID:       p.UserID,
		ProfileID:    p.ProfileID,
		ConnectionID: p.ConnectionID,
	}))
	if ended {
		s.log.Info(ctx, "session emptied", logger.String("session_id", sessionID))
		metrics.RecordSessionEnded()
		s.publish(ctx, model.NewEvent(model.EventSessionEnded, sessionID, now, final))
	}
	return true, ended
}

// End removes the session and publishes its final metrics. It reports
// whether the session existed.
func (s *Store) End(ctx context.Context, sessionID string) bool {
	now := s.now()

	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	e.mu.Lock()
	final := s.endLocked(e, now)
	e.mu.Unlock()
	s.updateGaugesLocked()
	s.mu.Unlock()

	metrics.RecordSessionEnded()
	s.publish(ctx, model.NewEvent(model.EventSessionEnded, sessionID, now, final))
	return true
}

// endLocked requires s.mu and e.mu held.
func (s *Store) endLocked(e *entry, now time.Time) model.Metrics {
	final := e.metrics(now)
	for _, uid := range e.order {
		if s.userIndex[uid] == e.id {
			delete(s.userIndex, uid)
		}
	}
	e.ended = true
	delete(s.sessions, e.id)
	return final
}

// UpdateCurrentTrack sets the playing track and counts the play.
func (s *Store) UpdateCurrentTrack(ctx context.Context, sessionID string, track model.TrackPlay) (model.TrackPlay, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return model.TrackPlay{}, err
	}
	now := s.now()
	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return model.TrackPlay{}, fmt.Errorf("%w: %s", model.ErrSessionNotFound, sessionID)
	}
	if track.StartedAt.IsZero() {
		track.StartedAt = now
	}
	e.changeTrack(track, now)
	e.mu.Unlock()

	s.publish(ctx, model.NewEvent(model.EventTrackChanged, sessionID, now, track))
	return track, nil
}

// RecordReaction appends a validated reaction and updates engagement and
// counters. Timestamps never go backwards within a session.
func (s *Store) RecordReaction(_ context.Context, sessionID string, r model.Reaction) (ReactionOutcome, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return ReactionOutcome{}, err
	}
	now := s.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return ReactionOutcome{}, fmt.Errorf("%w: %s", model.ErrSessionNotFound, sessionID)
	}
	return e.record(r, now), nil
}

// Metrics computes the session metrics now.
func (s *Store) Metrics(_ context.Context, sessionID string) (model.Metrics, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return model.Metrics{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics(s.now()), nil
}

// Get returns a deep copy of the session.
func (s *Store) Get(_ context.Context, sessionID string) (model.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return model.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(s.now()), nil
}

// SessionOf returns the session the user was last indexed to.
func (s *Store) SessionOf(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userIndex[userID]
	return id, ok
}

// Counts returns the number of sessions and participants.
func (s *Store) Counts() (sessions, participants int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countsLocked()
}

// IDs returns the ids of live sessions.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionNotFound, sessionID)
	}
	return e, nil
}

// countsLocked requires s.mu. Participant counts read the per-session
// length under the session lock.
func (s *Store) countsLocked() (int, int) {
	participants := 0
	for _, e := range s.sessions {
		e.mu.Lock()
		participants += len(e.order)
		e.mu.Unlock()
	}
	return len(s.sessions), participants
}

// updateGaugesLocked requires s.mu held and no session lock held.
func (s *Store) updateGaugesLocked() {
	sessions, participants := s.countsLocked()
	metrics.UpdateActiveSessions(sessions)
	metrics.UpdateActiveParticipants(participants)
}

func (s *Store) publish(ctx context.Context, ev model.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn(ctx, "publish session event failed",
			logger.String("session_id", ev.SessionID),
			logger.String("type", string(ev.Type)),
			logger.Error(err))
	}
}
