package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/internal/domain/scoring"
)

type participant struct {
	model.Participant
	// accrued listening time up to the last track change
	listened time.Duration
}

// entry is one session's mutable state, guarded by mu.
type entry struct {
	mu        sync.Mutex
	id        string
	createdAt time.Time
	settings  model.Settings
	ended     bool

	participants map[string]*participant // by user id
	order        []string                // user ids in join order

	reactions    []model.Reaction
	lastStamp    time.Time
	current      *model.TrackPlay
	played       []string
	tracksPlayed int
	positive     int
	negative     int
	// negative reactions to the current track since it started
	currentDislikes int
}

func newEntry(id string, now time.Time, settings model.Settings) *entry {
	return &entry{
		id:           id,
		createdAt:    now,
		settings:     settings,
		participants: make(map[string]*participant),
	}
}

func (e *entry) join(req model.JoinRequest, now time.Time) error {
	if _, exists := e.participants[req.UserID]; !exists {
		if e.settings.MaxParticipants > 0 && len(e.order) >= e.settings.MaxParticipants {
			return fmt.Errorf("%w: %s has %d participants", model.ErrSessionFull, e.id, len(e.order))
		}
		e.order = append(e.order, req.UserID)
	}
	e.participants[req.UserID] = &participant{Participant: model.Participant{
		UserID:       req.UserID,
		ProfileID:    req.ProfileID,
		ConnectionID: req.ConnectionID,
		JoinedAt:     now,
	}}
	return nil
}

func (e *entry) leave(connectionID string, now time.Time) (model.Participant, bool) {
	for i, uid := range e.order {
		p := e.participants[uid]
		if p.ConnectionID != connectionID {
			continue
		}
		p.listened += e.listeningSince(p, now)
		p.ListeningTime = p.listened
		delete(e.participants, uid)
		e.order = append(e.order[:i], e.order[i+1:]...)
		return p.Participant, true
	}
	return model.Participant{}, false
}

// listeningSince is the time p has listened to the current track up to now.
func (e *entry) listeningSince(p *participant, now time.Time) time.Duration {
	if e.current == nil {
		return 0
	}
	from := e.current.StartedAt
	if p.JoinedAt.After(from) {
		from = p.JoinedAt
	}
	if d := now.Sub(from); d > 0 {
		return d
	}
	return 0
}

func (e *entry) changeTrack(track model.TrackPlay, now time.Time) {
	for _, uid := range e.order {
		p := e.participants[uid]
		p.listened += e.listeningSince(p, now)
	}
	e.current = &track
	e.played = append(e.played, track.TrackID)
	e.tracksPlayed++
	e.currentDislikes = 0
}

func (e *entry) record(r model.Reaction, now time.Time) ReactionOutcome {
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if r.Timestamp.Before(e.lastStamp) {
		r.Timestamp = e.lastStamp
	}
	e.lastStamp = r.Timestamp
	e.reactions = append(e.reactions, r)

	polarity := r.Polarity()
	switch polarity {
	case model.PolarityPositive:
		e.positive++
	case model.PolarityNegative:
		e.negative++
		if e.current != nil && e.current.TrackID == r.TrackID {
			e.currentDislikes++
		}
	}

	out := ReactionOutcome{
		Reaction:             r,
		Polarity:             polarity,
		Settings:             e.settings,
		CurrentTrackDislikes: e.currentDislikes,
		PlayedTracks:         append([]string(nil), e.played...),
	}
	if e.current != nil {
		out.CurrentTrackID = e.current.TrackID
	}
	if p := e.byProfile(r.ProfileID); p != nil {
		p.Reactions = append(p.Reactions, r)
		p.Engagement = scoring.Engagement(p.Reactions, r.Timestamp)
		out.ParticipantFound = true
		out.Engagement = p.Engagement
	}
	return out
}

func (e *entry) byProfile(profileID string) *participant {
	for _, uid := range e.order {
		if p := e.participants[uid]; p.ProfileID == profileID {
			return p
		}
	}
	return nil
}

func (e *entry) metrics(now time.Time) model.Metrics {
	engagements := make([]float64, 0, len(e.order))
	for _, uid := range e.order {
		engagements = append(engagements, scoring.Engagement(e.participants[uid].Reactions, now))
	}
	m := model.Metrics{
		TracksPlayed:         e.tracksPlayed,
		TotalReactions:       len(e.reactions),
		PositiveReactions:    e.positive,
		NegativeReactions:    e.negative,
		PositivityRatio:      scoring.Ratio(e.positive, len(e.reactions)),
		AverageEngagement:    scoring.Mean(engagements),
		ParticipantCount:     len(e.order),
		Duration:             now.Sub(e.createdAt),
		CurrentTrackDislikes: e.currentDislikes,
	}
	if e.current != nil {
		m.CurrentTrackID = e.current.TrackID
	}
	return m
}

func (e *entry) snapshot(now time.Time) model.Session {
	s := model.Session{
		ID:           e.id,
		CreatedAt:    e.createdAt,
		Participants: make([]model.Participant, 0, len(e.order)),
		Reactions:    append([]model.Reaction{}, e.reactions...),
		PlayedTracks: append([]string{}, e.played...),
		Metrics:      e.metrics(now),
		Settings:     e.settings,
	}
	for _, uid := range e.order {
		p := e.participants[uid]
		cp := p.Participant
		cp.Reactions = append([]model.Reaction{}, p.Reactions...)
		cp.Engagement = scoring.Engagement(p.Reactions, now)
		cp.ListeningTime = p.listened + e.listeningSince(p, now)
		s.Participants = append(s.Participants, cp)
	}
	if e.current != nil {
		cur := *e.current
		s.CurrentTrack = &cur
	}
	return s
}
