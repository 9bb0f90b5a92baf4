// Package pipeline applies a reaction to every piece of engine state it
// touches: the session, the reacting profile's preferences, cross-session
// track statistics and the durable log. It then announces the reaction and
// asks for fresh recommendations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/internal/domain/session"
	"github.com/okian/attune/pkg/logger"
	"github.com/okian/attune/pkg/metrics"
)

// Sessions records reactions and track changes.
type Sessions interface {
	RecordReaction(ctx context.Context, sessionID string, r model.Reaction) (session.ReactionOutcome, error)
	UpdateCurrentTrack(ctx context.Context, sessionID string, track model.TrackPlay) (model.TrackPlay, error)
}

// Preferences stores per-profile track scores.
type Preferences interface {
	Set(ctx context.Context, profileID, trackID string, score int) error
}

// TrackStats counts plays and reactions per track.
type TrackStats interface {
	RecordPlay(ctx context.Context, trackID string)
	RecordReaction(ctx context.Context, trackID string, p model.Polarity)
}

// Sink durably logs reactions. Failures never fail the reaction.
type Sink interface {
	Append(ctx context.Context, sessionID string, r model.Reaction) error
}

// Publisher announces events.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// Trigger is told about every accepted reaction.
type Trigger interface {
	Trigger(sessionID string, r model.Reaction)
}

// Recommender picks the next track when a session auto-advances.
type Recommender interface {
	Recommend(ctx context.Context, sessionID, profileID string) ([]model.Recommendation, error)
}

// Catalog resolves track titles for auto-advance.
type Catalog interface {
	Track(ctx context.Context, id string) (model.Track, error)
}

type nopSink struct{}

func (nopSink) Append(context.Context, string, model.Reaction) error { return nil }

type nopTrigger struct{}

func (nopTrigger) Trigger(string, model.Reaction) {}

// Pipeline processes reactions.
type Pipeline struct {
	sessions  Sessions
	prefs     Preferences
	stats     TrackStats
	publisher Publisher

	sink        Sink
	trigger     Trigger
	recommender Recommender
	catalog     Catalog

	now func() time.Time
	log logger.Logger
}

// New creates a pipeline.
func New(sessions Sessions, prefs Preferences, stats TrackStats, publisher Publisher, opts ...Option) *Pipeline {
	p := &Pipeline{
		sessions:  sessions,
		prefs:     prefs,
		stats:     stats,
		publisher: publisher,
		sink:      nopSink{},
		trigger:   nopTrigger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Named("pipeline")
	}
	return p
}

// Process handles a queued reaction job. Jobs for sessions that no longer
// exist are dropped.
func (p *Pipeline) Process(ctx context.Context, job model.ReactionJob) error {
	if !job.EnqueuedAt.IsZero() {
		metrics.RecordPipelineLatency(float64(p.now().Sub(job.EnqueuedAt).Microseconds()) / 1000)
	}
	_, err := p.Record(ctx, job.SessionID, job.Reaction)
	if errors.Is(err, model.ErrSessionNotFound) {
		// The session ended while the job was queued.
		return nil
	}
	return err
}

// Record validates and applies a reaction. Invalid reactions are rejected
// before anything is mutated.
func (p *Pipeline) Record(ctx context.Context, sessionID string, r model.Reaction) (session.ReactionOutcome, error) {
	if err := r.Validate(); err != nil {
		metrics.RecordReactionRejected(rejectReason(r))
		return session.ReactionOutcome{}, err
	}

	out, err := p.sessions.RecordReaction(ctx, sessionID, r)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			metrics.RecordReactionRejected("session_not_found")
		}
		return session.ReactionOutcome{}, err
	}
	r = out.Reaction

	if r.ProfileID != "" {
		if err := p.prefs.Set(ctx, r.ProfileID, r.TrackID, r.Score()); err != nil {
			return out, fmt.Errorf("store preference: %w", err)
		}
	}
	p.stats.RecordReaction(ctx, r.TrackID, out.Polarity)

	if err := p.sink.Append(ctx, sessionID, r); err != nil {
		p.log.Warn(ctx, "reaction not logged",
			logger.String("session_id", sessionID),
			logger.String("track_id", r.TrackID),
			logger.Error(err),
		)
	}

	p.publish(ctx, model.NewEvent(model.EventReactionRecorded, sessionID, r.Timestamp, model.ReactionPayload{
		Reaction:   r,
		Polarity:   out.Polarity.String(),
		Engagement: out.Engagement,
	}))
	metrics.RecordReactionProcessed()

	if p.shouldAdvance(out) {
		p.advance(ctx, sessionID, out)
	}
	p.trigger.Trigger(sessionID, r)
	return out, nil
}

// shouldAdvance reports whether the current track has collected enough
// negative reactions to be skipped.
func (p *Pipeline) shouldAdvance(out session.ReactionOutcome) bool {
	return p.recommender != nil &&
		out.Settings.AutoNext &&
		out.Polarity == model.PolarityNegative &&
		out.CurrentTrackID != "" &&
		out.CurrentTrackID == out.Reaction.TrackID &&
		out.CurrentTrackDislikes >= out.Settings.ReactionThreshold
}

// advance switches the session to the best recommendation not yet played.
func (p *Pipeline) advance(ctx context.Context, sessionID string, out session.ReactionOutcome) {
	recs, err := p.recommender.Recommend(ctx, sessionID, "")
	if err != nil {
		p.log.Warn(ctx, "auto-advance skipped", logger.String("session_id", sessionID), logger.Error(err))
		return
	}
	played := make(map[string]struct{}, len(out.PlayedTracks))
	for _, id := range out.PlayedTracks {
		played[id] = struct{}{}
	}
	for _, rec := range recs {
		if _, ok := played[rec.TrackID]; ok {
			continue
		}
		next := model.TrackPlay{TrackID: rec.TrackID}
		if p.catalog != nil {
			if t, err := p.catalog.Track(ctx, rec.TrackID); err == nil {
				next.Title, next.Artist = t.Title, t.Artist
			}
		}
		if _, err := p.sessions.UpdateCurrentTrack(ctx, sessionID, next); err != nil {
			p.log.Warn(ctx, "auto-advance failed", logger.String("session_id", sessionID), logger.Error(err))
			return
		}
		p.stats.RecordPlay(ctx, rec.TrackID)
		metrics.RecordAutoAdvance()
		p.log.Info(ctx, "session auto-advanced",
			logger.String("session_id", sessionID),
			logger.String("from", out.CurrentTrackID),
			logger.String("to", rec.TrackID),
		)
		return
	}
}

func (p *Pipeline) publish(ctx context.Context, ev model.Event) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.log.Warn(ctx, "publish failed",
			logger.String("session_id", ev.SessionID),
			logger.String("type", string(ev.Type)),
			logger.Error(err),
		)
	}
}

func rejectReason(r model.Reaction) string {
	switch {
	case r.TrackID == "":
		return "missing_track"
	case !r.Sentiment.Valid():
		return "invalid_sentiment"
	default:
		return "invalid_intensity"
	}
}
