package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/attune/internal/adapters/repository"
	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/internal/domain/pipeline"
	"github.com/okian/attune/internal/domain/session"
	"github.com/okian/attune/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.Event) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) ofType(t model.EventType) []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type failingSink struct{ calls int }

func (s *failingSink) Append(context.Context, string, model.Reaction) error {
	s.calls++
	return errors.New("disk full")
}

type recordingTrigger struct{ reactions []model.Reaction }

func (t *recordingTrigger) Trigger(_ string, r model.Reaction) {
	t.reactions = append(t.reactions, r)
}

type fixedRecommender struct{ recs []model.Recommendation }

func (f fixedRecommender) Recommend(context.Context, string, string) ([]model.Recommendation, error) {
	return f.recs, nil
}

func TestPipelineRecord(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pipeline over a live session", t, func() {
		now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		pub := &recordingPublisher{}
		sessions := session.NewStore(session.WithClock(clock), session.WithPublisher(pub))
		prefs := repository.NewPreferenceStore()
		stats := repository.NewTrackStatsStore()
		sink := &failingSink{}
		trigger := &recordingTrigger{}

		threshold := 2
		_, err := sessions.Create(ctx, "s1", model.SettingsPatch{ReactionThreshold: &threshold})
		So(err, ShouldBeNil)
		_, err = sessions.Join(ctx, "s1", model.JoinRequest{UserID: "u1", ProfileID: "p1", ConnectionID: "c1"})
		So(err, ShouldBeNil)
		_, err = sessions.UpdateCurrentTrack(ctx, "s1", model.TrackPlay{TrackID: "t1"})
		So(err, ShouldBeNil)

		p := pipeline.New(sessions, prefs, stats, pub,
			pipeline.WithSink(sink),
			pipeline.WithTrigger(trigger),
			pipeline.WithAdvancer(fixedRecommender{recs: []model.Recommendation{{TrackID: "t1"}, {TrackID: "t2"}}}, nil),
			pipeline.WithClock(clock),
		)

		Convey("When an invalid reaction arrives", func() {
			_, err := p.Record(ctx, "s1", model.Reaction{TrackID: "t1", Sentiment: "ecstatic", ProfileID: "p1"})

			Convey("Then it is rejected before anything changes", func() {
				So(errors.Is(err, model.ErrInvalidReaction), ShouldBeTrue)
				s, _ := sessions.Get(ctx, "s1")
				So(s.Reactions, ShouldBeEmpty)
				So(prefs.Count(), ShouldEqual, 0)
				So(pub.ofType(model.EventReactionRecorded), ShouldBeEmpty)
				So(trigger.reactions, ShouldBeEmpty)
			})
		})

		Convey("When an out-of-range intensity arrives", func() {
			_, err := p.Record(ctx, "s1", model.Reaction{TrackID: "t1", Sentiment: model.Like, Intensity: 9, ProfileID: "p1"})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, model.ErrInvalidReaction), ShouldBeTrue)
			})
		})

		Convey("When a valid reaction arrives", func() {
			out, err := p.Record(ctx, "s1", model.Reaction{TrackID: "t1", Sentiment: model.Like, ProfileID: "p1"})

			Convey("Then every store sees it even though the log failed", func() {
				So(err, ShouldBeNil)
				So(out.Polarity, ShouldEqual, model.PolarityPositive)
				So(out.ParticipantFound, ShouldBeTrue)
				So(prefs.Vector(ctx, "p1"), ShouldResemble, map[string]float64{"t1": 4})
				So(stats.Stats(ctx, "t1").Likes, ShouldEqual, 1)
				So(sink.calls, ShouldEqual, 1)
				So(len(trigger.reactions), ShouldEqual, 1)

				events := pub.ofType(model.EventReactionRecorded)
				So(len(events), ShouldEqual, 1)
				payload := events[0].Payload.(model.ReactionPayload)
				So(payload.Polarity, ShouldEqual, "positive")
				So(payload.Reaction.Timestamp.Equal(now), ShouldBeTrue)
			})
		})

		Convey("When the session does not exist", func() {
			_, err := p.Record(ctx, "missing", model.Reaction{TrackID: "t1", Sentiment: model.Like, ProfileID: "p1"})

			Convey("Then ErrSessionNotFound is returned", func() {
				So(errors.Is(err, model.ErrSessionNotFound), ShouldBeTrue)
				So(prefs.Count(), ShouldEqual, 0)
			})
		})

		Convey("When the current track collects enough dislikes", func() {
			for i := 0; i < 2; i++ {
				_, err := p.Record(ctx, "s1", model.Reaction{TrackID: "t1", Sentiment: model.Dislike, ProfileID: "p1"})
				So(err, ShouldBeNil)
			}

			Convey("Then the session advances to the best unplayed recommendation", func() {
				s, _ := sessions.Get(ctx, "s1")
				So(s.CurrentTrack, ShouldNotBeNil)
				So(s.CurrentTrack.TrackID, ShouldEqual, "t2")
				So(stats.Stats(ctx, "t2").Plays, ShouldEqual, 1)
				So(len(pub.ofType(model.EventTrackChanged)), ShouldEqual, 2)
			})
		})

		Convey("When the job arrives through the queue", func() {
			err := p.Process(ctx, model.ReactionJob{
				SessionID:  "s1",
				Reaction:   model.Reaction{TrackID: "t1", Sentiment: model.StronglyDislike, ProfileID: "p1"},
				EnqueuedAt: now,
			})

			Convey("Then it is recorded like a direct call", func() {
				So(err, ShouldBeNil)
				So(prefs.Vector(ctx, "p1")["t1"], ShouldEqual, 1)
				So(stats.Stats(ctx, "t1").Dislikes, ShouldEqual, 1)
			})
		})

		Convey("When a queued job outlives its session", func() {
			So(sessions.End(ctx, "s1"), ShouldBeTrue)
			err := p.Process(ctx, model.ReactionJob{
				SessionID: "s1",
				Reaction:  model.Reaction{TrackID: "t1", Sentiment: model.Like, ProfileID: "p1"},
			})

			Convey("Then it is dropped without an error", func() {
				So(err, ShouldBeNil)
				So(prefs.Vector(ctx, "p1"), ShouldBeEmpty)
				So(stats.Stats(ctx, "t1").Likes, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a session with auto-advance off", t, func() {
		pub := &recordingPublisher{}
		sessions := session.NewStore(session.WithPublisher(pub))
		off, threshold := false, 1
		_, err := sessions.Create(ctx, "s1", model.SettingsPatch{AutoNext: &off, ReactionThreshold: &threshold})
		So(err, ShouldBeNil)
		_, err = sessions.UpdateCurrentTrack(ctx, "s1", model.TrackPlay{TrackID: "t1"})
		So(err, ShouldBeNil)
		p := pipeline.New(sessions, repository.NewPreferenceStore(), repository.NewTrackStatsStore(), pub,
			pipeline.WithAdvancer(fixedRecommender{recs: []model.Recommendation{{TrackID: "t2"}}}, nil))

		Convey("When the track is disliked", func() {
			_, err := p.Record(ctx, "s1", model.Reaction{TrackID: "t1", Sentiment: model.StronglyDislike, ProfileID: "p1"})

			Convey("Then the track keeps playing", func() {
				So(err, ShouldBeNil)
				s, _ := sessions.Get(ctx, "s1")
				So(s.CurrentTrack.TrackID, ShouldEqual, "t1")
			})
		})
	})
}

func TestRefresher(t *testing.T) {
	Convey("Given a refresher with a short window", t, func() {
		ctx := context.Background()
		pub := &recordingPublisher{}
		var mu sync.Mutex
		var seen []*model.Reaction
		refresh := func(_ context.Context, _ string, last *model.Reaction) (string, []model.Recommendation, error) {
			mu.Lock()
			seen = append(seen, last)
			mu.Unlock()
			return "adaptive", []model.Recommendation{{TrackID: "x", Score: 1}}, nil
		}
		r := pipeline.NewRefresher(ctx, refresh, pub, pipeline.WithRefreshWindow(30*time.Millisecond))
		defer r.Stop()

		wait := func() {
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) && len(pub.ofType(model.EventRecommendationsUpdated)) == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}

		Convey("When a burst of reactions triggers it", func() {
			for _, id := range []string{"t1", "t2", "t3"} {
				r.Trigger("s1", model.Reaction{TrackID: id, Sentiment: model.Like})
			}
			wait()
			time.Sleep(60 * time.Millisecond)

			Convey("Then one refresh runs with the latest reaction", func() {
				events := pub.ofType(model.EventRecommendationsUpdated)
				So(len(events), ShouldEqual, 1)
				payload := events[0].Payload.(model.RecommendationsPayload)
				So(payload.TriggerTrackID, ShouldEqual, "t3")
				So(payload.Mode, ShouldEqual, "adaptive")
				mu.Lock()
				So(len(seen), ShouldEqual, 1)
				mu.Unlock()
			})
		})

		Convey("When a poke follows a reaction", func() {
			r.Trigger("s1", model.Reaction{TrackID: "t1", Sentiment: model.Like})
			r.Poke("s1")
			wait()

			Convey("Then the refresh still carries the last reaction", func() {
				mu.Lock()
				defer mu.Unlock()
				So(len(seen), ShouldEqual, 1)
				So(seen[0], ShouldNotBeNil)
				So(seen[0].TrackID, ShouldEqual, "t1")
			})
		})

		Convey("When the session is cancelled before the window ends", func() {
			r.Trigger("s1", model.Reaction{TrackID: "t1", Sentiment: model.Like})
			So(r.Pending(), ShouldEqual, 1)
			So(r.Cancel("s1"), ShouldBeTrue)
			time.Sleep(80 * time.Millisecond)

			Convey("Then nothing is published", func() {
				So(pub.ofType(model.EventRecommendationsUpdated), ShouldBeEmpty)
				So(r.Pending(), ShouldEqual, 0)
			})
		})
	})
}
