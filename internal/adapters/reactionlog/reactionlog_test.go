package reactionlog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/attune/internal/adapters/reactionlog"
	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func reaction(track string, at time.Time) model.Reaction {
	return model.Reaction{TrackID: track, Sentiment: model.Like, ProfileID: "p1", Timestamp: at}
}

func TestBadgerLog(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	Convey("Given an in-memory reaction log", t, func() {
		l, err := reactionlog.Open(ctx, "", reactionlog.WithInMemory())
		So(err, ShouldBeNil)
		defer l.Close()

		Convey("When reactions for two sessions are appended", func() {
			So(l.Append(ctx, "s1", reaction("t1", base)), ShouldBeNil)
			So(l.Append(ctx, "s2", reaction("t9", base)), ShouldBeNil)
			So(l.Append(ctx, "s1", reaction("t2", base.Add(time.Second))), ShouldBeNil)
			So(l.Append(ctx, "s1", reaction("t3", base.Add(time.Second))), ShouldBeNil)

			Convey("Then each session reads back in order", func() {
				entries, err := l.Session(ctx, "s1")
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 3)
				So(entries[0].Reaction.TrackID, ShouldEqual, "t1")
				So(entries[1].Reaction.TrackID, ShouldEqual, "t2")
				So(entries[2].Reaction.TrackID, ShouldEqual, "t3")
				So(entries[0].SessionID, ShouldEqual, "s1")

				n, err := l.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 4)
				So(l.State(), ShouldEqual, "closed")
			})
		})

		Convey("When the session has nothing logged", func() {
			entries, err := l.Session(ctx, "empty")

			Convey("Then the result is empty", func() {
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a log whose store has gone away", t, func() {
		l, err := reactionlog.Open(ctx, "", reactionlog.WithInMemory(), reactionlog.WithFailureThreshold(2), reactionlog.WithBreakerTimeout(time.Hour))
		So(err, ShouldBeNil)
		So(l.Close(), ShouldBeNil)

		Convey("When appends keep failing", func() {
			first := l.Append(ctx, "s1", reaction("t1", base))
			second := l.Append(ctx, "s1", reaction("t2", base))
			third := l.Append(ctx, "s1", reaction("t3", base))

			Convey("Then the breaker opens and refuses further writes", func() {
				So(errors.Is(first, reactionlog.ErrClosed), ShouldBeTrue)
				So(errors.Is(second, reactionlog.ErrClosed), ShouldBeTrue)
				So(errors.Is(third, reactionlog.ErrWrite), ShouldBeTrue)
				So(l.State(), ShouldEqual, "open")
			})
		})

		Convey("Then reads report the closed store", func() {
			_, err := l.Session(ctx, "s1")
			So(err, ShouldEqual, reactionlog.ErrClosed)
			So(l.Close(), ShouldBeNil)
		})
	})

	Convey("Given a log on disk", t, func() {
		dir := t.TempDir()
		l, err := reactionlog.Open(ctx, dir, reactionlog.WithSyncWrites(true))
		So(err, ShouldBeNil)
		So(l.Append(ctx, "s1", reaction("t1", base)), ShouldBeNil)
		So(l.Close(), ShouldBeNil)

		Convey("When it is reopened", func() {
			again, err := reactionlog.Open(ctx, dir)
			So(err, ShouldBeNil)
			defer again.Close()

			Convey("Then earlier entries survive", func() {
				entries, err := again.Session(ctx, "s1")
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 1)
				So(entries[0].Reaction.TrackID, ShouldEqual, "t1")
			})
		})
	})
}
