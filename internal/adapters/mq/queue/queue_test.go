package queue

import (
	"context"
	"fmt"
	"testing"

	"github.com/okian/attune/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func job(session, track string) Job {
	return model.ReactionJob{
		SessionID: session,
		Reaction:  model.Reaction{TrackID: track, Sentiment: model.Like},
	}
}

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with capacity 2", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))

		Convey("When two jobs are enqueued", func() {
			So(q.Enqueue(ctx, job("s1", "t1")), ShouldBeNil)
			So(q.Enqueue(ctx, job("s1", "t2")), ShouldBeNil)

			Convey("Then a third is rejected as full", func() {
				So(q.Enqueue(ctx, job("s1", "t3")), ShouldEqual, ErrFull)
				So(q.Len(), ShouldEqual, 2)
			})

			Convey("Then they dequeue in order", func() {
				So((<-q.Dequeue()).Reaction.TrackID, ShouldEqual, "t1")
				So((<-q.Dequeue()).Reaction.TrackID, ShouldEqual, "t2")
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Enqueue(ctx, job("s1", "t1")), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueue fails but buffered jobs drain", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, job("s1", "t2")), ShouldEqual, ErrClosed)
				j, ok := <-q.Dequeue()
				So(ok, ShouldBeTrue)
				So(j.Reaction.TrackID, ShouldEqual, "t1")
				_, ok = <-q.Dequeue()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the context is already cancelled and the queue is full", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_ = q.Enqueue(ctx, job("s1", "t1"))
			_ = q.Enqueue(ctx, job("s1", "t2"))

			Convey("Then the enqueue fails", func() {
				So(q.Enqueue(cctx, job("s1", "t3")), ShouldNotBeNil)
			})
		})
	})
}

func TestSharded(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sharded queue", t, func() {
		s := NewSharded(WithShards(4), WithShardCapacity(100))

		Convey("Then a session always maps to the same shard", func() {
			So(s.Shards(), ShouldEqual, 4)
			for i := 0; i < 20; i++ {
				id := fmt.Sprintf("session-%d", i)
				So(s.ShardFor(id), ShouldEqual, s.ShardFor(id))
				So(s.ShardFor(id), ShouldBeBetweenOrEqual, 0, 3)
			}
		})

		Convey("When jobs for one session are enqueued", func() {
			for i := 0; i < 10; i++ {
				So(s.Enqueue(ctx, job("s-a", fmt.Sprintf("t%d", i))), ShouldBeNil)
			}

			Convey("Then they land on one shard in order", func() {
				So(s.Len(), ShouldEqual, 10)
				shard := s.Shard(s.ShardFor("s-a"))
				So(shard.Len(), ShouldEqual, 10)
				for i := 0; i < 10; i++ {
					So((<-shard.Dequeue()).Reaction.TrackID, ShouldEqual, fmt.Sprintf("t%d", i))
				}
			})
		})

		Convey("When closed", func() {
			So(s.Close(), ShouldBeNil)

			Convey("Then enqueue reports closed", func() {
				So(s.Enqueue(ctx, job("s-a", "t1")), ShouldEqual, ErrClosed)
			})
		})
	})
}
