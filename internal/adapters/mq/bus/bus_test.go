package bus_test

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/okian/attune/internal/adapters/mq/bus"
	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func receive(sub *bus.Subscription) (model.Event, bool) {
	select {
	case ev, ok := <-sub.C:
		return ev, ok
	case <-time.After(2 * time.Second):
		return model.Event{}, false
	}
}

func TestBus(t *testing.T) {
	ctx := context.Background()

	Convey("Given a bus with a subscriber on session s1", t, func() {
		b := bus.New(bus.WithSubscriberBuffer(16))
		defer b.Close()
		sub, err := b.Subscribe(ctx, "s1")
		So(err, ShouldBeNil)
		So(b.Subscribers(), ShouldEqual, 1)

		Convey("When events are published for s1 and s2", func() {
			at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			So(b.Publish(ctx, model.NewEvent(model.EventUserJoined, "s1", at, model.ParticipantPayload{UserID: "u1"})), ShouldBeNil)
			So(b.Publish(ctx, model.NewEvent(model.EventUserJoined, "s2", at, model.ParticipantPayload{UserID: "u9"})), ShouldBeNil)
			So(b.Publish(ctx, model.NewEvent(model.EventTrackChanged, "s1", at, model.TrackPlay{TrackID: "t1"})), ShouldBeNil)

			Convey("Then the subscriber sees only s1 events, in order, with raw payloads", func() {
				first, ok := receive(sub)
				So(ok, ShouldBeTrue)
				So(first.Type, ShouldEqual, model.EventUserJoined)
				So(first.SessionID, ShouldEqual, "s1")
				So(first.Timestamp.Equal(at), ShouldBeTrue)

				raw, isRaw := first.Payload.(json.RawMessage)
				So(isRaw, ShouldBeTrue)
				var p model.ParticipantPayload
				So(json.Unmarshal(raw, &p), ShouldBeNil)
				So(p.UserID, ShouldEqual, "u1")

				second, ok := receive(sub)
				So(ok, ShouldBeTrue)
				So(second.Type, ShouldEqual, model.EventTrackChanged)
			})
		})

		Convey("When the session is closed on the bus", func() {
			n := b.CloseSession("s1")

			Convey("Then the subscription has stopped and its channel is closed", func() {
				So(n, ShouldEqual, 1)
				_, ok := <-sub.C
				So(ok, ShouldBeFalse)
				So(b.Subscribers(), ShouldEqual, 0)
			})
		})

		Convey("When the subscription context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			other, err := b.Subscribe(cctx, "s1")
			So(err, ShouldBeNil)
			cancel()

			Convey("Then it stops on its own", func() {
				select {
				case <-other.Done():
				case <-time.After(2 * time.Second):
				}
				So(b.Subscribers(), ShouldEqual, 1)
			})
		})

		Convey("When the bus is closed", func() {
			So(b.Close(), ShouldBeNil)

			Convey("Then publishing and subscribing fail", func() {
				So(b.Publish(ctx, model.NewEvent(model.EventUserLeft, "s1", time.Now(), nil)), ShouldEqual, bus.ErrClosed)
				_, err := b.Subscribe(ctx, "s1")
				So(err, ShouldEqual, bus.ErrClosed)
				So(b.Close(), ShouldBeNil)
			})
		})
	})

	Convey("Given a slow subscriber", t, func() {
		b := bus.New(bus.WithSubscriberBuffer(2))
		defer b.Close()
		sub, _ := b.Subscribe(ctx, "s1")

		Convey("When more events arrive than it buffers", func() {
			for i := 0; i < 10; i++ {
				So(b.Publish(ctx, model.NewEvent(model.EventReactionRecorded, "s1", time.Now(), i)), ShouldBeNil)
			}

			Convey("Then publishing never blocks and extra events are dropped", func() {
				sub.Close()
				count := 0
				for range sub.C {
					count++
				}
				So(count, ShouldBeLessThanOrEqualTo, 2)
			})
		})
	})
}
