package debounce_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/attune/internal/domain/debounce"
	. "github.com/smartystreets/goconvey/convey"
)

type recorder struct {
	mu    sync.Mutex
	calls map[string][]int
	order []string
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[string][]int), ch: make(chan string, 256)}
}

func (r *recorder) fire(k string, v int) {
	r.mu.Lock()
	r.calls[k] = append(r.calls[k], v)
	r.order = append(r.order, k)
	r.mu.Unlock()
	r.ch <- k
}

func (r *recorder) get(k string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.calls[k]...)
}

func (r *recorder) fired() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// bySession groups keys of the form "session/connection".
func bySession(key string, _ int) string {
	return strings.SplitN(key, "/", 2)[0]
}

func (r *recorder) wait(n int) bool {
	for i := 0; i < n; i++ {
		select {
		case <-r.ch:
		case <-time.After(2 * time.Second):
			return false
		}
	}
	return true
}

func TestDebouncer(t *testing.T) {
	Convey("Given a debouncer with a short window", t, func() {
		rec := newRecorder()
		d := debounce.New[string, int](30*time.Millisecond, rec.fire)
		defer d.Stop()

		Convey("When a burst arrives for one key", func() {
			So(d.Submit("conn-1", 1), ShouldBeFalse)
			So(d.Submit("conn-1", 2), ShouldBeTrue)
			So(d.Submit("conn-1", 3), ShouldBeTrue)

			Convey("Then only the latest value fires", func() {
				So(rec.wait(1), ShouldBeTrue)
				So(rec.get("conn-1"), ShouldResemble, []int{3})
				So(d.Pending(), ShouldEqual, 0)
				So(d.Fired(), ShouldEqual, 1)
			})
		})

		Convey("When two keys are submitted", func() {
			d.Submit("a", 1)
			d.Submit("b", 2)

			Convey("Then each fires independently", func() {
				So(rec.wait(2), ShouldBeTrue)
				So(rec.get("a"), ShouldResemble, []int{1})
				So(rec.get("b"), ShouldResemble, []int{2})
			})
		})

		Convey("When a pending key is cancelled", func() {
			d.Submit("a", 1)
			So(d.Cancel("a"), ShouldBeTrue)
			So(d.Cancel("a"), ShouldBeFalse)

			Convey("Then nothing fires", func() {
				time.Sleep(80 * time.Millisecond)
				So(rec.get("a"), ShouldBeEmpty)
			})
		})

		Convey("When a pending key is flushed", func() {
			d.Submit("a", 7)
			So(d.Flush("a"), ShouldBeTrue)

			Convey("Then it fires immediately and only once", func() {
				So(rec.get("a"), ShouldResemble, []int{7})
				time.Sleep(80 * time.Millisecond)
				So(rec.get("a"), ShouldResemble, []int{7})
			})
		})

		Convey("When the debouncer is stopped", func() {
			d.Submit("a", 1)
			d.Stop()
			d.Submit("b", 2)

			Convey("Then pending and later values are dropped", func() {
				time.Sleep(80 * time.Millisecond)
				So(rec.get("a"), ShouldBeEmpty)
				So(rec.get("b"), ShouldBeEmpty)
			})
		})
	})

	Convey("Given a debouncer with a zero window", t, func() {
		rec := newRecorder()
		d := debounce.New[string, int](0, rec.fire)

		Convey("Then submits fire synchronously", func() {
			d.Submit("a", 1)
			d.Submit("a", 2)
			So(rec.get("a"), ShouldResemble, []int{1, 2})
		})
	})

	Convey("Given a bounded debouncer", t, func() {
		rec := newRecorder()
		superseded := make(chan string, 8)
		d := debounce.New[string, int](time.Hour, rec.fire,
			debounce.WithMaxPending[string, int](1),
			debounce.WithOnSuperseded[string, int](func(k string) { superseded <- k }),
		)
		defer d.Stop()

		Convey("When the bound is reached", func() {
			d.Submit("a", 1)
			d.Submit("b", 2)

			Convey("Then the new key bypasses the window", func() {
				So(rec.get("b"), ShouldResemble, []int{2})
				So(d.Pending(), ShouldEqual, 1)
			})
		})

		Convey("When a pending value is replaced", func() {
			d.Submit("a", 1)
			d.Submit("a", 2)

			Convey("Then the superseded hook runs", func() {
				So(<-superseded, ShouldEqual, "a")
			})
		})
	})

	Convey("Given a debouncer grouping keys by session", t, func() {
		rec := newRecorder()
		d := debounce.New[string, int](5*time.Millisecond, rec.fire,
			debounce.WithGroup[string, int](bySession),
		)
		defer d.Stop()

		Convey("When many connections of one session submit in turn", func() {
			var want []string
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("s1/c%d", i)
				want = append(want, key)
				d.Submit(key, i)
			}

			Convey("Then they fire in submission order", func() {
				So(rec.wait(50), ShouldBeTrue)
				So(rec.fired(), ShouldResemble, want)
				So(d.Pending(), ShouldEqual, 0)
			})
		})

		Convey("When a connection submits again after another", func() {
			d.Submit("s1/a", 1)
			d.Submit("s1/b", 2)
			d.Submit("s1/a", 3)

			Convey("Then its latest value fires last", func() {
				So(rec.wait(2), ShouldBeTrue)
				So(rec.fired(), ShouldResemble, []string{"s1/b", "s1/a"})
				So(rec.get("s1/a"), ShouldResemble, []int{3})
			})
		})

		Convey("When one session's pending values are cancelled", func() {
			d.Submit("s1/a", 1)
			d.Submit("s2/a", 2)
			d.Submit("s1/b", 3)
			So(d.PendingGroup("s1"), ShouldEqual, 2)
			So(d.CancelGroup("s1"), ShouldEqual, 2)

			Convey("Then only the other session fires", func() {
				So(d.PendingGroup("s1"), ShouldEqual, 0)
				So(rec.wait(1), ShouldBeTrue)
				time.Sleep(30 * time.Millisecond)
				So(rec.fired(), ShouldResemble, []string{"s2/a"})
			})
		})
	})

	Convey("Given a bounded debouncer grouping keys by session", t, func() {
		rec := newRecorder()
		d := debounce.New[string, int](time.Hour, rec.fire,
			debounce.WithMaxPending[string, int](1),
			debounce.WithGroup[string, int](bySession),
		)
		defer d.Stop()

		Convey("When a new key bypasses the window", func() {
			d.Submit("s1/a", 1)
			d.Submit("s1/b", 2)

			Convey("Then the earlier pending key of its session fires first", func() {
				So(rec.fired(), ShouldResemble, []string{"s1/a", "s1/b"})
				So(d.Pending(), ShouldEqual, 0)
			})
		})

		Convey("When the bypassing key belongs to another session", func() {
			d.Submit("s1/a", 1)
			d.Submit("s2/a", 2)

			Convey("Then the other session's pending key keeps waiting", func() {
				So(rec.fired(), ShouldResemble, []string{"s2/a"})
				So(d.PendingGroup("s1"), ShouldEqual, 1)
			})
		})
	})
}
