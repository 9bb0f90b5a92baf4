package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/attune/internal/app"
	"github.com/okian/attune/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type flakyServer struct {
	starts atomic.Int32
	fails  int32
}

func (f *flakyServer) Serve(ctx context.Context) error {
	if f.starts.Add(1) <= f.fails {
		return errors.New("boom")
	}
	<-ctx.Done()
	return nil
}

type stubHTTP struct {
	listenErr error
	stop      chan struct{}
	shutdowns atomic.Int32
}

func (s *stubHTTP) ListenAndServe() error {
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.stop
	return http.ErrServerClosed
}

func (s *stubHTTP) Shutdown(context.Context) error {
	s.shutdowns.Add(1)
	close(s.stop)
	return nil
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestHTTPServerService(t *testing.T) {
	Convey("Given an HTTP server service", t, func() {
		Convey("cancelling the context shuts the server down", func() {
			srv := &stubHTTP{stop: make(chan struct{})}
			svc := NewHTTPServerService(srv, time.Second)
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- svc.Serve(ctx) }()
			cancel()
			select {
			case err := <-done:
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			case <-time.After(2 * time.Second):
				So("timeout", ShouldBeEmpty)
			}
			So(srv.shutdowns.Load(), ShouldEqual, 1)
		})

		Convey("a listen failure is returned", func() {
			srv := &stubHTTP{listenErr: errors.New("address in use"), stop: make(chan struct{})}
			err := NewHTTPServerService(srv, 0).Serve(context.Background())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "address in use")
		})
	})
}

func TestTree(t *testing.T) {
	Convey("Given a supervisor tree with fast backoff", t, func() {
		tree := NewTree(TreeConfig{
			FailureThreshold: 10,
			FailureDecay:     1,
			FailureBackoff:   10 * time.Millisecond,
			ShutdownTimeout:  time.Second,
		})

		Convey("a failing engine service is restarted", func() {
			flaky := &flakyServer{fails: 2}
			tree.AddEngineService(NewEngineService(flaky))
			ctx, cancel := context.WithCancel(context.Background())
			errCh := tree.ServeBackground(ctx)

			So(waitFor(func() bool { return flaky.starts.Load() >= 3 }), ShouldBeTrue)
			cancel()
			select {
			case <-errCh:
			case <-time.After(2 * time.Second):
				So("timeout", ShouldBeEmpty)
			}
		})

		Convey("the engine starts under supervision and stops on cancel", func() {
			svc := service.New(service.WithWorkerCount(1), service.WithCatalogSize(10))
			tree.AddEngineService(NewEngineService(svc))
			ctx, cancel := context.WithCancel(context.Background())
			errCh := tree.ServeBackground(ctx)

			So(waitFor(func() bool { return svc.GetStats()["started"] == true }), ShouldBeTrue)
			cancel()
			select {
			case <-errCh:
			case <-time.After(3 * time.Second):
				So("timeout", ShouldBeEmpty)
			}
			So(waitFor(func() bool { return svc.GetStats()["started"] == false }), ShouldBeTrue)
		})
	})
}
