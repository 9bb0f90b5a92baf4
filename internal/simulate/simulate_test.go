package simulate

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/attune/internal/adapters/http/api"
	service "github.com/okian/attune/internal/app"
	"github.com/okian/attune/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestGeneratePlan(t *testing.T) {
	Convey("Given a simulation config", t, func() {
		cfg := &Config{Sessions: 2, Listeners: 3, Reactions: 4, Tracks: 10, Seed: 42}

		Convey("the plan covers every listener's reactions", func() {
			plan := generatePlan(cfg)
			So(plan, ShouldHaveLength, 24)
			for _, p := range plan {
				So(p.Session, ShouldBeBetweenOrEqual, 0, 1)
				So(p.Listener, ShouldBeBetweenOrEqual, 0, 2)
				So(p.TrackID, ShouldStartWith, "trk-00")
				So(sentiments, ShouldContain, p.Sentiment)
				So(p.Intensity, ShouldBeBetweenOrEqual, 0, 5)
			}
		})

		Convey("the same seed reproduces the plan", func() {
			So(generatePlan(cfg), ShouldResemble, generatePlan(cfg))
		})

		Convey("a listener's taste for a track is stable", func() {
			So(taste(1, 0, 0, "trk-0001"), ShouldEqual, taste(1, 0, 0, "trk-0001"))
		})
	})
}

func TestVerifyResults(t *testing.T) {
	Convey("Given run statistics", t, func() {
		stats := &Stats{
			ReactionsPlanned:   2,
			ReactionsSubmitted: 2,
			Sessions: []SessionReport{
				{SessionID: "s1", Accepted: 2, TotalReactions: 2, PositivityRatio: 0.5, Recommendations: []string{"trk-0001"}},
			},
		}

		Convey("matching counts verify", func() {
			So(verifyResults(stats), ShouldBeNil)
		})

		Convey("a count mismatch fails", func() {
			stats.Sessions[0].TotalReactions = 1
			So(verifyResults(stats), ShouldNotBeNil)
		})

		Convey("missing recommendations fail", func() {
			stats.Sessions[0].Recommendations = nil
			So(verifyResults(stats), ShouldNotBeNil)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running server", t, func() {
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithCatalogSize(30),
			service.WithReactionDebounce(0),
			service.WithRecommendDebounce(10*time.Millisecond),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		srv := httptest.NewServer(api.NewServer(svc, svc).Handler())
		Reset(func() {
			srv.Close()
			svc.Stop()
		})

		report := filepath.Join(t.TempDir(), "out", "report.json")
		cfg := &Config{
			BaseURL:    srv.URL,
			Sessions:   2,
			Listeners:  3,
			Reactions:  5,
			Tracks:     30,
			Workers:    4,
			Timeout:    5 * time.Second,
			Seed:       7,
			OutputFile: report,
		}

		Convey("every planned reaction is accepted and accounted for", func() {
			stats, err := Run(context.Background(), cfg)
			So(err, ShouldBeNil)
			So(stats.SessionsCreated, ShouldEqual, 2)
			So(stats.ListenersJoined, ShouldEqual, 6)
			So(stats.ReactionsAccepted, ShouldEqual, 30)
			So(stats.ReactionsFailed, ShouldEqual, 0)
			So(stats.Sessions, ShouldHaveLength, 2)

			_, statErr := os.Stat(report)
			So(statErr, ShouldBeNil)

			Convey("and the sessions are ended afterwards", func() {
				_, err := svc.GetSession(context.Background(), stats.Sessions[0].SessionID)
				So(service.IsNotFound(err), ShouldBeTrue)
			})
		})

		Convey("an unreachable server fails the health check", func() {
			cfg.BaseURL = "http://127.0.0.1:1"
			_, err := Run(context.Background(), cfg)
			So(err, ShouldNotBeNil)
		})
	})
}
