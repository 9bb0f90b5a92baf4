package simulate

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/attune/pkg/logger"
)

const (
	directoryPermission = 0750
	reportPermission    = 0600
	progressInterval    = time.Second
)

type sessionResponse struct {
	ID string `json:"id"`
}

type joinResponse struct {
	ConnectionID string `json:"connectionId"`
}

type reactionRequest struct {
	TrackID   string `json:"trackId"`
	Sentiment string `json:"sentiment"`
	Intensity int    `json:"intensity,omitempty"`
	ProfileID string `json:"profileId"`
}

type metricsResponse struct {
	TracksPlayed      int     `json:"tracksPlayed"`
	TotalReactions    int     `json:"totalReactions"`
	PositivityRatio   float64 `json:"positivityRatio"`
	AverageEngagement float64 `json:"averageEngagement"`
}

type recommendationsResponse struct {
	Recommendations []struct {
		TrackID string `json:"trackId"`
	} `json:"recommendations"`
}

// run is the state of one simulation.
type run struct {
	cfg      *Config
	client   *HTTPClient
	log      logger.Logger
	sessions []string
	accepted []atomic.Int64
}

// Run executes a complete simulation and returns its statistics. It fails
// when the server's metrics disagree with what it accepted.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	r := &run{
		cfg:    cfg,
		client: newHTTPClient(cfg.BaseURL, cfg.Timeout),
		log:    logger.Named("simulate"),
	}

	r.log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("listeners", cfg.Listeners),
		logger.Int("reactions", cfg.Reactions),
		logger.Int("workers", cfg.Workers))

	if err := r.client.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}
	if err := r.setup(ctx, stats); err != nil {
		return stats, fmt.Errorf("session setup failed: %w", err)
	}

	plan := generatePlan(cfg)
	stats.ReactionsPlanned = len(plan)
	r.submit(ctx, plan, stats)

	if err := r.collect(ctx, stats); err != nil {
		return stats, fmt.Errorf("report collection failed: %w", err)
	}
	if err := verifyResults(stats); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}
	if !cfg.KeepAlive {
		r.teardown(ctx)
	}
	if cfg.OutputFile != "" {
		if err := saveReport(cfg.OutputFile, stats); err != nil {
			r.log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	r.displayFinalStats(ctx, stats)
	return stats, nil
}

func profileID(session, listener int) string {
	return fmt.Sprintf("sim-%d-%d", session, listener)
}

// setup creates the sessions, joins every listener and starts a first track.
func (r *run) setup(ctx context.Context, stats *Stats) error {
	r.sessions = make([]string, r.cfg.Sessions)
	r.accepted = make([]atomic.Int64, r.cfg.Sessions)
	for s := range r.sessions {
		var sess sessionResponse
		settings := map[string]int{"maxParticipants": max(r.cfg.Listeners, 1)}
		if err := r.client.do(ctx, http.MethodPost, "/sessions", settings, &sess); err != nil {
			return err
		}
		r.sessions[s] = sess.ID
		stats.SessionsCreated++

		for l := 0; l < r.cfg.Listeners; l++ {
			id := profileID(s, l)
			var joined joinResponse
			if err := r.client.do(ctx, http.MethodPost, "/sessions/"+sess.ID+"/participants",
				map[string]string{"userId": id, "profileId": id}, &joined); err != nil {
				return err
			}
			stats.ListenersJoined++
		}

		if err := r.client.do(ctx, http.MethodPut, "/sessions/"+sess.ID+"/track",
			map[string]string{"trackId": trackID(1)}, nil); err != nil {
			return err
		}
	}
	return nil
}

// submit sends the plan through a worker pool.
func (r *run) submit(ctx context.Context, plan []Planned, stats *Stats) {
	var submitted, failed atomic.Int64
	var lastReport atomic.Int64

	jobs := make(chan Planned, r.cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < max(r.cfg.Workers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				sid := r.sessions[p.Session]
				err := r.client.do(ctx, http.MethodPost, "/sessions/"+sid+"/reactions", reactionRequest{
					TrackID:   p.TrackID,
					Sentiment: p.Sentiment,
					Intensity: p.Intensity,
					ProfileID: profileID(p.Session, p.Listener),
				}, nil)
				n := submitted.Add(1)
				if err != nil {
					failed.Add(1)
					if r.cfg.Verbose {
						r.log.Warn(ctx, "reaction failed", logger.String("session_id", sid), logger.Error(err))
					}
				} else {
					r.accepted[p.Session].Add(1)
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
					r.log.Info(ctx, "progress",
						logger.Int("submitted", int(n)),
						logger.Int("planned", len(plan)),
						logger.Int("failed", int(failed.Load())))
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range plan {
			select {
			case <-ctx.Done():
				return
			case jobs <- p:
			}
		}
	}()
	wg.Wait()

	stats.ReactionsSubmitted = int(submitted.Load())
	stats.ReactionsFailed = int(failed.Load())
	stats.ReactionsAccepted = stats.ReactionsSubmitted - stats.ReactionsFailed
}

// collect reads back metrics and recommendations for every session.
func (r *run) collect(ctx context.Context, stats *Stats) error {
	for s, sid := range r.sessions {
		var m metricsResponse
		if err := r.client.do(ctx, http.MethodGet, "/sessions/"+sid+"/metrics", nil, &m); err != nil {
			return err
		}
		var recs recommendationsResponse
		if err := r.client.do(ctx, http.MethodGet, "/sessions/"+sid+"/recommendations", nil, &recs); err != nil {
			return err
		}
		report := SessionReport{
			SessionID:       sid,
			Accepted:        int(r.accepted[s].Load()),
			TotalReactions:  m.TotalReactions,
			PositivityRatio: m.PositivityRatio,
			Engagement:      m.AverageEngagement,
			TracksPlayed:    m.TracksPlayed,
		}
		for _, rec := range recs.Recommendations {
			report.Recommendations = append(report.Recommendations, rec.TrackID)
		}
		stats.Sessions = append(stats.Sessions, report)
	}
	return nil
}

func (r *run) teardown(ctx context.Context) {
	for _, sid := range r.sessions {
		if err := r.client.do(ctx, http.MethodDelete, "/sessions/"+sid, nil, nil); err != nil {
			r.log.Warn(ctx, "failed to end session", logger.String("session_id", sid), logger.Error(err))
		}
	}
}

// saveReport writes the session reports as JSON.
func saveReport(filename string, stats *Stats) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(stats.Sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, reportPermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (r *run) displayFinalStats(ctx context.Context, stats *Stats) {
	var reactionsPerSecond float64
	if stats.Duration > 0 {
		reactionsPerSecond = float64(stats.ReactionsSubmitted) / stats.Duration.Seconds()
	}
	r.log.Info(ctx, "final statistics",
		logger.Int("sessionsCreated", stats.SessionsCreated),
		logger.Int("listenersJoined", stats.ListenersJoined),
		logger.Int("reactionsSubmitted", stats.ReactionsSubmitted),
		logger.Int("reactionsAccepted", stats.ReactionsAccepted),
		logger.Int("reactionsFailed", stats.ReactionsFailed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("reactionsPerSecond", reactionsPerSecond))
}
