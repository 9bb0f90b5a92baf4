package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/okian/attune/internal/domain/debounce"
	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/pkg/logger"
	"github.com/okian/attune/pkg/metrics"
)

const defaultRefreshWindow = 500 * time.Millisecond

// RefreshFunc computes a session's recommendations. last is the reaction
// that caused the refresh, or nil.
type RefreshFunc func(ctx context.Context, sessionID string, last *model.Reaction) (string, []model.Recommendation, error)

// Refresher coalesces recommendation refreshes per session and publishes
// RECOMMENDATIONS_UPDATED with the latest result.
type Refresher struct {
	ctx       context.Context
	refresh   RefreshFunc
	publisher Publisher
	window    time.Duration
	now       func() time.Time
	debouncer *debounce.Debouncer[string, *model.Reaction]
	log       logger.Logger

	mu   sync.Mutex
	last map[string]model.Reaction
}

// NewRefresher creates a refresher. ctx bounds every refresh it runs.
func NewRefresher(ctx context.Context, refresh RefreshFunc, publisher Publisher, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		ctx:       ctx,
		refresh:   refresh,
		publisher: publisher,
		window:    defaultRefreshWindow,
		now:       time.Now,
		log:       logger.Named("refresher"),
		last:      make(map[string]model.Reaction),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.debouncer = debounce.New[string, *model.Reaction](r.window, r.run)
	return r
}

// Trigger schedules a refresh driven by reaction rc.
func (r *Refresher) Trigger(sessionID string, rc model.Reaction) {
	r.mu.Lock()
	r.last[sessionID] = rc
	r.mu.Unlock()
	r.debouncer.Submit(sessionID, &rc)
}

// Poke schedules a refresh after a non-reaction change, such as a participant
// joining or the track changing. The session's latest reaction, if any,
// still drives the refresh.
func (r *Refresher) Poke(sessionID string) {
	r.mu.Lock()
	rc, ok := r.last[sessionID]
	r.mu.Unlock()
	if ok {
		r.debouncer.Submit(sessionID, &rc)
		return
	}
	r.debouncer.Submit(sessionID, nil)
}

// Cancel drops a pending refresh for sessionID and forgets its last reaction.
func (r *Refresher) Cancel(sessionID string) bool {
	r.mu.Lock()
	delete(r.last, sessionID)
	r.mu.Unlock()
	return r.debouncer.Cancel(sessionID)
}

// Pending returns the number of sessions waiting for a refresh.
func (r *Refresher) Pending() int {
	return r.debouncer.Pending()
}

// Stop cancels all pending refreshes.
func (r *Refresher) Stop() {
	r.debouncer.Stop()
}

func (r *Refresher) run(sessionID string, last *model.Reaction) {
	if r.ctx.Err() != nil {
		return
	}
	mode, recs, err := r.refresh(r.ctx, sessionID, last)
	if err != nil {
		r.log.Debug(r.ctx, "refresh skipped", logger.String("session_id", sessionID), logger.Error(err))
		return
	}
	payload := model.RecommendationsPayload{Mode: mode, Recommendations: recs}
	if last != nil {
		payload.TriggerTrackID = last.TrackID
	}
	if err := r.publisher.Publish(r.ctx, model.NewEvent(model.EventRecommendationsUpdated, sessionID, r.now(), payload)); err != nil {
		r.log.Warn(r.ctx, "publish recommendations failed", logger.String("session_id", sessionID), logger.Error(err))
		return
	}
	metrics.RecordRecommendationsUpdated()
}
