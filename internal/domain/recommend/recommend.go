// Package recommend ranks catalog tracks for a session.
//
// Three strategies (collaborative, content and contextual) each propose their
// top five tracks; Merge blends them with fixed weights. Right after a
// reaction, Adaptive answers instead with tracks similar to, contrasting with,
// or diverse from the track that was just rated.
package recommend

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/pkg/logger"
	"github.com/okian/attune/pkg/metrics"
)

const (
	defaultLimit     = 10
	defaultPeerCount = 5
	perStrategy      = 5
	adaptiveSize     = 5
)

// Modes reported alongside a recommendation list.
const (
	ModeCombined = "combined"
	ModeAdaptive = "adaptive"
)

// Catalog provides track features.
type Catalog interface {
	Track(ctx context.Context, id string) (model.Track, error)
	Tracks(ctx context.Context) []model.Track
	Len() int
}

// Preferences provides per-profile preference vectors.
type Preferences interface {
	Vector(ctx context.Context, profileID string) map[string]float64
	Blend(ctx context.Context, profileIDs []string) map[string]float64
	Peers(ctx context.Context, vector map[string]float64, exclude []string, n int) []model.Peer
}

// Sessions provides session snapshots.
type Sessions interface {
	Get(ctx context.Context, sessionID string) (model.Session, error)
}

// Weights are the merge weights of the three strategies.
type Weights struct {
	Collaborative float64
	Content       float64
	Contextual    float64
}

// DefaultWeights returns 0.4 collaborative, 0.4 content, 0.2 contextual.
func DefaultWeights() Weights {
	return Weights{Collaborative: 0.4, Content: 0.4, Contextual: 0.2}
}

// Engine computes recommendations.
type Engine struct {
	catalog  Catalog
	prefs    Preferences
	sessions Sessions

	weights   Weights
	limit     int
	peerCount int
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	log logger.Logger
}

// New creates an Engine.
func New(catalog Catalog, prefs Preferences, sessions Sessions, opts ...Option) *Engine {
	e := &Engine{
		catalog:   catalog,
		prefs:     prefs,
		sessions:  sessions,
		weights:   DefaultWeights(),
		limit:     defaultLimit,
		peerCount: defaultPeerCount,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // track shuffling only
		log:       logger.Named("recommend"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recommend returns the merged list for a session. With a profile id the
// strategies use that profile's preferences; without one they use the blend
// of every current participant.
func (e *Engine) Recommend(ctx context.Context, sessionID, profileID string) ([]model.Recommendation, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRecommendationLatency(ModeCombined, float64(time.Since(start).Microseconds())/1000)
	}()

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sc := e.sessionContext(ctx, &sess)

	var vector map[string]float64
	exclude := sess.ProfileIDs()
	if profileID != "" {
		vector = e.prefs.Vector(ctx, profileID)
		exclude = append(exclude, profileID)
	} else {
		vector = e.prefs.Blend(ctx, sess.ProfileIDs())
	}

	return Merge(e.weights, e.limit,
		e.Collaborative(ctx, vector, exclude),
		e.ContentBased(ctx, vector, sc),
		e.Contextual(ctx, sc),
	), nil
}

// Refresh answers the recommendation trigger for a session. When last is set
// the adaptive list is tried first; if it is unavailable the combined list is
// returned instead.
func (e *Engine) Refresh(ctx context.Context, sessionID string, last *model.Reaction) (string, []model.Recommendation, error) {
	if last != nil {
		recs, err := e.Adaptive(ctx, sessionID, *last)
		if err == nil {
			return ModeAdaptive, recs, nil
		}
		if !errors.Is(err, model.ErrRecommendationUnavailable) {
			return "", nil, err
		}
		metrics.RecordRecommendationFallback()
		e.log.Debug(ctx, "adaptive recommendations unavailable, using combined",
			logger.String("session_id", sessionID),
			logger.String("track_id", last.TrackID),
			logger.Error(err),
		)
	}
	recs, err := e.Recommend(ctx, sessionID, "")
	return ModeCombined, recs, err
}

func (e *Engine) intn(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}
