package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"quiz-grading-engine/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz versions from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuizVersion(ctx context.Context, versionID string) (domain.QuizVersion, error)
}

// QuizRepository caches quiz versions in Redis and falls back to a loader on cache miss.
// Versions are stored as JSON: SET quiz:version:{versionID} {json} EX ttl
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuizVersion(ctx context.Context, versionID string) (domain.QuizVersion, error) {
	if v, ok := r.cached(ctx, versionID); ok {
		return v, nil
	}

	result, err, _ := r.sf.Do(versionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if v, ok := r.cached(ctx, versionID); ok {
			return v, nil
		}

		version, err := r.loader.LoadQuizVersion(ctx, versionID)
		if err != nil {
			return domain.QuizVersion{}, err
		}
		if payload, err := json.Marshal(version); err == nil {
			_ = r.client.Set(ctx, versionKey(versionID), payload, r.ttlWithJitter()).Err()
		}
		return version, nil
	})
	if err != nil {
		return domain.QuizVersion{}, err
	}
	return result.(domain.QuizVersion), nil
}

// Invalidate drops a cached version so the next read reloads it.
func (r *QuizRepository) Invalidate(ctx context.Context, versionID string) error {
	return r.client.Del(ctx, versionKey(versionID)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, versionID string) (domain.QuizVersion, bool) {
	payload, err := r.client.Get(ctx, versionKey(versionID)).Bytes()
	if err != nil {
		// redis.Nil and transport errors both fall through to the loader
		return domain.QuizVersion{}, false
	}
	var v domain.QuizVersion
	if err := json.Unmarshal(payload, &v); err != nil {
		return domain.QuizVersion{}, false
	}
	return v, true
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func versionKey(versionID string) string {
	return "quiz:version:" + versionID
}
