package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-grading-engine/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz versions from a backing store (Postgres, YAML file).
type QuizLoader interface {
	LoadQuizVersion(ctx context.Context, versionID string) (domain.QuizVersion, error)
}

// QuizRepository caches quiz versions with TTL to avoid repeated store hits.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedVersion
}

type cachedVersion struct {
	version   domain.QuizVersion
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedVersion),
	}
}

func (r *QuizRepository) GetQuizVersion(ctx context.Context, versionID string) (domain.QuizVersion, error) {
	if v, ok := r.cached(versionID); ok {
		return v, nil
	}

	result, err, _ := r.sf.Do(versionID, func() (interface{}, error) {
		if v, ok := r.cached(versionID); ok {
			return v, nil
		}

		version, err := r.loader.LoadQuizVersion(ctx, versionID)
		if err != nil {
			return domain.QuizVersion{}, err
		}

		r.mu.Lock()
		r.cache[versionID] = cachedVersion{
			version:   version,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return version, nil
	})
	if err != nil {
		return domain.QuizVersion{}, err
	}
	return result.(domain.QuizVersion), nil
}

func (r *QuizRepository) cached(versionID string) (domain.QuizVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[versionID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.QuizVersion{}, false
	}
	return entry.version, true
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader is a loader backed by an in-memory map (YAML file, tests, demos).
type StaticQuizLoader struct {
	versions map[string]domain.QuizVersion
}

func NewStaticQuizLoader(versions map[string]domain.QuizVersion) *StaticQuizLoader {
	return &StaticQuizLoader{versions: versions}
}

// NewStaticQuizLoaderFromList validates and indexes versions by id.
func NewStaticQuizLoaderFromList(versions []domain.QuizVersion) (*StaticQuizLoader, error) {
	byID := make(map[string]domain.QuizVersion, len(versions))
	for _, v := range versions {
		if err := domain.ValidateQuizVersion(v); err != nil {
			return nil, err
		}
		byID[v.ID] = v
	}
	return NewStaticQuizLoader(byID), nil
}

func (l *StaticQuizLoader) LoadQuizVersion(_ context.Context, versionID string) (domain.QuizVersion, error) {
	if v, ok := l.versions[versionID]; ok {
		return v, nil
	}
	return domain.QuizVersion{}, domain.ErrQuizNotFound
}
