package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-grading-engine/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.QuizVersion{
			"v1": sampleVersion(),
		}),
	}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuizVersion(context.Background(), "v1"); err != nil {
		t.Fatalf("get quiz version: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := repo.GetQuizVersion(context.Background(), "v1"); err != nil {
		t.Fatalf("get quiz version 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(map[string]domain.QuizVersion{"v1": sampleVersion()})}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuizVersion(context.Background(), "v1")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuizVersion(context.Background(), "v1")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", loader.calls.Load())
	}
}

func TestQuizRepositoryCollapsesConcurrentLoads(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.QuizVersion{"v1": sampleVersion()}),
		gate:       release,
	}
	repo := NewQuizRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuizVersion(context.Background(), "v1"); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected a single load, got %d", loader.calls.Load())
	}
}

func TestQuizRepositoryNotFound(t *testing.T) {
	repo := NewQuizRepository(NewStaticQuizLoader(nil), time.Minute)
	if _, err := repo.GetQuizVersion(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStaticQuizLoaderFromListValidates(t *testing.T) {
	bad := sampleVersion()
	bad.Definition.Questions = append(bad.Definition.Questions, bad.Definition.Questions[0])
	if _, err := NewStaticQuizLoaderFromList([]domain.QuizVersion{bad}); err == nil {
		t.Fatalf("expected duplicate question names to be rejected")
	}

	loader, err := NewStaticQuizLoaderFromList([]domain.QuizVersion{sampleVersion()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := loader.LoadQuizVersion(context.Background(), "v1"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls atomic.Int32
	gate  chan struct{}
}

func (l *countingLoader) LoadQuizVersion(ctx context.Context, versionID string) (domain.QuizVersion, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.QuizLoader.LoadQuizVersion(ctx, versionID)
}

func sampleVersion() domain.QuizVersion {
	return domain.QuizVersion{
		ID:     "v1",
		QuizID: "quiz-1",
		Title:  "Arithmetic",
		Definition: domain.QuizDefinition{Questions: []domain.Question{
			{
				Name:          "q1",
				Type:          domain.QuestionSingleSelect,
				Label:         "What is 2 + 2?",
				CorrectAnswer: domain.StringValue("4"),
				Options:       []domain.Option{{Label: "3", Value: "3"}, {Label: "4", Value: "4"}},
			},
		}},
	}
}
