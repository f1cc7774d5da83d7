package app_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"quiz-grading-engine/internal/app"
	"quiz-grading-engine/internal/domain"
	"quiz-grading-engine/internal/infra/memory"

	"github.com/sirupsen/logrus"
)

func TestServiceAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	two := 2
	service, _ := newTestService(domain.QuizPolicy{MaxAttempts: &two, ShowFeedback: true})

	for want := 1; want <= 2; want++ {
		attempt, err := service.Start(ctx, "v1", "p1")
		if err != nil {
			t.Fatalf("start %d: %v", want, err)
		}
		if _, err := service.Start(ctx, "v1", "p1"); !errors.Is(err, domain.ErrAttemptAlreadyOpen) {
			t.Fatalf("expected already open, got %v", err)
		}
		result, err := service.Submit(ctx, attempt.ID, "p1", domain.Submission{Answers: correctAnswers()}, false)
		if err != nil {
			t.Fatalf("submit %d: %v", want, err)
		}
		if result.AttemptNumber != want {
			t.Fatalf("expected attempt number %d, got %d", want, result.AttemptNumber)
		}
		if len(result.QuestionResults) != 2 {
			t.Fatalf("expected feedback with showFeedback, got %d results", len(result.QuestionResults))
		}
		if _, err := service.Submit(ctx, attempt.ID, "p1", domain.Submission{}, false); !errors.Is(err, domain.ErrAlreadyCompleted) {
			t.Fatalf("expected already completed, got %v", err)
		}
	}

	if _, err := service.Start(ctx, "v1", "p1"); !errors.Is(err, domain.ErrAttemptLimitReached) {
		t.Fatalf("expected limit reached, got %v", err)
	}
	if _, err := service.Start(ctx, "v1", "p2"); err != nil {
		t.Fatalf("another participant is unaffected: %v", err)
	}

	list, err := service.List(ctx, "v1", "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].AttemptNumber != 1 || list[1].AttemptNumber != 2 {
		t.Fatalf("unexpected history %+v", list)
	}
}

func TestServiceConcurrentSubmitCompletesOnce(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(domain.QuizPolicy{})

	attempt, err := service.Start(ctx, "v1", "p1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Submit(ctx, attempt.ID, "p1", domain.Submission{}, false)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrAlreadyCompleted):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful submission, got %d", succeeded)
	}
}

func TestServiceOwnership(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(domain.QuizPolicy{})

	attempt, err := service.Start(ctx, "v1", "p1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Attempt(ctx, attempt.ID, "p2"); !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, err := service.Submit(ctx, attempt.ID, "p2", domain.Submission{}, false); !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Fatalf("expected not owner on submit, got %v", err)
	}
	if _, err := service.Attempt(ctx, "missing", "p1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.Start(ctx, "nope", "p1"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestServiceDraftAnswersAndForceSubmit(t *testing.T) {
	ctx := context.Background()
	service, hub := newTestService(domain.QuizPolicy{})

	attempt, err := service.Start(ctx, "v1", "p1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.SaveAnswers(ctx, attempt.ID, "p1", map[string]domain.Value{"capital": domain.StringValue("Paris")}); err != nil {
		t.Fatalf("save answers: %v", err)
	}

	done, cancel := hub.Subscribe(attempt.ID)
	defer cancel()

	result, err := service.ForceSubmit(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("force submit: %v", err)
	}
	if !result.Forced || result.Score != 1 {
		t.Fatalf("expected forced submission graded from draft, got %+v", result)
	}

	select {
	case completed := <-done:
		if completed.ID != attempt.ID || completed.Result == nil {
			t.Fatalf("unexpected completion %+v", completed)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for completion")
	}

	if _, err := service.ForceSubmit(ctx, attempt.ID); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
	if _, err := service.SaveAnswers(ctx, attempt.ID, "p1", map[string]domain.Value{"sum": domain.NumberValue(4)}); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected draft rejection after completion, got %v", err)
	}
}

func TestServiceExpireOverdue(t *testing.T) {
	ctx := context.Background()
	ten := 10
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := memory.NewAttemptStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.QuizVersion{
		"v1":      testVersion(domain.QuizPolicy{TimeLimitMinutes: &ten}),
		"untimed": withID(testVersion(domain.QuizPolicy{}), "untimed"),
	}), time.Minute)
	service := app.NewService(quizzes, store, quietLogger(), app.WithClock(clock))

	timed, err := service.Start(ctx, "v1", "p1")
	if err != nil {
		t.Fatalf("start timed: %v", err)
	}
	if _, err := service.Start(ctx, "untimed", "p1"); err != nil {
		t.Fatalf("start untimed: %v", err)
	}

	if n, _ := service.ExpireOverdue(ctx); n != 0 {
		t.Fatalf("nothing should expire yet, got %d", n)
	}

	now = now.Add(10 * time.Minute)
	n, err := service.ExpireOverdue(ctx)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one expired attempt, got %d", n)
	}

	stored, err := store.Get(ctx, timed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.Completed() || !stored.Forced || stored.TimeSpentSeconds != 600 {
		t.Fatalf("expected forced completion after 600s, got %+v", stored)
	}
	if got := service.RemainingSeconds(testVersion(domain.QuizPolicy{TimeLimitMinutes: &ten}), stored); got != 0 {
		t.Fatalf("completed attempt has no time left, got %d", got)
	}
}

func TestServiceDeactivateKeepsCapAndNumbering(t *testing.T) {
	ctx := context.Background()
	two := 2
	service, _ := newTestService(domain.QuizPolicy{MaxAttempts: &two})

	attempt, _ := service.Start(ctx, "v1", "p1")
	if _, err := service.Submit(ctx, attempt.ID, "p1", domain.Submission{}, false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := service.Deactivate(ctx, attempt.ID, "p2"); !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := service.Deactivate(ctx, attempt.ID, "p1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	next, err := service.Start(ctx, "v1", "p1")
	if err != nil {
		t.Fatalf("start second attempt: %v", err)
	}
	result, err := service.Submit(ctx, next.ID, "p1", domain.Submission{}, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.AttemptNumber != 2 {
		t.Fatalf("attempt numbers are never reused, got %d", result.AttemptNumber)
	}
	if err := service.Deactivate(ctx, next.ID, "p1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := service.Start(ctx, "v1", "p1"); !errors.Is(err, domain.ErrAttemptLimitReached) {
		t.Fatalf("deactivated attempts still count toward the cap, got %v", err)
	}
	list, _ := service.List(ctx, "v1", "p1")
	if len(list) != 0 {
		t.Fatalf("deactivated attempts are hidden, got %+v", list)
	}
}

func TestServiceRejectsSubmitOfDeactivatedAttempt(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(domain.QuizPolicy{})

	first, _ := service.Start(ctx, "v1", "p1")
	if err := service.Deactivate(ctx, first.ID, "p1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	second, err := service.Start(ctx, "v1", "p1")
	if err != nil {
		t.Fatalf("deactivating the open attempt frees the slot: %v", err)
	}
	if _, err := service.Submit(ctx, first.ID, "p1", domain.Submission{Answers: correctAnswers()}, false); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected not found for deactivated attempt, got %v", err)
	}
	if _, err := service.ForceSubmit(ctx, first.ID); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected not found on forced submit, got %v", err)
	}
	result, err := service.Submit(ctx, second.ID, "p1", domain.Submission{Answers: correctAnswers()}, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.AttemptNumber != 1 {
		t.Fatalf("expected the only graded attempt to be number 1, got %d", result.AttemptNumber)
	}
}

func TestServiceListHidesQuestionResults(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(domain.QuizPolicy{ShowFeedback: false})

	attempt, _ := service.Start(ctx, "v1", "p1")
	if _, err := service.Submit(ctx, attempt.ID, "p1", domain.Submission{Answers: correctAnswers()}, false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	list, err := service.List(ctx, "v1", "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list[0].Result == nil || list[0].Result.Percentage != 100 || len(list[0].Result.QuestionResults) != 0 {
		t.Fatalf("expected score without question results, got %+v", list[0].Result)
	}
}

func TestExpirySweeperStopsOnCancel(t *testing.T) {
	service, _ := newTestService(domain.QuizPolicy{})
	sweeper := app.NewExpirySweeper(service, 5*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
}

func TestCompletionHubCancel(t *testing.T) {
	hub := app.NewCompletionHub()
	_, cancel := hub.Subscribe("a1")
	_, cancel2 := hub.Subscribe("a1")
	if hub.Subscribers("a1") != 2 {
		t.Fatalf("expected 2 subscribers")
	}
	cancel()
	cancel()
	cancel2()
	if hub.Subscribers("a1") != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
	if err := hub.AttemptCompleted(context.Background(), domain.Attempt{ID: "a1"}); err != nil {
		t.Fatalf("notify without subscribers: %v", err)
	}
}

func newTestService(p domain.QuizPolicy) (*app.Service, *app.CompletionHub) {
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.QuizVersion{
		"v1": testVersion(p),
	}), time.Minute)
	hub := app.NewCompletionHub()
	log := quietLogger()
	service := app.NewService(quizzes, memory.NewAttemptStore(), log,
		app.WithNotifiers(hub, app.NewLogProgressNotifier(log)))
	return service, hub
}

func testVersion(p domain.QuizPolicy) domain.QuizVersion {
	return domain.QuizVersion{
		ID:     "v1",
		QuizID: "quiz-1",
		Definition: domain.QuizDefinition{Questions: []domain.Question{
			{Name: "capital", Type: domain.QuestionText, CorrectAnswer: domain.StringValue("Paris")},
			{Name: "sum", Type: domain.QuestionNumber, CorrectAnswer: domain.NumberValue(4)},
		}},
		Policy: p,
	}
}

func withID(v domain.QuizVersion, id string) domain.QuizVersion {
	v.ID = id
	return v
}

func correctAnswers() map[string]domain.Value {
	return map[string]domain.Value{"capital": domain.StringValue("Paris"), "sum": domain.NumberValue(4)}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
