package http

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-grading-engine/internal/app"
	"quiz-grading-engine/internal/domain"
	"quiz-grading-engine/internal/infra/memory"

	"github.com/sirupsen/logrus"
)

type testEnv struct {
	server   *httptest.Server
	service  *app.Service
	hub      *app.CompletionHub
	quizzes  app.QuizRepository
	attempts app.AttemptStore
}

func newTestEnv(t *testing.T, policy domain.QuizPolicy, secret string, opts ...app.ServiceOption) *testEnv {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.QuizVersion{
		"v1": sampleVersion(policy),
	}), time.Minute)
	hub := app.NewCompletionHub()
	opts = append(opts, app.WithNotifiers(hub))
	attempts := memory.NewAttemptStore()
	service := app.NewService(quizRepo, attempts, log, opts...)

	ws := NewWSHandler(service, hub, log).WithTick(10 * time.Millisecond)
	server := httptest.NewServer(NewRouter(NewAPI(service, log), ws, NewIdentity(secret), log))
	t.Cleanup(server.Close)
	return &testEnv{server: server, service: service, hub: hub, quizzes: quizRepo, attempts: attempts}
}

func sampleVersion(policy domain.QuizPolicy) domain.QuizVersion {
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
				Options: []domain.Option{
					{Label: "3", Value: "3"},
					{Label: "4", Value: "4"},
					{Label: "5", Value: "5"},
				},
			},
			{Name: "q2", Type: domain.QuestionNumber, Label: "What is 3 * 3?", CorrectAnswer: domain.NumberValue(9)},
		}},
		Policy: policy,
	}
}
