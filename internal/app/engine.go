package app

import (
	"time"

	"quiz-grading-engine/internal/domain"
	"quiz-grading-engine/internal/grading"
	"quiz-grading-engine/internal/policy"

	"github.com/google/uuid"
)

// Engine is the storage-agnostic grading orchestrator. It decides whether attempts may start
// and turns a submission into a sealed attempt; persisting the outcome is the caller's job.
type Engine struct {
	newID func() string
}

func NewEngine() *Engine {
	return &Engine{newID: uuid.NewString}
}

// NewEngineWithIDs is test-only for deterministic attempt ids.
func NewEngineWithIDs(newID func() string) *Engine {
	return &Engine{newID: newID}
}

// StartAttempt opens a new attempt unless the attempt cap is reached or another attempt is
// still open. The attempt number is assigned at completion, not here.
func (e *Engine) StartAttempt(version domain.QuizVersion, participantID string, prior domain.PriorAttempts, now time.Time) (domain.Attempt, error) {
	if !policy.CanStartAttempt(prior.Completed, version.Policy.MaxAttempts) {
		return domain.Attempt{}, domain.ErrAttemptLimitReached
	}
	if prior.OpenAttemptID != "" {
		return domain.Attempt{}, domain.ErrAttemptAlreadyOpen
	}
	return domain.Attempt{
		ID:            e.newID(),
		ParticipantID: participantID,
		QuizVersionID: version.ID,
		StartedAt:     now,
		Response:      map[string]domain.Value{},
		Active:        true,
	}, nil
}

// Submit grades attempt against version and returns the completed attempt, carrying the full
// result, together with the result the learner is allowed to see. Submissions arriving after
// the time limit are still graded but recorded as forced.
func (e *Engine) Submit(version domain.QuizVersion, attempt domain.Attempt, sub domain.Submission, prior domain.PriorAttempts, now time.Time, forced bool) (domain.Attempt, domain.GradingResult, error) {
	if !attempt.Active {
		return attempt, domain.GradingResult{}, domain.ErrAttemptNotFound
	}
	if attempt.Completed() {
		return attempt, domain.GradingResult{}, domain.ErrAlreadyCompleted
	}
	if attempt.QuizVersionID != version.ID || (sub.QuizVersionID != "" && sub.QuizVersionID != version.ID) {
		return attempt, domain.GradingResult{}, domain.ErrDefinitionMismatch
	}
	if !forced && policy.IsExpired(attempt.StartedAt, version.Policy.TimeLimitMinutes, now) {
		forced = true
	}

	response := mergeAnswers(version.Definition, attempt.Response, sub.Answers)

	spent := int64(now.Sub(attempt.StartedAt) / time.Second)
	if spent < 0 {
		spent = 0
	}

	result := e.Grade(version, response)
	result.AttemptNumber = nextAttemptNumber(prior)
	result.Forced = forced
	result.TimeSpentSeconds = spent

	completedAt := now
	attempt.CompletedAt = &completedAt
	attempt.AttemptNumber = result.AttemptNumber
	attempt.Response = response
	attempt.TimeSpentSeconds = spent
	attempt.Forced = forced
	attempt.Result = &result

	return attempt, result.ForLearner(version.Policy.ShowFeedback), nil
}

// Grade scores response against version without touching any attempt state. The returned
// result carries every per-question detail.
func (e *Engine) Grade(version domain.QuizVersion, response map[string]domain.Value) domain.GradingResult {
	score := grading.ScoreResponse(version.Definition, response)
	result := domain.GradingResult{
		Score:           score.TotalEarned,
		PointsPossible:  score.TotalPossible,
		Percentage:      score.Percentage(),
		QuestionResults: score.PerQuestion,
	}
	if version.Policy.PassingScore != nil && score.HasGradable() {
		passed := result.Percentage >= *version.Policy.PassingScore
		result.IsPassed = &passed
	}
	return result
}

func nextAttemptNumber(prior domain.PriorAttempts) int {
	last := prior.LastNumber
	if prior.Completed > last {
		last = prior.Completed
	}
	return last + 1
}

// mergeAnswers overlays submitted answers on the saved draft, keeping only names the
// definition knows about.
func mergeAnswers(def domain.QuizDefinition, draft, submitted map[string]domain.Value) map[string]domain.Value {
	out := make(map[string]domain.Value, len(def.Questions))
	for _, q := range def.Questions {
		if v, ok := submitted[q.Name]; ok {
			out[q.Name] = v
			continue
		}
		if v, ok := draft[q.Name]; ok {
			out[q.Name] = v
		}
	}
	return out
}
