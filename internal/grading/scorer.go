package grading

import (
	"strings"

	"quiz-grading-engine/internal/domain"
)

// Score is the aggregate outcome of grading one response.
type Score struct {
	PerQuestion   []domain.QuestionResult
	TotalEarned   float64
	TotalPossible float64
}

// Percentage is TotalEarned/TotalPossible on a 0-100 scale, or 0 when nothing is gradable.
// No rounding is applied.
func (s Score) Percentage() float64 {
	if s.TotalPossible <= 0 {
		return 0
	}
	return s.TotalEarned / s.TotalPossible * 100
}

// HasGradable reports whether at least one question contributed to the denominator.
func (s Score) HasGradable() bool {
	return s.TotalPossible > 0
}

// IsGradable reports whether q takes part in scoring.
func IsGradable(q domain.Question) bool {
	return Gradable(q.Type) && !q.CorrectAnswer.IsNone()
}

// ScoreResponse grades response against def in definition order. Answers for unknown
// question names are ignored; missing answers are incorrect.
func ScoreResponse(def domain.QuizDefinition, response map[string]domain.Value) Score {
	score := Score{PerQuestion: make([]domain.QuestionResult, 0, len(def.Questions))}
	for _, q := range def.Questions {
		result := scoreQuestion(def.Scoring, q, response[q.Name])
		score.TotalEarned += result.PointsEarned
		score.TotalPossible += result.PointsTotal
		score.PerQuestion = append(score.PerQuestion, result)
	}
	return score
}

func scoreQuestion(mode domain.ScoringMode, q domain.Question, answer domain.Value) domain.QuestionResult {
	result := domain.QuestionResult{
		QuestionName:  q.Name,
		UserAnswer:    answer,
		CorrectAnswer: q.CorrectAnswer,
	}
	if !IsGradable(q) {
		return result
	}

	result.Graded = true
	result.PointsTotal = q.PointsTotal()
	result.IsCorrect = Compare(q.Type, answer, q.CorrectAnswer, OptionsFor(q))
	switch {
	case result.IsCorrect:
		result.PointsEarned = result.PointsTotal
	case mode == domain.ScoringWeighted && q.Type == domain.QuestionMultiSelect && !answer.IsNone():
		hits, falsePositive, size := Overlap(answer, q.CorrectAnswer, q.CaseInsensitive)
		if !falsePositive && size > 0 {
			result.PointsEarned = result.PointsTotal * float64(hits) / float64(size)
		}
	}
	result.Feedback = feedbackFor(q, answer, result.IsCorrect)
	return result
}

// feedbackFor prefers feedback attached to the selected options, then the outcome feedback.
func feedbackFor(q domain.Question, answer domain.Value, correct bool) string {
	if len(q.Options) > 0 && !answer.IsNone() {
		selected := toSet(answer, q.CaseInsensitive)
		var notes []string
		for _, opt := range q.Options {
			if opt.Feedback == "" {
				continue
			}
			if _, ok := selected[normalize(opt.Value, q.CaseInsensitive)]; ok {
				notes = append(notes, opt.Feedback)
			}
		}
		if len(notes) > 0 {
			return strings.Join(notes, "\n")
		}
	}
	if q.Feedback == nil {
		return ""
	}
	if correct {
		return q.Feedback.Correct
	}
	return q.Feedback.Incorrect
}
