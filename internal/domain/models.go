package domain

import (
	"math/rand"
	"time"
)

// QuestionType is the closed set of answer shapes the comparator understands.
type QuestionType string

const (
	QuestionText         QuestionType = "text"
	QuestionNumber       QuestionType = "number"
	QuestionBoolean      QuestionType = "boolean"
	QuestionSingleSelect QuestionType = "single-select"
	QuestionMultiSelect  QuestionType = "multi-select"
	QuestionDate         QuestionType = "date"
)

// ScoringMode selects how points are earned per question.
type ScoringMode string

const (
	// ScoringSimple awards all or nothing per question.
	ScoringSimple ScoringMode = "simple"
	// ScoringWeighted additionally gives multi-select questions proportional partial credit.
	ScoringWeighted ScoringMode = "weighted"
)

// Option is a label/value pair for select-like questions.
type Option struct {
	Label    string `json:"label" yaml:"label"`
	Value    string `json:"value" yaml:"value"`
	Feedback string `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

// OutcomeFeedback is shown to the learner depending on correctness.
type OutcomeFeedback struct {
	Correct   string `json:"correct,omitempty" yaml:"correct,omitempty"`
	Incorrect string `json:"incorrect,omitempty" yaml:"incorrect,omitempty"`
}

// Question is one gradable (or informational) entry of a quiz definition.
type Question struct {
	Name            string           `json:"name" yaml:"name" validate:"required"`
	Type            QuestionType     `json:"type" yaml:"type" validate:"required"`
	Label           string           `json:"label,omitempty" yaml:"label,omitempty"`
	Points          *float64         `json:"points,omitempty" yaml:"points,omitempty" validate:"omitempty,gte=0"`
	CorrectAnswer   Value            `json:"correctAnswer" yaml:"correctAnswer,omitempty"`
	Options         []Option         `json:"options,omitempty" yaml:"options,omitempty"`
	Feedback        *OutcomeFeedback `json:"feedback,omitempty" yaml:"feedback,omitempty"`
	CaseInsensitive bool             `json:"caseInsensitive,omitempty" yaml:"caseInsensitive,omitempty"`
	Tolerance       float64          `json:"tolerance,omitempty" yaml:"tolerance,omitempty" validate:"gte=0"`
}

// PointsTotal is the weight of the question, defaulting to 1.
func (q Question) PointsTotal() float64 {
	if q.Points == nil {
		return 1
	}
	return *q.Points
}

// QuizDefinition is the ordered question list; order is the grading order.
type QuizDefinition struct {
	Questions []Question  `json:"questions" yaml:"questions" validate:"unique=Name,dive"`
	Scoring   ScoringMode `json:"scoring,omitempty" yaml:"scoring,omitempty" validate:"omitempty,oneof=simple weighted"`
}

// QuizPolicy holds the rules attached to a quiz version. Nil pointers mean "not configured".
type QuizPolicy struct {
	PassingScore       *float64 `json:"passingScore" yaml:"passingScore" validate:"omitempty,gte=0,lte=100"`
	MaxAttempts        *int     `json:"maxAttempts" yaml:"maxAttempts" validate:"omitempty,gte=1"`
	TimeLimitMinutes   *int     `json:"timeLimitMinutes" yaml:"timeLimitMinutes" validate:"omitempty,gte=1"`
	ShowFeedback       bool     `json:"showFeedback" yaml:"showFeedback"`
	RandomizeQuestions bool     `json:"randomizeQuestions" yaml:"randomizeQuestions"`
}

// QuizVersion pairs a definition with the policy it is graded under.
type QuizVersion struct {
	ID         string         `json:"id" yaml:"id" validate:"required"`
	QuizID     string         `json:"quizId" yaml:"quizId"`
	Title      string         `json:"title,omitempty" yaml:"title,omitempty"`
	Definition QuizDefinition `json:"definition" yaml:"definition"`
	Policy     QuizPolicy     `json:"policy" yaml:"policy"`
}

// PublicOption is an option as shown to learners.
type PublicOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// PublicQuestion is a question stripped of answers and feedback.
type PublicQuestion struct {
	Name    string         `json:"name"`
	Type    QuestionType   `json:"type"`
	Label   string         `json:"label,omitempty"`
	Points  float64        `json:"points"`
	Options []PublicOption `json:"options,omitempty"`
}

// Presentation returns the learner-facing questions. When the policy randomizes questions the
// order is shuffled deterministically from seed; grading never uses this order.
func (v QuizVersion) Presentation(seed int64) []PublicQuestion {
	out := make([]PublicQuestion, 0, len(v.Definition.Questions))
	for _, q := range v.Definition.Questions {
		pq := PublicQuestion{Name: q.Name, Type: q.Type, Label: q.Label, Points: q.PointsTotal()}
		for _, opt := range q.Options {
			pq.Options = append(pq.Options, PublicOption{Label: opt.Label, Value: opt.Value})
		}
		out = append(out, pq)
	}
	if v.Policy.RandomizeQuestions {
		rnd := rand.New(rand.NewSource(seed))
		rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out
}

// QuestionResult is the per-question grading output.
type QuestionResult struct {
	QuestionName  string  `json:"questionName"`
	Graded        bool    `json:"graded"`
	IsCorrect     bool    `json:"isCorrect"`
	PointsEarned  float64 `json:"pointsEarned"`
	PointsTotal   float64 `json:"pointsTotal"`
	UserAnswer    Value   `json:"userAnswer"`
	CorrectAnswer Value   `json:"correctAnswer"`
	Feedback      string  `json:"feedback,omitempty"`
}

// GradingResult is the terminal computed state of an attempt.
type GradingResult struct {
	Score            float64          `json:"score"`
	PointsPossible   float64          `json:"pointsPossible"`
	Percentage       float64          `json:"percentage"`
	IsPassed         *bool            `json:"isPassed"`
	QuestionResults  []QuestionResult `json:"questionResults,omitempty"`
	AttemptNumber    int              `json:"attemptNumber"`
	Forced           bool             `json:"forced"`
	TimeSpentSeconds int64            `json:"timeSpentSeconds"`
}

// ForLearner drops per-question results unless feedback is visible.
func (r GradingResult) ForLearner(showFeedback bool) GradingResult {
	if !showFeedback {
		r.QuestionResults = nil
		return r
	}
	results := make([]QuestionResult, len(r.QuestionResults))
	copy(results, r.QuestionResults)
	r.QuestionResults = results
	return r
}

// Attempt is a single pass of a participant at a quiz version.
type Attempt struct {
	ID               string           `json:"id"`
	ParticipantID    string           `json:"participantId"`
	QuizVersionID    string           `json:"quizVersionId"`
	AttemptNumber    int              `json:"attemptNumber,omitempty"`
	StartedAt        time.Time        `json:"startedAt"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
	Response         map[string]Value `json:"response,omitempty"`
	TimeSpentSeconds int64            `json:"timeSpentSeconds,omitempty"`
	Forced           bool             `json:"forced,omitempty"`
	Active           bool             `json:"active"`
	Result           *GradingResult   `json:"result,omitempty"`
}

// Completed reports whether the attempt reached its terminal state.
func (a Attempt) Completed() bool { return a.CompletedAt != nil }

// PriorAttempts summarizes a participant's history on one quiz version.
type PriorAttempts struct {
	// Completed counts active completed attempts; this is what the attempt cap applies to.
	Completed int
	// LastNumber is the highest attempt number ever assigned, deactivated attempts included.
	LastNumber int
	// OpenAttemptID is set when an unfinished attempt exists.
	OpenAttemptID string
}

// Submission is what a learner (or the expiry path) sends to complete an attempt.
type Submission struct {
	QuizVersionID string           `json:"quizVersionId,omitempty"`
	Answers       map[string]Value `json:"answers"`
}
