package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-grading-engine/internal/domain"
	"quiz-grading-engine/internal/policy"

	"github.com/sirupsen/logrus"
)

// QuizRepository loads quiz versions (from cache/backing store).
type QuizRepository interface {
	GetQuizVersion(ctx context.Context, versionID string) (domain.QuizVersion, error)
}

// AttemptStore persists attempts and is the serialization point for attempt numbering.
//
// Open must refuse a second open attempt for the same participant and quiz version with
// domain.ErrAttemptAlreadyOpen. Seal must atomically check that the attempt is still open
// (domain.ErrAlreadyCompleted otherwise) and that its number follows the last assigned one
// (domain.ErrAttemptNumberConflict otherwise).
type AttemptStore interface {
	Prior(ctx context.Context, participantID, quizVersionID string) (domain.PriorAttempts, error)
	Open(ctx context.Context, attempt domain.Attempt) error
	Get(ctx context.Context, attemptID string) (domain.Attempt, error)
	SaveDraft(ctx context.Context, attemptID string, answers map[string]domain.Value) (domain.Attempt, error)
	Seal(ctx context.Context, attempt domain.Attempt) error
	ListOpen(ctx context.Context) ([]domain.Attempt, error)
	ListByParticipant(ctx context.Context, participantID, quizVersionID string) ([]domain.Attempt, error)
	Deactivate(ctx context.Context, attemptID string) error
}

// ProgressNotifier is told about every sealed attempt. Track-progress collaborators decide on
// their own whether the result satisfies anything.
type ProgressNotifier interface {
	AttemptCompleted(ctx context.Context, attempt domain.Attempt) error
}

const defaultSealRetries = 3

// Service wires the Engine to storage and notifications.
type Service struct {
	engine      *Engine
	quizzes     QuizRepository
	attempts    AttemptStore
	notifiers   []ProgressNotifier
	log         logrus.FieldLogger
	now         func() time.Time
	sealRetries int
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock replaces time.Now; tests use it for deterministic timestamps.
func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

// WithEngine replaces the default Engine.
func WithEngine(e *Engine) ServiceOption { return func(s *Service) { s.engine = e } }

// WithNotifiers registers progress notifiers.
func WithNotifiers(n ...ProgressNotifier) ServiceOption {
	return func(s *Service) { s.notifiers = append(s.notifiers, n...) }
}

// WithSealRetries bounds how often a numbering conflict is retried.
func WithSealRetries(n int) ServiceOption { return func(s *Service) { s.sealRetries = n } }

func NewService(quizzes QuizRepository, attempts AttemptStore, log logrus.FieldLogger, opts ...ServiceOption) *Service {
	s := &Service{
		engine:      NewEngine(),
		quizzes:     quizzes,
		attempts:    attempts,
		log:         log,
		now:         time.Now,
		sealRetries: defaultSealRetries,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now is the service clock.
func (s *Service) Now() time.Time { return s.now() }

// QuizVersion returns a quiz version by id.
func (s *Service) QuizVersion(ctx context.Context, versionID string) (domain.QuizVersion, error) {
	return s.quizzes.GetQuizVersion(ctx, versionID)
}

// Start opens a new attempt for participantID.
func (s *Service) Start(ctx context.Context, versionID, participantID string) (domain.Attempt, error) {
	version, err := s.quizzes.GetQuizVersion(ctx, versionID)
	if err != nil {
		return domain.Attempt{}, err
	}
	prior, err := s.attempts.Prior(ctx, participantID, versionID)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load prior attempts: %w", err)
	}

	logger := s.log.WithFields(logrus.Fields{"participant_id": participantID, "quiz_version_id": versionID})
	attempt, err := s.engine.StartAttempt(version, participantID, prior, s.now())
	if err != nil {
		logger.WithError(err).Info("attempt denied")
		return domain.Attempt{}, err
	}
	if err := s.attempts.Open(ctx, attempt); err != nil {
		if domain.IsDenial(err) {
			logger.WithError(err).Info("attempt denied by store")
		}
		return domain.Attempt{}, err
	}
	logger.WithField("attempt_id", attempt.ID).Info("attempt started")
	return attempt, nil
}

// Attempt returns an attempt owned by participantID.
func (s *Service) Attempt(ctx context.Context, attemptID, participantID string) (domain.Attempt, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := checkOwner(attempt, participantID); err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

// SaveAnswers merges draft answers into an open attempt.
func (s *Service) SaveAnswers(ctx context.Context, attemptID, participantID string, answers map[string]domain.Value) (domain.Attempt, error) {
	if _, err := s.Attempt(ctx, attemptID, participantID); err != nil {
		return domain.Attempt{}, err
	}
	return s.attempts.SaveDraft(ctx, attemptID, answers)
}

// Submit completes an attempt. An empty participantID means the call comes from the system
// (time-up path) and skips the ownership check.
func (s *Service) Submit(ctx context.Context, attemptID, participantID string, sub domain.Submission, forced bool) (domain.GradingResult, error) {
	logger := s.log.WithField("attempt_id", attemptID)
	for try := 0; ; try++ {
		attempt, err := s.Attempt(ctx, attemptID, participantID)
		if err != nil {
			return domain.GradingResult{}, err
		}
		version, err := s.quizzes.GetQuizVersion(ctx, attempt.QuizVersionID)
		if err != nil {
			return domain.GradingResult{}, err
		}
		prior, err := s.attempts.Prior(ctx, attempt.ParticipantID, attempt.QuizVersionID)
		if err != nil {
			return domain.GradingResult{}, fmt.Errorf("load prior attempts: %w", err)
		}

		completed, result, err := s.engine.Submit(version, attempt, sub, prior, s.now(), forced)
		if err != nil {
			logger.WithError(err).Warn("submission rejected")
			return domain.GradingResult{}, err
		}

		err = s.attempts.Seal(ctx, completed)
		if errors.Is(err, domain.ErrAttemptNumberConflict) && try < s.sealRetries {
			logger.WithField("try", try+1).Warn("attempt number taken, retrying seal")
			continue
		}
		if err != nil {
			if domain.IsIntegrity(err) {
				logger.WithError(err).Warn("seal rejected")
			}
			return domain.GradingResult{}, err
		}

		logger.WithFields(logrus.Fields{
			"participant_id":  completed.ParticipantID,
			"quiz_version_id": completed.QuizVersionID,
			"attempt_number":  result.AttemptNumber,
			"percentage":      result.Percentage,
			"forced":          result.Forced,
		}).Info("attempt completed")
		s.notify(ctx, completed)
		return result, nil
	}
}

// ForceSubmit completes an attempt on behalf of the system with its saved draft answers.
// Calling it for an already completed attempt returns domain.ErrAlreadyCompleted.
func (s *Service) ForceSubmit(ctx context.Context, attemptID string) (domain.GradingResult, error) {
	return s.Submit(ctx, attemptID, "", domain.Submission{}, true)
}

// List returns the participant's attempts on a quiz version with learner-visible results.
func (s *Service) List(ctx context.Context, versionID, participantID string) ([]domain.Attempt, error) {
	version, err := s.quizzes.GetQuizVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListByParticipant(ctx, participantID, versionID)
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		attempts[i] = LearnerView(version, attempts[i])
	}
	return attempts, nil
}

// Deactivate soft-deletes an attempt owned by participantID.
func (s *Service) Deactivate(ctx context.Context, attemptID, participantID string) error {
	if _, err := s.Attempt(ctx, attemptID, participantID); err != nil {
		return err
	}
	if err := s.attempts.Deactivate(ctx, attemptID); err != nil {
		return err
	}
	s.log.WithField("attempt_id", attemptID).Info("attempt deactivated")
	return nil
}

// RemainingSeconds projects the time left on attempt; -1 for untimed quizzes, 0 once completed.
func (s *Service) RemainingSeconds(version domain.QuizVersion, attempt domain.Attempt) int64 {
	if attempt.Completed() {
		return 0
	}
	return policy.RemainingSeconds(attempt.StartedAt, version.Policy.TimeLimitMinutes, s.now())
}

// ExpireOverdue force-submits every open attempt whose time limit has passed and returns how
// many it completed.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	open, err := s.attempts.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open attempts: %w", err)
	}
	expired := 0
	for _, attempt := range open {
		version, err := s.quizzes.GetQuizVersion(ctx, attempt.QuizVersionID)
		if err != nil {
			s.log.WithError(err).WithField("attempt_id", attempt.ID).Warn("skip expiry check")
			continue
		}
		if !policy.IsExpired(attempt.StartedAt, version.Policy.TimeLimitMinutes, s.now()) {
			continue
		}
		if _, err := s.ForceSubmit(ctx, attempt.ID); err != nil {
			if errors.Is(err, domain.ErrAlreadyCompleted) {
				continue
			}
			s.log.WithError(err).WithField("attempt_id", attempt.ID).Error("forced submission failed")
			continue
		}
		expired++
	}
	return expired, nil
}

// LearnerView filters an attempt's stored result by the version's feedback policy.
func LearnerView(version domain.QuizVersion, attempt domain.Attempt) domain.Attempt {
	if attempt.Result != nil {
		filtered := attempt.Result.ForLearner(version.Policy.ShowFeedback)
		attempt.Result = &filtered
	}
	return attempt
}

func (s *Service) notify(ctx context.Context, attempt domain.Attempt) {
	for _, n := range s.notifiers {
		if err := n.AttemptCompleted(ctx, attempt); err != nil {
			s.log.WithError(err).WithField("attempt_id", attempt.ID).Warn("progress notification failed")
		}
	}
}

func checkOwner(attempt domain.Attempt, participantID string) error {
	if participantID != "" && attempt.ParticipantID != participantID {
		return domain.ErrNotAttemptOwner
	}
	return nil
}
