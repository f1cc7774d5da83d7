package app

import (
	"context"

	"quiz-grading-engine/internal/domain"

	"github.com/sirupsen/logrus"
)

// LogProgressNotifier reports completions to the track-progress collaborator's log stream.
type LogProgressNotifier struct {
	log logrus.FieldLogger
}

func NewLogProgressNotifier(log logrus.FieldLogger) *LogProgressNotifier {
	return &LogProgressNotifier{log: log}
}

func (n *LogProgressNotifier) AttemptCompleted(_ context.Context, attempt domain.Attempt) error {
	fields := logrus.Fields{
		"attempt_id":      attempt.ID,
		"participant_id":  attempt.ParticipantID,
		"quiz_version_id": attempt.QuizVersionID,
		"attempt_number":  attempt.AttemptNumber,
	}
	if attempt.Result != nil {
		fields["score"] = attempt.Result.Score
		fields["percentage"] = attempt.Result.Percentage
		if attempt.Result.IsPassed != nil {
			fields["passed"] = *attempt.Result.IsPassed
		}
	}
	n.log.WithFields(fields).Info("quiz attempt completed")
	return nil
}
