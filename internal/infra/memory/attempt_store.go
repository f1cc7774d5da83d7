package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-grading-engine/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore. A single mutex makes
// open-slot checks and sealing atomic.
type AttemptStore struct {
	mu       sync.Mutex
	attempts map[string]domain.Attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string]domain.Attempt)}
}

func (s *AttemptStore) Prior(_ context.Context, participantID, quizVersionID string) (domain.PriorAttempts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priorLocked(participantID, quizVersionID), nil
}

func (s *AttemptStore) Open(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priorLocked(attempt.ParticipantID, attempt.QuizVersionID).OpenAttemptID != "" {
		return domain.ErrAttemptAlreadyOpen
	}
	s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (s *AttemptStore) Get(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

func (s *AttemptStore) SaveDraft(_ context.Context, attemptID string, answers map[string]domain.Value) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok || !attempt.Active {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if attempt.Completed() {
		return domain.Attempt{}, domain.ErrAlreadyCompleted
	}
	attempt = cloneAttempt(attempt)
	if attempt.Response == nil {
		attempt.Response = make(map[string]domain.Value, len(answers))
	}
	for k, v := range answers {
		attempt.Response[k] = v
	}
	s.attempts[attemptID] = attempt
	return cloneAttempt(attempt), nil
}

func (s *AttemptStore) Seal(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attempts[attempt.ID]
	if !ok || !current.Active {
		return domain.ErrAttemptNotFound
	}
	if current.Completed() {
		return domain.ErrAlreadyCompleted
	}
	prior := s.priorLocked(attempt.ParticipantID, attempt.QuizVersionID)
	if attempt.AttemptNumber != prior.LastNumber+1 {
		return domain.ErrAttemptNumberConflict
	}
	s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (s *AttemptStore) ListOpen(_ context.Context) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Attempt
	for _, a := range s.attempts {
		if a.Active && !a.Completed() {
			out = append(out, cloneAttempt(a))
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *AttemptStore) ListByParticipant(_ context.Context, participantID, quizVersionID string) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Attempt
	for _, a := range s.attempts {
		if a.Active && a.ParticipantID == participantID && a.QuizVersionID == quizVersionID {
			out = append(out, cloneAttempt(a))
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *AttemptStore) Deactivate(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	attempt.Active = false
	s.attempts[attemptID] = attempt
	return nil
}

func (s *AttemptStore) priorLocked(participantID, quizVersionID string) domain.PriorAttempts {
	var prior domain.PriorAttempts
	for _, a := range s.attempts {
		if a.ParticipantID != participantID || a.QuizVersionID != quizVersionID {
			continue
		}
		switch {
		case a.Completed():
			prior.Completed++
			if a.AttemptNumber > prior.LastNumber {
				prior.LastNumber = a.AttemptNumber
			}
		case a.Active:
			prior.OpenAttemptID = a.ID
		}
	}
	return prior
}

func sortByStart(attempts []domain.Attempt) {
	sort.Slice(attempts, func(i, j int) bool {
		if !attempts[i].StartedAt.Equal(attempts[j].StartedAt) {
			return attempts[i].StartedAt.Before(attempts[j].StartedAt)
		}
		return attempts[i].ID < attempts[j].ID
	})
}

func cloneAttempt(a domain.Attempt) domain.Attempt {
	if a.Response != nil {
		resp := make(map[string]domain.Value, len(a.Response))
		for k, v := range a.Response {
			resp[k] = v
		}
		a.Response = resp
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		a.CompletedAt = &t
	}
	if a.Result != nil {
		r := *a.Result
		r.QuestionResults = append([]domain.QuestionResult(nil), r.QuestionResults...)
		a.Result = &r
	}
	return a
}
