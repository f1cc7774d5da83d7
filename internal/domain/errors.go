package domain

import "errors"

var (
	// ErrAttemptLimitReached is returned when the participant has used every allowed attempt.
	ErrAttemptLimitReached = errors.New("attempt limit reached")
	// ErrAttemptAlreadyOpen is returned when an unfinished attempt already exists for the participant and quiz version.
	ErrAttemptAlreadyOpen = errors.New("an attempt is already open")
	// ErrAlreadyCompleted is returned when an attempt that has been completed is submitted again.
	ErrAlreadyCompleted = errors.New("attempt already completed")
	// ErrDefinitionMismatch indicates the submission targets a different quiz version than the attempt.
	ErrDefinitionMismatch = errors.New("quiz definition mismatch")

	// ErrQuizNotFound indicates the quiz version could not be loaded.
	ErrQuizNotFound = errors.New("quiz version not found")
	// ErrAttemptNotFound indicates an unknown attempt id.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrNotAttemptOwner is returned when a participant acts on someone else's attempt.
	ErrNotAttemptOwner = errors.New("attempt belongs to another participant")
	// ErrAttemptNumberConflict is returned by stores when the attempt number slot was taken concurrently.
	ErrAttemptNumberConflict = errors.New("attempt number already assigned")
)

// IsDenial reports whether err is an expected policy denial.
func IsDenial(err error) bool {
	return errors.Is(err, ErrAttemptLimitReached) || errors.Is(err, ErrAttemptAlreadyOpen)
}

// IsIntegrity reports whether err signals a caller bug or a race the store should have prevented.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted) ||
		errors.Is(err, ErrDefinitionMismatch) ||
		errors.Is(err, ErrAttemptNumberConflict)
}
