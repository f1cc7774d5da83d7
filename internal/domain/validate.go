package domain

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateQuizVersion checks the structural rules of a loaded quiz version: an id,
// named questions with unique names and sane policy ranges. Unknown question types are
// allowed; they are graded as informational questions.
func ValidateQuizVersion(v QuizVersion) error {
	if err := structValidator().Struct(v); err != nil {
		return fmt.Errorf("invalid quiz version %q: %w", v.ID, err)
	}
	return nil
}
