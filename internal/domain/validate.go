package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateQuiz checks that quiz content can be played.
func ValidateQuiz(q Quiz) error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	for i, question := range q.Questions {
		if question.Correct >= len(question.Options) {
			return fmt.Errorf("%w: question %d correct index %d out of range", ErrInvalidQuiz, i, question.Correct)
		}
	}
	return nil
}
