package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/weberitsol/assessment-engine/internal/models"
)

// Validator wraps go-playground struct validation plus the custom rules
// used across request DTOs.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()

	v := &Validator{validate: validate}
	v.registerRules()

	return v
}

// Validate validates a struct and converts field errors into the
// field-tagged ValidationErrors taxonomy.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var errs ValidationErrors
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Field:   fe.Field(),
				Message: v.errorMessage(fe),
				Value:   fe.Value(),
				Rule:    fe.Tag(),
			})
		}
		return errs
	}
	return err
}

func (v *Validator) registerRules() {
	// Pattern/section marks are fractional but never negative.
	v.validate.RegisterValidation("marks_per_question", func(fl validator.FieldLevel) bool {
		return fl.Field().Float() >= 0
	})

	// Test duration (1-600 minutes).
	v.validate.RegisterValidation("test_duration", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Int()
		return duration >= 1 && duration <= 600
	})

	// Section name (1-200 characters after trimming).
	v.validate.RegisterValidation("section_name", func(fl validator.FieldLevel) bool {
		name := strings.TrimSpace(fl.Field().String())
		return len(name) >= 1 && len(name) <= 200
	})

	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return models.QuestionType(fl.Field().String()).Valid()
	})
}

func (v *Validator) errorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "marks_per_question":
		return "must not be negative"
	case "test_duration":
		return "must be between 1 and 600 minutes"
	case "section_name":
		return "must be between 1 and 200 characters"
	case "question_type":
		return "must be a valid question type"
	default:
		return fmt.Sprintf("validation failed for rule '%s'", err.Tag())
	}
}

// ValidationError represents a single field-tagged validation failure.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}
