package validator

import (
	"fmt"
	"strings"
)

// Pattern-wide cap; a single test never carries more questions than this.
const maxPatternQuestions = 1000

// ValidatePatternCreate validates pattern creation business rules
func (v *Validator) ValidatePatternCreate(req *PatternCreateRequest) ValidationErrors {
	errs := v.structErrors(req)

	seen := make(map[string]bool)
	total := 0
	for i, s := range req.Sections {
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if seen[key] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("sections[%d].name", i),
				Message: "duplicates another section name",
				Value:   s.Name,
				Rule:    "unique_section_name",
			})
		}
		seen[key] = true
		total += s.QuestionCount
	}

	if total > maxPatternQuestions {
		errs = append(errs, ValidationError{
			Field:   "sections",
			Message: fmt.Sprintf("total question count must not exceed %d", maxPatternQuestions),
			Value:   total,
			Rule:    "max_pattern_questions",
		})
	}

	return errs
}

// ValidateSectionCreate validates rules for appending a section to a pattern
func (v *Validator) ValidateSectionCreate(req *SectionCreateRequest, existingTotal int) ValidationErrors {
	errs := v.structErrors(req)

	if existingTotal+req.QuestionCount > maxPatternQuestions {
		errs = append(errs, ValidationError{
			Field:   "question_count",
			Message: fmt.Sprintf("total question count must not exceed %d", maxPatternQuestions),
			Value:   req.QuestionCount,
			Rule:    "max_pattern_questions",
		})
	}

	return errs
}

// ValidateSectionUpdate validates a partial section update
func (v *Validator) ValidateSectionUpdate(req *SectionUpdateRequest) ValidationErrors {
	errs := v.structErrors(req)

	if req.Name == nil && req.SubjectID == nil && req.QuestionCount == nil &&
		req.MarksPerQuestion == nil && req.NegativeMarks == nil &&
		req.AllowedQuestionTypes == nil && req.Duration == nil && req.PartialMarking == nil {
		errs = append(errs, ValidationError{
			Field:   "request",
			Message: "must set at least one field",
			Rule:    "non_empty_update",
		})
	}

	return errs
}

// ValidateTestCreate validates test creation business rules
func (v *Validator) ValidateTestCreate(req *TestCreateRequest) ValidationErrors {
	return v.structErrors(req)
}

func (v *Validator) structErrors(s interface{}) ValidationErrors {
	err := v.Validate(s)
	if err == nil {
		return nil
	}
	if ve, ok := err.(ValidationErrors); ok {
		return ve
	}
	return ValidationErrors{{Field: "request", Message: err.Error()}}
}
