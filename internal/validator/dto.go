package validator

import (
	"github.com/weberitsol/assessment-engine/internal/models"
)

// PatternCreateRequest represents the request structure for creating test patterns
type PatternCreateRequest struct {
	Name                   string                 `json:"name" validate:"required,section_name"`
	NegativeMarkingEnabled bool                   `json:"negative_marking_enabled"`
	Sections               []SectionCreateRequest `json:"sections" validate:"required,min=1,dive"`
}

// PatternUpdateRequest represents the request structure for updating pattern metadata
type PatternUpdateRequest struct {
	Name                   *string `json:"name" validate:"omitempty,section_name"`
	NegativeMarkingEnabled *bool   `json:"negative_marking_enabled"`
}

// SectionCreateRequest represents one section of a pattern
type SectionCreateRequest struct {
	Name                 string                `json:"name" validate:"required,section_name"`
	SubjectID            *uint                 `json:"subject_id"`
	QuestionCount        int                   `json:"question_count" validate:"required,min=1,max=500"`
	MarksPerQuestion     float64               `json:"marks_per_question" validate:"marks_per_question"`
	NegativeMarks        float64               `json:"negative_marks" validate:"marks_per_question"`
	AllowedQuestionTypes []models.QuestionType `json:"allowed_question_types" validate:"omitempty,dive,question_type"`
	Duration             *int                  `json:"duration" validate:"omitempty,min=1"`
	PartialMarking       bool                  `json:"partial_marking"`
}

// SectionUpdateRequest represents a partial update of one section's fields
type SectionUpdateRequest struct {
	Name                 *string               `json:"name" validate:"omitempty,section_name"`
	SubjectID            *uint                 `json:"subject_id"`
	QuestionCount        *int                  `json:"question_count" validate:"omitempty,min=1,max=500"`
	MarksPerQuestion     *float64              `json:"marks_per_question" validate:"omitempty,marks_per_question"`
	NegativeMarks        *float64              `json:"negative_marks" validate:"omitempty,marks_per_question"`
	AllowedQuestionTypes []models.QuestionType `json:"allowed_question_types" validate:"omitempty,dive,question_type"`
	Duration             *int                  `json:"duration" validate:"omitempty,min=1"`
	PartialMarking       *bool                 `json:"partial_marking"`
}

// TestCreateRequest represents the request structure for creating tests
type TestCreateRequest struct {
	Title              string `json:"title" validate:"required,section_name"`
	PatternID          uint   `json:"pattern_id" validate:"required"`
	DurationMinutes    int    `json:"duration_minutes" validate:"required,test_duration"`
	TimeWarningSeconds *int   `json:"time_warning_seconds" validate:"omitempty,min=10,max=1800"`
}

// BuildSequenceRequest assigns the ordered question list of a test
type BuildSequenceRequest struct {
	QuestionIDs []uint `json:"question_ids" validate:"required,min=1,dive,required"`
}
