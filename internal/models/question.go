package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	SingleCorrect   QuestionType = "single_correct"
	MultipleCorrect QuestionType = "multiple_correct"
	TrueFalse       QuestionType = "true_false"
	MatrixMatch     QuestionType = "matrix_match"
	Integer         QuestionType = "integer"
	FreeText        QuestionType = "free_text"
)

// AllQuestionTypes is the closed set of supported variants. Scoring and
// validation switch over this set exhaustively; adding a variant means
// touching every switch.
var AllQuestionTypes = []QuestionType{
	SingleCorrect,
	MultipleCorrect,
	TrueFalse,
	MatrixMatch,
	Integer,
	FreeText,
}

func (t QuestionType) Valid() bool {
	for _, qt := range AllQuestionTypes {
		if t == qt {
			return true
		}
	}
	return false
}

// AutoScorable reports whether the type can be graded without a human.
// Free-text answers always go to manual grading.
func (t QuestionType) AutoScorable() bool {
	return t != FreeText
}

type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	Type   QuestionType `json:"type" gorm:"not null;index"`
	Prompt string       `json:"prompt" gorm:"type:text;not null" validate:"required"`

	// Content and AnswerKey stored as JSONB; schema depends on Type.
	Content   datatypes.JSON `json:"content" gorm:"type:jsonb"`
	AnswerKey datatypes.JSON `json:"answer_key" gorm:"type:jsonb"`

	// Default marks; the section binding overrides these at test build time.
	Marks         float64 `json:"marks" gorm:"default:4"`
	NegativeMarks float64 `json:"negative_marks" gorm:"default:0"`

	SubjectID *uint     `json:"subject_id" gorm:"index"`
	CreatedBy string    `json:"created_by" gorm:"index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ===== QUESTION CONTENT SCHEMAS =====

type OptionsContent struct {
	Options []QuestionOption `json:"options" validate:"min=2,max=10"`
}

type QuestionOption struct {
	ID    string `json:"id"`
	Text  string `json:"text" validate:"required"`
	Order int    `json:"order"`
}

type MatrixContent struct {
	LeftItems  []MatrixItem `json:"left_items" validate:"min=2,max=10"`
	RightItems []MatrixItem `json:"right_items" validate:"min=2,max=10"`
}

type MatrixItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type FreeTextContent struct {
	MinWords        *int    `json:"min_words"`
	MaxWords        *int    `json:"max_words"`
	PlaceholderText *string `json:"placeholder_text"`
}

// ===== ANSWER KEY SCHEMAS =====

type SingleCorrectKey struct {
	Correct string `json:"correct"`
}

type MultipleCorrectKey struct {
	Correct []string `json:"correct"`
}

type MatrixMatchKey struct {
	Pairs []MatrixPair `json:"pairs"`
}

type MatrixPair struct {
	LeftID  string `json:"left_id"`
	RightID string `json:"right_id"`
}

type IntegerKey struct {
	Value string `json:"value"`
	// Optional tolerance window; nil means exact numeric equality.
	Tolerance *float64 `json:"tolerance"`
}
