package models

import (
	"time"

	"gorm.io/gorm"
)

type TestStatus string

const (
	TestDraft    TestStatus = "draft"
	TestActive   TestStatus = "active"
	TestArchived TestStatus = "archived"
)

// Test binds a pattern to a deliverable exam. Duration here is the single
// authoritative time budget for an attempt; per-section durations are
// informational only.
type Test struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Title     string     `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	PatternID uint       `json:"pattern_id" gorm:"not null;index"`
	Status    TestStatus `json:"status" gorm:"default:draft;index"`

	DurationMinutes int `json:"duration_minutes" gorm:"not null" validate:"required,min=1"`
	// Seconds of remaining time at which the countdown UI switches to the
	// warning state.
	TimeWarningSeconds int `json:"time_warning_seconds" gorm:"default:300"`

	CreatedBy string         `json:"created_by" gorm:"index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Pattern   TestPattern    `json:"pattern" gorm:"foreignKey:PatternID"`
	Questions []TestQuestion `json:"questions" gorm:"foreignKey:TestID"`
}

// TestQuestion binds a question payload to a position inside a test, with
// the marking scheme resolved from its section at build time.
type TestQuestion struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	TestID     uint `json:"test_id" gorm:"not null;index"`
	QuestionID uint `json:"question_id" gorm:"not null;index"`

	SequenceOrder  int     `json:"sequence_order" gorm:"not null"`
	SectionID      uint    `json:"section_id" gorm:"index"`
	Marks          float64 `json:"marks" gorm:"not null"`
	NegativeMarks  float64 `json:"negative_marks" gorm:"default:0"`
	PartialMarking bool    `json:"partial_marking" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`

	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

func (Test) TableName() string {
	return "tests"
}

func (TestQuestion) TableName() string {
	return "test_questions"
}
