package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
)

// Terminal reports whether the attempt can no longer be mutated.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSubmitted || s == AttemptExpired
}

const (
	AttemptEndReasonManual  = "manual_submit"
	AttemptEndReasonTimeout = "time_out"
)

// TestAttempt is one candidate's run through a test. StartedAt is the
// authoritative clock source; remaining time is always derived from it,
// never stored.
type TestAttempt struct {
	ID          uint          `json:"id" gorm:"primaryKey"`
	TestID      uint          `json:"test_id" gorm:"not null;index"`
	CandidateID string        `json:"candidate_id" gorm:"not null;index;size:255"`
	Status      AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	StartedAt       time.Time  `json:"started_at" gorm:"not null"`
	DurationMinutes int        `json:"duration_minutes" gorm:"not null"`
	SubmittedAt     *time.Time `json:"submitted_at"`
	EndReason       *string    `json:"end_reason" gorm:"size:50"`

	// Score fields are written exactly once, at submission.
	TotalScore         float64 `json:"total_score"`
	MaxScore           float64 `json:"max_score"`
	CorrectCount       int     `json:"correct_count"`
	IncorrectCount     int     `json:"incorrect_count"`
	PartialCount       int     `json:"partial_count"`
	UnansweredCount    int     `json:"unanswered_count"`
	PendingManualCount int     `json:"pending_manual_count"`
	IsGraded           bool    `json:"is_graded"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Test      Test           `json:"test" gorm:"foreignKey:TestID"`
	Responses []TestResponse `json:"responses" gorm:"foreignKey:AttemptID"`
}

// TimeRemaining derives the remaining seconds at the given instant.
// Derived, not stored: two independent evaluations from the same
// StartedAt always agree, regardless of reloads or reconnects.
func (a *TestAttempt) TimeRemaining(now time.Time) int {
	deadline := a.StartedAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
	remaining := int(deadline.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the attempt's time budget has run out.
func (a *TestAttempt) Expired(now time.Time) bool {
	return a.TimeRemaining(now) == 0
}

// TestResponse is the per-question answer record. One shell per test
// question is created at attempt start so navigation and statistics have
// stable indexing; shells stay empty until the candidate answers.
type TestResponse struct {
	ID             uint `json:"id" gorm:"primaryKey"`
	AttemptID      uint `json:"attempt_id" gorm:"not null;index"`
	TestQuestionID uint `json:"test_question_id" gorm:"not null;index"`

	// Ordered option identifiers; single-element for single-correct types.
	SelectedOptions  datatypes.JSON `json:"selected_options" gorm:"type:jsonb"`
	ResponseText     string         `json:"response_text" gorm:"type:text"`
	FlaggedForReview bool           `json:"flagged_for_review" gorm:"default:false"`
	TimeSpentSeconds int            `json:"time_spent_seconds" gorm:"default:0"`

	// Grading output; written once at submission.
	AwardedMarks float64      `json:"awarded_marks"`
	Outcome      ScoreOutcome `json:"outcome" gorm:"size:20"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TestQuestion TestQuestion `json:"test_question" gorm:"foreignKey:TestQuestionID"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

func (TestResponse) TableName() string {
	return "test_responses"
}
