package models

import "time"

type ScoreOutcome string

const (
	OutcomeCorrect       ScoreOutcome = "correct"
	OutcomeIncorrect     ScoreOutcome = "incorrect"
	OutcomePartial       ScoreOutcome = "partial"
	OutcomeUnanswered    ScoreOutcome = "unanswered"
	OutcomePendingManual ScoreOutcome = "pending_manual"
)

// QuestionScore is the scoring engine's verdict for one question.
type QuestionScore struct {
	TestQuestionID uint         `json:"test_question_id"`
	SequenceOrder  int          `json:"sequence_order"`
	Awarded        float64      `json:"awarded"`
	MaxMarks       float64      `json:"max_marks"`
	Outcome        ScoreOutcome `json:"outcome"`
}

// ScoreResult is the write-once outcome of grading a full attempt.
// The aggregate total may be negative; heavy negative marking is not
// clamped at the attempt level.
type ScoreResult struct {
	AttemptID uint `json:"attempt_id"`

	TotalScore float64 `json:"total_score"`
	MaxScore   float64 `json:"max_score"`

	CorrectCount       int `json:"correct_count"`
	IncorrectCount     int `json:"incorrect_count"`
	PartialCount       int `json:"partial_count"`
	UnansweredCount    int `json:"unanswered_count"`
	PendingManualCount int `json:"pending_manual_count"`

	Questions []QuestionScore `json:"questions"`
	GradedAt  time.Time       `json:"graded_at"`
}
