package repositories

import (
	"time"

	"github.com/weberitsol/assessment-engine/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type PatternFilters struct {
	CreatedBy *string    `json:"created_by"`
	Name      *string    `json:"name"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`    // "created_at", "name", "total_marks"
	SortOrder string     `json:"sort_order"` // "asc", "desc"
}

type QuestionFilters struct {
	Type      *models.QuestionType `json:"type"`
	SubjectID *uint                `json:"subject_id"`
	CreatedBy *string              `json:"created_by"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
	SortBy    string               `json:"sort_by"`
	SortOrder string               `json:"sort_order"`
}

type TestFilters struct {
	Status    *models.TestStatus `json:"status"`
	PatternID *uint              `json:"pattern_id"`
	CreatedBy *string            `json:"created_by"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	SortBy    string             `json:"sort_by"`
	SortOrder string             `json:"sort_order"`
}

type AttemptFilters struct {
	Status      *models.AttemptStatus `json:"status"`
	CandidateID *string               `json:"candidate_id"`
	TestID      *uint                 `json:"test_id"`
	DateFrom    *time.Time            `json:"date_from"`
	DateTo      *time.Time            `json:"date_to"`
	Limit       int                   `json:"limit"`
	Offset      int                   `json:"offset"`
	SortBy      string                `json:"sort_by"`    // "created_at", "started_at", "total_score"
	SortOrder   string                `json:"sort_order"` // "asc", "desc"
}

// ===== SHARED STATISTICS STRUCTS =====

type TestStats struct {
	TotalAttempts     int     `json:"total_attempts"`
	CompletedAttempts int     `json:"completed_attempts"`
	ExpiredAttempts   int     `json:"expired_attempts"`
	AverageScore      float64 `json:"average_score"`
	HighestScore      float64 `json:"highest_score"`
	AverageTimeSpent  int     `json:"average_time_spent"`
}

type AttemptStats struct {
	TotalAttempts   int                          `json:"total_attempts"`
	StatusBreakdown map[models.AttemptStatus]int `json:"status_breakdown"`
	AverageScore    float64                      `json:"average_score"`
	CompletionRate  float64                      `json:"completion_rate"`
}

type ResponseStats struct {
	TotalResponses int `json:"total_responses"`
	AnsweredCount  int `json:"answered_count"`
	FlaggedCount   int `json:"flagged_count"`
	PendingManual  int `json:"pending_manual"`
	TotalTimeSpent int `json:"total_time_spent"`
}
