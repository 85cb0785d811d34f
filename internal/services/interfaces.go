package services

import (
	"context"
	"time"

	"github.com/weberitsol/assessment-engine/internal/models"
	"github.com/weberitsol/assessment-engine/internal/repositories"
	"github.com/weberitsol/assessment-engine/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreatePatternRequest = validator.PatternCreateRequest
type UpdatePatternRequest = validator.PatternUpdateRequest
type SectionCreateRequest = validator.SectionCreateRequest
type SectionUpdateRequest = validator.SectionUpdateRequest
type CreateTestRequest = validator.TestCreateRequest
type BuildSequenceRequest = validator.BuildSequenceRequest

type PatternResponse struct {
	*models.TestPattern
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

type PatternListResponse struct {
	Patterns []*PatternResponse `json:"patterns"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

type TestResponse struct {
	*models.Test
	QuestionCount int  `json:"question_count"`
	CanEdit       bool `json:"can_edit"`
}

type TestListResponse struct {
	Tests []*TestResponse `json:"tests"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
}

// ===== ATTEMPT RELATED DTOs =====

type StartAttemptRequest struct {
	TestID uint `json:"test_id" validate:"required"`
}

type SaveResponseRequest struct {
	TestQuestionID   uint     `json:"test_question_id" validate:"required"`
	SelectedOptions  []string `json:"selected_options"`
	ResponseText     *string  `json:"response_text"`
	FlaggedForReview *bool    `json:"flagged_for_review"`
	TimeSpentSeconds *int     `json:"time_spent_seconds" validate:"omitempty,min=0"`
}

type SubmitAttemptRequest struct {
	AttemptID uint                  `json:"attempt_id" validate:"required"`
	Responses []SaveResponseRequest `json:"responses" validate:"omitempty,dive"`
	EndReason string                `json:"end_reason"`
}

type AttemptResponse struct {
	*models.TestAttempt
	TimeRemainingSeconds int  `json:"time_remaining_seconds"`
	CanSubmit            bool `json:"can_submit"`
	CanResume            bool `json:"can_resume"`
	// Set on terminal attempts; the client should navigate to results
	// instead of the taking screen.
	RedirectToResults bool                 `json:"redirect_to_results"`
	Questions         []QuestionForAttempt `json:"questions,omitempty"`
}

// QuestionForAttempt is a delivery view of a test question. The answer key
// is stripped before it leaves the service.
type QuestionForAttempt struct {
	*models.TestQuestion
	IsFirst bool `json:"is_first"`
	IsLast  bool `json:"is_last"`
}

// SubmissionSummary carries the answered/flagged/unanswered counts shown in
// the pre-submission confirmation dialog; after submission it also carries
// the terminal state and, once graded, the result.
type SubmissionSummary struct {
	AttemptID       uint                 `json:"attempt_id"`
	Status          models.AttemptStatus `json:"status"`
	SubmittedAt     *time.Time           `json:"submitted_at"`
	EndReason       *string              `json:"end_reason"`
	TotalQuestions  int                  `json:"total_questions"`
	AnsweredCount   int                  `json:"answered_count"`
	FlaggedCount    int                  `json:"flagged_count"`
	UnansweredCount int                  `json:"unanswered_count"`
	Result          *models.ScoreResult  `json:"result,omitempty"`
}

type AttemptListResponse struct {
	Attempts []*AttemptResponse `json:"attempts"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

// TestStatsResponse aggregates attempt outcomes for one test.
type TestStatsResponse struct {
	TestID uint `json:"test_id"`
	*repositories.TestStats
	StatusBreakdown map[models.AttemptStatus]int `json:"status_breakdown"`
}

// ===== SERVICE INTERFACES =====

type PatternService interface {
	// Core pattern operations
	Create(ctx context.Context, req *CreatePatternRequest, creatorID string) (*PatternResponse, error)
	GetByID(ctx context.Context, id uint) (*PatternResponse, error)
	Update(ctx context.Context, id uint, req *UpdatePatternRequest, userID string) (*PatternResponse, error)
	Delete(ctx context.Context, id uint, userID string) error
	List(ctx context.Context, filters repositories.PatternFilters) (*PatternListResponse, error)

	// Section operations
	AddSection(ctx context.Context, patternID uint, req *SectionCreateRequest, userID string) (*PatternResponse, error)
	UpdateSection(ctx context.Context, patternID, sectionID uint, req *SectionUpdateRequest, userID string) (*PatternResponse, error)
	RemoveSection(ctx context.Context, patternID, sectionID uint, userID string) (*PatternResponse, error)
}

type TestService interface {
	// Core test operations
	Create(ctx context.Context, req *CreateTestRequest, creatorID string) (*TestResponse, error)
	GetByID(ctx context.Context, id uint) (*TestResponse, error)
	GetByIDWithQuestions(ctx context.Context, id uint) (*models.Test, error)
	List(ctx context.Context, filters repositories.TestFilters) (*TestListResponse, error)

	// Question sequence
	BuildQuestionSequence(ctx context.Context, testID uint, req *BuildSequenceRequest, userID string) (*TestResponse, error)

	// Status transitions
	Activate(ctx context.Context, testID uint, userID string) error
	Archive(ctx context.Context, testID uint, userID string) error

	// Stats aggregates attempt outcomes for the test's owner.
	Stats(ctx context.Context, testID uint, userID string) (*TestStatsResponse, error)
}

type ScoringService interface {
	// ScoreAttempt grades every response of the attempt in a single pass
	// and persists the result. Write-once: re-grading a graded attempt
	// returns the stored result.
	ScoreAttempt(ctx context.Context, attemptID uint) (*models.ScoreResult, error)

	// GetResult returns the stored result of a graded attempt.
	GetResult(ctx context.Context, attemptID uint) (*models.ScoreResult, error)
}

type AttemptService interface {
	// Core attempt operations
	Start(ctx context.Context, req *StartAttemptRequest, candidateID string) (*AttemptResponse, error)
	Resume(ctx context.Context, attemptID uint, candidateID string) (*AttemptResponse, error)
	Submit(ctx context.Context, req *SubmitAttemptRequest, candidateID string) (*SubmissionSummary, error)

	// Response operations
	SaveResponse(ctx context.Context, attemptID uint, req *SaveResponseRequest, candidateID string) error
	SaveResponses(ctx context.Context, attemptID uint, reqs []SaveResponseRequest, candidateID string) error

	// Get operations
	GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error)
	GetSummary(ctx context.Context, attemptID uint, userID string) (*SubmissionSummary, error)
	GetByCandidate(ctx context.Context, candidateID string, filters repositories.AttemptFilters) (*AttemptListResponse, error)

	// Time management
	GetTimeRemaining(ctx context.Context, attemptID uint, candidateID string) (int, error) // seconds
	HandleTimeout(ctx context.Context, attemptID uint) error
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	// Core service getters
	Pattern() PatternService
	Test() TestService
	Scoring() ScoringService
	Attempt() AttemptService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
