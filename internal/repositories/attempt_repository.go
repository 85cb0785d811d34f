package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/weberitsol/assessment-engine/internal/models"
)

// AttemptRepository interface for attempt-specific operations
type AttemptRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error)
	GetByIDWithResponses(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.TestAttempt, int64, error)
	GetByCandidate(ctx context.Context, tx *gorm.DB, candidateID string, filters AttemptFilters) ([]*models.TestAttempt, int64, error)
	GetActiveByCandidateAndTest(ctx context.Context, tx *gorm.DB, candidateID string, testID uint) (*models.TestAttempt, error)
	GetExpiredInProgress(ctx context.Context, tx *gorm.DB, limit int) ([]*models.TestAttempt, error)

	// Statistics
	GetStats(ctx context.Context, tx *gorm.DB, testID uint) (*AttemptStats, error)
}

// ResponseRepository interface for per-question response operations
type ResponseRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, responses []*models.TestResponse) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestResponse, error)
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.TestResponse, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, testQuestionID uint) (*models.TestResponse, error)
	Update(ctx context.Context, tx *gorm.DB, response *models.TestResponse) error
	UpdateBatch(ctx context.Context, tx *gorm.DB, responses []*models.TestResponse) error

	// Statistics
	GetStats(ctx context.Context, tx *gorm.DB, attemptID uint) (*ResponseStats, error)
}
