package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/weberitsol/assessment-engine/internal/models"
)

// TestRepository interface for test-specific operations
type TestRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, test *models.Test) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error)
	Update(ctx context.Context, tx *gorm.DB, test *models.Test) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters TestFilters) ([]*models.Test, int64, error)
	GetByPattern(ctx context.Context, tx *gorm.DB, patternID uint) ([]*models.Test, error)

	// Status transitions
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TestStatus) error

	// Statistics
	GetStats(ctx context.Context, tx *gorm.DB, id uint) (*TestStats, error)
}

// TestQuestionRepository interface for the test-question sequence
type TestQuestionRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.TestQuestion) error
	GetByTest(ctx context.Context, tx *gorm.DB, testID uint) ([]*models.TestQuestion, error)
	GetByTestOrdered(ctx context.Context, tx *gorm.DB, testID uint) ([]*models.TestQuestion, error)
	DeleteByTest(ctx context.Context, tx *gorm.DB, testID uint) error
	CountByTest(ctx context.Context, tx *gorm.DB, testID uint) (int64, error)
}
