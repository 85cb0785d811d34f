package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/weberitsol/assessment-engine/internal/models"
)

// QuestionRepository interface for question-specific operations
type QuestionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Bulk operations
	CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.Question) error
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters QuestionFilters) ([]*models.Question, int64, error)
	GetByType(ctx context.Context, tx *gorm.DB, questionType models.QuestionType, filters QuestionFilters) ([]*models.Question, error)

	// Validation and checks
	IsUsedInTests(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}
